package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studymate/internal/config"
	"studymate/internal/logging"
	"studymate/internal/server"
	"studymate/internal/session"
	"studymate/internal/tui"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "studymate [files...]",
		Short:        "Ask questions about your PDF documents",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), cfgPath, args)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/studymate/config.yaml if not provided)")
	root.AddCommand(tuiCmd(&cfgPath), askCmd(&cfgPath), serveCmd(&cfgPath))
	return root
}

func tuiCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [files...]",
		Short: "Run the interactive terminal UI, optionally preloading PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), *cfgPath, args)
		},
	}
}

func askCmd(cfgPath *string) *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "ask -q <question> files...",
		Short: "Answer one question about the given PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cfg, logger, question, args)
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			srv := server.New(a.session, a.metrics, server.Config{MaxUploadMB: cfg.Server.MaxUploadMB}, logger)
			return srv.Run(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runTUI(ctx context.Context, cfgPath string, preload []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger, closer, err := logging.NewFile(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, a.session, session.ReadUploads, cfg.TUI.TranscriptPath, preload)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

var errNoChunks = errors.New("no text chunks could be extracted from the given files")

func runAsk(ctx context.Context, out io.Writer, cfg *config.AppConfig, logger *slog.Logger, question string, paths []string) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads, err := session.ReadUploads(paths)
	if err != nil {
		return err
	}
	res, err := a.session.ProcessPDFs(ctx, uploads)
	if err != nil {
		return err
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "skipped %s: %s\n", s.Name, s.Reason)
	}
	if res.NoChunks {
		return errNoChunks
	}

	ans, err := a.session.Ask(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Answer: %s\n", ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, s := range ans.Sources {
			fmt.Fprintf(out, "%d. %s (chunk %d, distance %.4f)\n   %s\n", i+1, s.Source, s.ChunkID, s.Distance, s.Preview)
		}
	}
	return nil
}
