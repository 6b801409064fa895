package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"studymate/internal/domain"
	"studymate/internal/metrics"
	"studymate/internal/session"
)

// SessionAPI is the subset of the session served over HTTP.
type SessionAPI interface {
	ProcessPDFs(ctx context.Context, uploads []domain.Upload) (session.ProcessResult, error)
	Ask(ctx context.Context, question string) (session.AskResult, error)
	History() []domain.HistoryEntry
	Status() session.Status
	Transcript() string
}

type Config struct {
	MaxUploadMB int64
}

// Server exposes a session over HTTP. All session calls hold one mutex.
type Server struct {
	e       *echo.Echo
	mu      sync.Mutex
	sess    SessionAPI
	logger  *slog.Logger
	maxBody int64
}

type askRequest struct {
	Question string `json:"question"`
}

type historyItem struct {
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Timestamp time.Time        `json:"timestamp"`
	Sources   []session.Source `json:"sources"`
}

func New(sess SessionAPI, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}
	s := &Server{e: echo.New(), sess: sess, logger: logger, maxBody: cfg.MaxUploadMB << 20}
	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))
	e.HTTPErrorHandler = s.handleError

	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	api := e.Group("/api")
	api.POST("/documents", s.uploadDocuments)
	api.POST("/ask", s.ask)
	api.GET("/history", s.history)
	api.GET("/history/download", s.downloadHistory)
	api.GET("/status", s.status)
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- s.e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	req := c.Request()
	s.logger.Warn("request failed", "status", code, "method", req.Method, "path", req.URL.Path, "error", err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}

func (s *Server) uploadDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form with files required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files uploaded")
	}
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot open "+fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, s.maxBody))
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, domain.Upload{Name: fh.Filename, Data: data})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.sess.ProcessPDFs(c.Request().Context(), uploads)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.sess.Ask(c.Request().Context(), req.Question)
	if errors.Is(err, session.ErrEmptyQuestion) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) history(c echo.Context) error {
	s.mu.Lock()
	entries := s.sess.History()
	s.mu.Unlock()
	items := make([]historyItem, len(entries))
	for i, h := range entries {
		sources := make([]session.Source, len(h.Context))
		for j, rc := range h.Context {
			sources[j] = session.Source{Source: rc.Source, ChunkID: rc.ChunkID, Distance: rc.SimilarityScore}
		}
		items[i] = historyItem{Question: h.Question, Answer: h.Answer, Timestamp: h.Timestamp, Sources: sources}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) downloadHistory(c echo.Context) error {
	s.mu.Lock()
	transcript := s.sess.Transcript()
	s.mu.Unlock()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="studymate_history.txt"`)
	return c.String(http.StatusOK, transcript)
}

func (s *Server) status(c echo.Context) error {
	s.mu.Lock()
	st := s.sess.Status()
	s.mu.Unlock()
	return c.JSON(http.StatusOK, st)
}
