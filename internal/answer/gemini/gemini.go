package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

// contentFunc sends one prompt to the model.
type contentFunc func(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)

// Generator produces fallback answers with a Gemini model.
type Generator struct {
	client   *genai.Client
	generate contentFunc
	name     string
	logger   *slog.Logger
}

type Config struct {
	APIKeyEnv       string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// NewGenerator connects to the Gemini API with the key found in cfg.APIKeyEnv.
func NewGenerator(ctx context.Context, cfg Config, logger *slog.Logger) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 150
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	m := client.GenerativeModel(cfg.Model)
	m.SetTemperature(cfg.Temperature)
	m.SetMaxOutputTokens(cfg.MaxOutputTokens)
	generate := func(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
		return m.GenerateContent(ctx, genai.Text(prompt))
	}
	return &Generator{client: client, generate: generate, name: cfg.Model, logger: logger}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.logger.DebugContext(ctx, "generating content", "model", g.name, "length", len(prompt))
	resp, err := g.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String(), nil
}

func (g *Generator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
