package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studymate/internal/embedding"
)

const defaultModel = "text-embedding-004"

// batchFunc embeds one batch of texts and returns the embeddings in input order.
type batchFunc func(ctx context.Context, texts []string) ([]*genai.ContentEmbedding, error)

// Embedder encodes texts with a Gemini embedding model.
type Embedder struct {
	client    *genai.Client
	embed     batchFunc
	model     string
	batchSize int
	logger    *slog.Logger
}

type Config struct {
	APIKeyEnv string
	Model     string
	BatchSize int
}

// NewEmbedder connects to the Gemini API with the key found in cfg.APIKeyEnv.
func NewEmbedder(ctx context.Context, cfg Config, logger *slog.Logger) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	em := client.EmbeddingModel(cfg.Model)
	embed := func(ctx context.Context, texts []string) ([]*genai.ContentEmbedding, error) {
		b := em.NewBatch()
		for _, t := range texts {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, err
		}
		return res.Embeddings, nil
	}
	return &Embedder{client: client, embed: embed, model: cfg.Model, batchSize: cfg.BatchSize, logger: logger}, nil
}

func (e *Embedder) Name() string { return "gemini:" + e.model }

func (e *Embedder) Prepare(context.Context, []string) error { return nil }

func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyCorpus
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		e.logger.DebugContext(ctx, "embedding batch", "model", e.model, "size", end-start)
		embeddings, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		if len(embeddings) != end-start {
			return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(embeddings), end-start)
		}
		for _, emb := range embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("gemini embeddings: empty embedding received")
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
