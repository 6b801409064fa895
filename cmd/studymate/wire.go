package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"studymate/internal/answer"
	answergemini "studymate/internal/answer/gemini"
	"studymate/internal/answer/huggingface"
	"studymate/internal/answer/lexical"
	answeropenai "studymate/internal/answer/openai"
	"studymate/internal/chunker"
	"studymate/internal/config"
	"studymate/internal/domain"
	"studymate/internal/embedding/gemini"
	"studymate/internal/embedding/openai"
	"studymate/internal/embedding/tfidf"
	"studymate/internal/extract"
	"studymate/internal/metrics"
	"studymate/internal/service"
	"studymate/internal/session"
	"studymate/internal/summarizer"
	"studymate/internal/vectorstore"
	"studymate/internal/vectorstore/memory"
	"studymate/internal/vectorstore/qdrant"
)

// app is the assembled pipeline plus the resources to release on exit.
type app struct {
	session *session.Session
	metrics *metrics.Metrics
	closers []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		o := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
			BatchSize: o.BatchSize,
			Normalize: o.Normalize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "gemini":
		g := cfg.Embedder.Gemini
		e, err := gemini.NewEmbedder(ctx, gemini.Config{APIKeyEnv: g.APIKeyEnv, Model: g.Model, BatchSize: g.BatchSize}, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		a.closers = append(a.closers, e)
		emb = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var st vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory", "":
		st = memory.NewStorage()
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st = qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var sum domain.Summarizer
	if cfg.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}

	ans := answer.Load(ctx, answerOptions(cfg.Answerer), qaLoader(cfg.Answerer.QA), generatorLoader(cfg.Answerer.Generator, logger, a), logger)

	a.session = session.New(session.Deps{
		Extractor: extract.NewPDFExtractor(logger),
		Chunker: chunker.NewWordChunker(chunker.Options{
			ChunkSize:     cfg.Chunker.ChunkSize,
			Overlap:       cfg.Chunker.Overlap,
			MinTextChars:  cfg.Chunker.MinTextChars,
			MinChunkChars: cfg.Chunker.MinChunkChars,
		}),
		RAG:        service.NewRAGService(emb, st, logger),
		Answerer:   ans,
		Summarizer: sum,
		Metrics:    a.metrics,
	}, session.Options{
		TopK:                cfg.Retrieval.TopK,
		MinDocumentChars:    cfg.Chunker.MinDocumentChars,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
	}, logger)
	return a, nil
}

func answerOptions(c config.AnswererConfig) answer.Options {
	o := answer.DefaultOptions()
	o.ConfidenceFloor = c.ConfidenceFloor
	o.MinChunkChars = c.MinChunkChars
	o.PerChunkChars = c.PerChunkChars
	o.MaxContextChars = c.MaxContextChars
	o.MaxAnswerChars = c.MaxAnswerChars
	o.FallbackChunkChars = c.FallbackChunkChars
	return o
}

func qaLoader(c config.QAConfig) answer.QALoader {
	switch c.Type {
	case "huggingface":
		return func(ctx context.Context) (domain.QuestionAnswerer, error) {
			h := c.HuggingFace
			client, err := huggingface.NewClient(huggingface.Config{
				BaseURL:   h.BaseURL,
				Model:     h.Model,
				APIKeyEnv: h.APIKeyEnv,
				Timeout:   time.Duration(h.TimeoutSecs) * time.Second,
			})
			if err != nil {
				return nil, err
			}
			if err := client.Ping(ctx); err != nil {
				return nil, err
			}
			return client, nil
		}
	case "lexical":
		return func(context.Context) (domain.QuestionAnswerer, error) { return lexical.New(), nil }
	default:
		return nil
	}
}

func generatorLoader(c config.GeneratorConfig, logger *slog.Logger, a *app) answer.GeneratorLoader {
	switch c.Type {
	case "openai":
		return func(context.Context) (domain.Generator, error) {
			o := c.OpenAI
			return answeropenai.NewGenerator(answeropenai.Config{
				BaseURL:     o.BaseURL,
				APIKeyEnv:   o.APIKeyEnv,
				Model:       o.Model,
				Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
				Temperature: o.Temperature,
				MaxTokens:   o.MaxTokens,
			})
		}
	case "gemini":
		return func(ctx context.Context) (domain.Generator, error) {
			g := c.Gemini
			gen, err := answergemini.NewGenerator(ctx, answergemini.Config{
				APIKeyEnv:       g.APIKeyEnv,
				Model:           g.Model,
				Temperature:     g.Temperature,
				MaxOutputTokens: g.MaxOutputTokens,
			}, logger)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, gen)
			return gen, nil
		}
	default:
		return nil
	}
}
