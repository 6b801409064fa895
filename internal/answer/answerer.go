// Package answer turns retrieved chunks into a short answer string using an
// extractive question-answering backend, or a generative one when the
// extractive backend cannot be loaded.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"studymate/internal/domain"
)

const (
	msgNoContext   = "No relevant context found in documents. Please check if PDFs were processed correctly."
	msgUnavailable = "Model not available. Please restart the application."
	msgNoValidText = "No valid text found in the documents."
	msgUnclear     = "Could not generate a clear answer."
	msgNoGenerated = "Could not generate answer from the provided text."
)

var errNotConfigured = errors.New("backend not configured")

// Mode is the loaded backend of an Answerer.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeQA
	ModeFallback
	ModeUnavailable
)

func (m Mode) String() string {
	switch m {
	case ModeQA:
		return "qa"
	case ModeFallback:
		return "fallback"
	case ModeUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// Options are the tunables of context assembly and answer acceptance.
type Options struct {
	MinChunkChars      int
	PerChunkChars      int
	MaxContextChars    int
	MinAnswerChars     int
	ConfidenceFloor    float64
	MaxAnswerChars     int
	FallbackChunkChars int
	MinGeneratedChars  int
}

func DefaultOptions() Options {
	return Options{
		MinChunkChars:      10,
		PerChunkChars:      400,
		MaxContextChars:    3000,
		MinAnswerChars:     1,
		ConfidenceFloor:    0.001,
		MaxAnswerChars:     200,
		FallbackChunkChars: 200,
		MinGeneratedChars:  10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = d.MinChunkChars
	}
	if o.PerChunkChars <= 0 {
		o.PerChunkChars = d.PerChunkChars
	}
	if o.MaxContextChars <= 0 {
		o.MaxContextChars = d.MaxContextChars
	}
	if o.MinAnswerChars <= 0 {
		o.MinAnswerChars = d.MinAnswerChars
	}
	if o.ConfidenceFloor < 0 {
		o.ConfidenceFloor = d.ConfidenceFloor
	}
	if o.MaxAnswerChars <= 0 {
		o.MaxAnswerChars = d.MaxAnswerChars
	}
	if o.FallbackChunkChars <= 0 {
		o.FallbackChunkChars = d.FallbackChunkChars
	}
	if o.MinGeneratedChars <= 0 {
		o.MinGeneratedChars = d.MinGeneratedChars
	}
	return o
}

// QALoader and GeneratorLoader construct a backend. A nil loader, or one that
// returns a nil backend, counts as a failed load.
type (
	QALoader        func(ctx context.Context) (domain.QuestionAnswerer, error)
	GeneratorLoader func(ctx context.Context) (domain.Generator, error)
)

// Answerer holds exactly one backend matching its mode. The zero value is
// uninitialized and answers as unavailable.
type Answerer struct {
	mode   Mode
	qa     domain.QuestionAnswerer
	gen    domain.Generator
	opts   Options
	logger *slog.Logger
}

// Load resolves the backend once: the QA loader is tried first, then the
// generator loader. Failures are logged and never retried.
func Load(ctx context.Context, opts Options, loadQA QALoader, loadGen GeneratorLoader, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Answerer{opts: opts.withDefaults(), logger: logger}

	err := errNotConfigured
	if loadQA != nil {
		var qa domain.QuestionAnswerer
		if qa, err = loadQA(ctx); err == nil && qa != nil {
			a.mode, a.qa = ModeQA, qa
			logger.InfoContext(ctx, "answerer ready", "mode", a.mode)
			return a
		}
	}
	logger.WarnContext(ctx, "qa backend unavailable", "error", err)

	err = errNotConfigured
	if loadGen != nil {
		var gen domain.Generator
		if gen, err = loadGen(ctx); err == nil && gen != nil {
			a.mode, a.gen = ModeFallback, gen
			logger.InfoContext(ctx, "answerer ready", "mode", a.mode)
			return a
		}
	}
	logger.ErrorContext(ctx, "generator backend unavailable", "error", err)
	a.mode = ModeUnavailable
	return a
}

// Unavailable returns an Answerer that reports ModeUnavailable.
func Unavailable() *Answerer {
	return &Answerer{mode: ModeUnavailable, opts: DefaultOptions(), logger: slog.Default()}
}

func (a *Answerer) Mode() Mode {
	if a == nil {
		return ModeUninitialized
	}
	return a.mode
}

// GenerateAnswer answers query from the retrieved chunk texts. Failures are
// reported in the returned text.
func (a *Answerer) GenerateAnswer(ctx context.Context, query string, chunks []string) string {
	if len(chunks) == 0 {
		return msgNoContext
	}
	switch a.Mode() {
	case ModeQA:
		return a.extractive(ctx, query, chunks)
	case ModeFallback:
		return a.generative(ctx, query, chunks)
	default:
		return msgUnavailable
	}
}

func (a *Answerer) extractive(ctx context.Context, query string, chunks []string) string {
	valid := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(c)) <= a.opts.MinChunkChars {
			continue
		}
		valid = append(valid, truncateRunes(c, a.opts.PerChunkChars))
	}
	if len(valid) == 0 {
		return msgNoValidText
	}
	window := strings.Join(valid, " ... ")
	if utf8.RuneCountInString(window) > a.opts.MaxContextChars {
		window = truncateRunes(window, a.opts.MaxContextChars) + "..."
	}

	span, err := a.qa.Answer(ctx, query, window)
	if err != nil {
		a.logger.ErrorContext(ctx, "qa failed", "error", err)
		return fmt.Sprintf("Error processing question: %v", err)
	}
	text := strings.TrimSpace(span.Text)
	if utf8.RuneCountInString(text) > a.opts.MinAnswerChars && span.Score > a.opts.ConfidenceFloor {
		if utf8.RuneCountInString(text) > a.opts.MaxAnswerChars {
			text = truncateRunes(text, a.opts.MaxAnswerChars) + "..."
		}
		return text
	}
	a.logger.DebugContext(ctx, "low confidence answer", "score", span.Score)
	return fmt.Sprintf("Based on available text: %s (Low confidence - please verify)", text)
}

// BuildPrompt renders the prompt used by the generative backend.
func BuildPrompt(query, text string) string {
	return fmt.Sprintf("Based on this text, answer the question: %s\n\nText: %s\n\nAnswer:", query, text)
}

func (a *Answerer) generative(ctx context.Context, query string, chunks []string) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		parts = append(parts, truncateRunes(c, a.opts.FallbackChunkChars))
	}
	prompt := BuildPrompt(query, strings.Join(parts, " "))

	out, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.logger.ErrorContext(ctx, "generation failed", "error", err)
		return fmt.Sprintf("Fallback error: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		return msgNoGenerated
	}
	text := strings.TrimSpace(strings.ReplaceAll(out, prompt, ""))
	if utf8.RuneCountInString(text) > a.opts.MinGeneratedChars {
		return text
	}
	return msgUnclear
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
