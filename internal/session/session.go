// Package session is the application context shared by the hosting UIs: it
// runs upload processing and question answering and keeps the Q&A history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"studymate/internal/answer"
	"studymate/internal/domain"
	"studymate/internal/metrics"
	"studymate/internal/service"
)

const (
	reasonInsufficientText = "insufficient text extracted"
	reasonNoChunks         = "no chunks produced"
	previewRunes           = 200
)

var ErrEmptyQuestion = errors.New("question is empty")

type Options struct {
	TopK                int
	MinDocumentChars    int
	SummaryMaxSentences int
}

// Deps are the pipeline collaborators. Summarizer and Metrics may be nil.
type Deps struct {
	Extractor  domain.Extractor
	Chunker    domain.Chunker
	RAG        *service.RAGService
	Answerer   *answer.Answerer
	Summarizer domain.Summarizer
	Metrics    *metrics.Metrics
}

type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ProcessResult struct {
	Processed  []string      `json:"processed"`
	Skipped    []SkippedFile `json:"skipped"`
	ChunkCount int           `json:"chunk_count"`
	NoChunks   bool          `json:"no_chunks"`
	Overview   string        `json:"overview,omitempty"`
}

type Source struct {
	Source   string  `json:"source"`
	ChunkID  int     `json:"chunk_id"`
	Preview  string  `json:"preview"`
	Distance float64 `json:"distance"`
}

type AskResult struct {
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	NoContext bool     `json:"no_context"`
	Mode      string   `json:"mode"`
}

type Status struct {
	ID        string   `json:"id"`
	Files     []string `json:"files"`
	Ready     bool     `json:"ready"`
	Chunks    int      `json:"chunks"`
	Questions int      `json:"questions"`
	Mode      string   `json:"mode"`
}

// Session is mutated in place by every action. Callers serialize access.
type Session struct {
	ID string

	deps    Deps
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	files   []string
	ready   bool
	history []domain.HistoryEntry
}

// New creates an empty session with a fresh id.
func New(deps Deps, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK < 1 {
		opts.TopK = 3
	}
	if opts.MinDocumentChars <= 0 {
		opts.MinDocumentChars = 100
	}
	if opts.SummaryMaxSentences <= 0 {
		opts.SummaryMaxSentences = 3
	}
	if deps.Answerer == nil {
		deps.Answerer = answer.Unavailable()
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		deps:   deps,
		opts:   opts,
		logger: logger.With("session", id),
		now:    time.Now,
	}
}

// ProcessPDFs extracts, chunks and indexes a batch of uploads. Files that
// fail extraction or carry too little text are skipped. The index is only
// replaced when the batch yields at least one chunk.
func (s *Session) ProcessPDFs(ctx context.Context, uploads []domain.Upload) (ProcessResult, error) {
	var res ProcessResult
	var chunks []domain.Chunk
	var texts []string
	for _, up := range uploads {
		text, err := s.deps.Extractor.ExtractText(up.Name, up.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "extraction failed", "file", up.Name, "error", err)
			s.skip(&res, up.Name, err.Error())
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(text)) <= s.opts.MinDocumentChars {
			s.logger.WarnContext(ctx, "skipping file", "file", up.Name, "reason", reasonInsufficientText)
			s.skip(&res, up.Name, reasonInsufficientText)
			continue
		}
		fileChunks := s.deps.Chunker.Chunk(text, up.Name)
		if len(fileChunks) == 0 {
			s.skip(&res, up.Name, reasonNoChunks)
			continue
		}
		chunks = append(chunks, fileChunks...)
		texts = append(texts, text)
		res.Processed = append(res.Processed, up.Name)
		s.logger.InfoContext(ctx, "file processed", "file", up.Name, "chunks", len(fileChunks))
	}

	if len(chunks) == 0 {
		res.NoChunks = true
		return res, nil
	}
	if err := s.deps.RAG.IndexChunks(ctx, chunks); err != nil {
		s.countFiles("failed", len(res.Processed))
		return res, fmt.Errorf("build index: %w", err)
	}
	s.countFiles("processed", len(res.Processed))
	if m := s.deps.Metrics; m != nil {
		m.ChunksIndexed.Set(float64(len(chunks)))
	}
	res.ChunkCount = len(chunks)
	s.files = append([]string(nil), res.Processed...)
	s.ready = true

	if s.deps.Summarizer != nil {
		overview, err := s.deps.Summarizer.Summarize(strings.Join(texts, "\n"), s.opts.SummaryMaxSentences)
		if err != nil {
			s.logger.WarnContext(ctx, "overview failed", "error", err)
		}
		res.Overview = overview
	}
	return res, nil
}

func (s *Session) skip(res *ProcessResult, name, reason string) {
	res.Skipped = append(res.Skipped, SkippedFile{Name: name, Reason: reason})
	s.countFiles("skipped", 1)
}

func (s *Session) countFiles(status string, n int) {
	if s.deps.Metrics != nil && n > 0 {
		s.deps.Metrics.FilesProcessed.WithLabelValues(status).Add(float64(n))
	}
}

// Ask retrieves context for question, answers it and records the exchange.
// Retrieval and model failures are reported inside the answer text; the only
// error is ErrEmptyQuestion.
func (s *Session) Ask(ctx context.Context, question string) (AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, ErrEmptyQuestion
	}
	start := s.now()
	retrieved, err := s.deps.RAG.RetrieveRelevantChunks(ctx, question, s.opts.TopK)
	if err != nil {
		s.logger.ErrorContext(ctx, "retrieval failed", "error", err)
		ans := fmt.Sprintf("Error processing question: %v", err)
		s.history = append(s.history, domain.HistoryEntry{Timestamp: s.now(), Question: question, Answer: ans})
		s.countQuestion("error")
		return AskResult{
			Question: question,
			Answer:   ans,
			Sources:  []Source{},
			Mode:     s.deps.Answerer.Mode().String(),
		}, nil
	}
	texts := make([]string, len(retrieved))
	sources := make([]Source, len(retrieved))
	for i, rc := range retrieved {
		texts[i] = rc.Text
		sources[i] = Source{Source: rc.Source, ChunkID: rc.ChunkID, Preview: preview(rc.Text), Distance: rc.SimilarityScore}
	}
	ans := s.deps.Answerer.GenerateAnswer(ctx, question, texts)

	s.history = append(s.history, domain.HistoryEntry{
		Timestamp: s.now(),
		Question:  question,
		Answer:    ans,
		Context:   retrieved,
	})
	outcome := "answered"
	if len(retrieved) == 0 {
		outcome = "no_context"
	}
	s.countQuestion(outcome)
	if m := s.deps.Metrics; m != nil {
		m.AnswerDuration.Observe(s.now().Sub(start).Seconds())
	}
	s.logger.InfoContext(ctx, "question answered", "outcome", outcome, "sources", len(retrieved))
	return AskResult{
		Question:  question,
		Answer:    ans,
		Sources:   sources,
		NoContext: len(retrieved) == 0,
		Mode:      s.deps.Answerer.Mode().String(),
	}, nil
}

func (s *Session) countQuestion(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Questions.WithLabelValues(outcome).Inc()
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// History returns a copy of the recorded exchanges, oldest first.
func (s *Session) History() []domain.HistoryEntry {
	return append([]domain.HistoryEntry(nil), s.history...)
}

func (s *Session) Status() Status {
	return Status{
		ID:        s.ID,
		Files:     append([]string(nil), s.files...),
		Ready:     s.ready,
		Chunks:    s.deps.RAG.Len(),
		Questions: len(s.history),
		Mode:      s.deps.Answerer.Mode().String(),
	}
}

// Transcript renders the history as the downloadable plain-text file.
func (s *Session) Transcript() string {
	if len(s.history) == 0 {
		return "No Q&A history available."
	}
	var b strings.Builder
	b.WriteString("StudyMate Q&A Session History\n")
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	for i, h := range s.history {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, h.Question)
		fmt.Fprintf(&b, "Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "Answer: %s\n", h.Answer)
		b.WriteString(strings.Repeat("-", 30))
		b.WriteString("\n\n")
	}
	return b.String()
}
