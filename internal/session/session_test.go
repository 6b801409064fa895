package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate/internal/answer"
	"studymate/internal/answer/lexical"
	"studymate/internal/chunker"
	"studymate/internal/domain"
	"studymate/internal/embedding/tfidf"
	"studymate/internal/metrics"
	"studymate/internal/service"
	"studymate/internal/summarizer"
	"studymate/internal/vectorstore/memory"
)

type stubExtractor map[string]string

func (s stubExtractor) ExtractText(name string, _ []byte) (string, error) {
	text, ok := s[name]
	if !ok {
		return "", errors.New("malformed PDF")
	}
	return text, nil
}

const biologyNotes = "Photosynthesis happens in the chloroplast of plant cells and converts light into sugar. " +
	"The mitochondria is the powerhouse of the cell and releases energy through respiration. " +
	"Ribosomes read messenger RNA and assemble proteins from amino acids. " +
	"The nucleus stores genetic information as DNA wrapped around histone proteins. " +
	"Cell membranes control which molecules enter and leave the cell."

func newTestSession(t *testing.T, ex domain.Extractor) (*Session, *metrics.Metrics) {
	t.Helper()
	return newTestSessionWithEmbedder(t, ex, tfidf.NewEmbedder())
}

func newTestSessionWithEmbedder(t *testing.T, ex domain.Extractor, emb domain.Embedder) (*Session, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	ans := answer.Load(context.Background(), answer.DefaultOptions(),
		func(context.Context) (domain.QuestionAnswerer, error) { return lexical.New(), nil },
		nil, nil)
	s := New(Deps{
		Extractor:  ex,
		Chunker:    chunker.NewWordChunker(chunker.Options{ChunkSize: 20, Overlap: 5}),
		RAG:        service.NewRAGService(emb, memory.NewStorage(), nil),
		Answerer:   ans,
		Summarizer: summarizer.NewFrequencySummarizer(),
		Metrics:    m,
	}, Options{TopK: 3}, nil)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, m
}

func metricValue(t *testing.T, m *metrics.Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" {
				match := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == label {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestProcessPDFs(t *testing.T) {
	ctx := context.Background()
	s, m := newTestSession(t, stubExtractor{
		"biology.pdf": biologyNotes,
		"short.pdf":   "Too short to matter.",
	})

	res, err := s.ProcessPDFs(ctx, []domain.Upload{
		{Name: "biology.pdf"},
		{Name: "short.pdf"},
		{Name: "broken.pdf"},
	})
	require.NoError(t, err)
	assert.False(t, res.NoChunks)
	assert.Equal(t, []string{"biology.pdf"}, res.Processed)
	assert.Equal(t, []SkippedFile{
		{Name: "short.pdf", Reason: "insufficient text extracted"},
		{Name: "broken.pdf", Reason: "malformed PDF"},
	}, res.Skipped)
	assert.Positive(t, res.ChunkCount)
	assert.NotEmpty(t, res.Overview)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, []string{"biology.pdf"}, st.Files)
	assert.Equal(t, res.ChunkCount, st.Chunks)
	assert.Equal(t, "qa", st.Mode)

	assert.Equal(t, float64(1), metricValue(t, m, "studymate_files_processed_total", "processed"))
	assert.Equal(t, float64(2), metricValue(t, m, "studymate_files_processed_total", "skipped"))
	assert.Equal(t, float64(res.ChunkCount), metricValue(t, m, "studymate_chunks_indexed", ""))
}

func TestProcessPDFs_NoChunksKeepsState(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, stubExtractor{"biology.pdf": biologyNotes, "short.pdf": "tiny"})

	_, err := s.ProcessPDFs(ctx, []domain.Upload{{Name: "biology.pdf"}})
	require.NoError(t, err)
	before := s.Status()

	res, err := s.ProcessPDFs(ctx, []domain.Upload{{Name: "short.pdf"}, {Name: "missing.pdf"}})
	require.NoError(t, err)
	assert.True(t, res.NoChunks)
	assert.Empty(t, res.Processed)
	assert.Len(t, res.Skipped, 2)
	assert.Equal(t, before, s.Status())
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	s, m := newTestSession(t, stubExtractor{"biology.pdf": biologyNotes})

	t.Run("before processing", func(t *testing.T) {
		res, err := s.Ask(ctx, "Where does photosynthesis happen?")
		require.NoError(t, err)
		assert.True(t, res.NoContext)
		assert.Empty(t, res.Sources)
		assert.Equal(t, "No relevant context found in documents. Please check if PDFs were processed correctly.", res.Answer)
	})

	t.Run("after processing", func(t *testing.T) {
		_, err := s.ProcessPDFs(ctx, []domain.Upload{{Name: "biology.pdf"}})
		require.NoError(t, err)

		res, err := s.Ask(ctx, "  Where does photosynthesis happen?  ")
		require.NoError(t, err)
		assert.False(t, res.NoContext)
		assert.Equal(t, "Where does photosynthesis happen?", res.Question)
		assert.Contains(t, strings.ToLower(res.Answer), "photosynthesis")
		assert.NotContains(t, res.Answer, "Low confidence")
		require.NotEmpty(t, res.Sources)
		assert.LessOrEqual(t, len(res.Sources), 3)
		assert.Equal(t, "biology.pdf", res.Sources[0].Source)
		assert.Equal(t, "qa", res.Mode)
	})

	t.Run("empty question", func(t *testing.T) {
		_, err := s.Ask(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	history := s.History()
	require.Len(t, history, 2)
	assert.Empty(t, history[0].Context)
	assert.NotEmpty(t, history[1].Context)
	assert.Equal(t, 2, s.Status().Questions)
	assert.Equal(t, float64(1), metricValue(t, m, "studymate_questions_total", "no_context"))
	assert.Equal(t, float64(1), metricValue(t, m, "studymate_questions_total", "answered"))
}

// flakyEmbedder encodes normally until offline is set.
type flakyEmbedder struct {
	*tfidf.Embedder
	offline bool
}

func (f *flakyEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if f.offline {
		return nil, errors.New("embedding API: 503 service unavailable")
	}
	return f.Embedder.Encode(ctx, texts)
}

func TestAsk_RetrievalFailureBecomesAnswer(t *testing.T) {
	ctx := context.Background()
	emb := &flakyEmbedder{Embedder: tfidf.NewEmbedder()}
	s, m := newTestSessionWithEmbedder(t, stubExtractor{"biology.pdf": biologyNotes}, emb)
	_, err := s.ProcessPDFs(ctx, []domain.Upload{{Name: "biology.pdf"}})
	require.NoError(t, err)

	emb.offline = true
	res, err := s.Ask(ctx, "What does the nucleus store?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Answer, "Error processing question: "), res.Answer)
	assert.Contains(t, res.Answer, "503 service unavailable")
	assert.Empty(t, res.Sources)
	assert.Equal(t, "qa", res.Mode)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, res.Answer, history[0].Answer)
	assert.Equal(t, "What does the nucleus store?", history[0].Question)
	assert.Equal(t, float64(1), metricValue(t, m, "studymate_questions_total", "error"))
}

func TestTranscript(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, stubExtractor{})
	assert.Equal(t, "No Q&A history available.", s.Transcript())

	_, err := s.Ask(ctx, "first?")
	require.NoError(t, err)
	_, err = s.Ask(ctx, "second?")
	require.NoError(t, err)

	noCtx := "No relevant context found in documents. Please check if PDFs were processed correctly."
	want := "StudyMate Q&A Session History\n" +
		strings.Repeat("=", 50) + "\n\n" +
		"Q1: first?\nTime: 2024-01-02 03:04:05\nAnswer: " + noCtx + "\n" +
		strings.Repeat("-", 30) + "\n\n" +
		"Q2: second?\nTime: 2024-01-02 03:04:05\nAnswer: " + noCtx + "\n" +
		strings.Repeat("-", 30) + "\n\n"
	assert.Equal(t, want, s.Transcript())
}

func TestReadUploads(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"a.pdf": "A", "B.PDF": "B", "notes.txt": "T"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	uploads, err := ReadUploads([]string{filepath.Join(dir, "*"), filepath.Join(dir, "a.pdf")})
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	names := []string{uploads[0].Name, uploads[1].Name}
	assert.ElementsMatch(t, []string{"a.pdf", "B.PDF"}, names)

	_, err = ReadUploads([]string{filepath.Join(dir, "*.txt")})
	assert.ErrorIs(t, err, ErrNoPDFs)

	_, err = ReadUploads([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}
