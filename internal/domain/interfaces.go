package domain

import (
	"context"
	"time"
)

// Upload is a single file handed over by the hosting interface.
type Upload struct {
	Name string
	Data []byte
}

// Chunk is a word window of a source document used for indexing.
type Chunk struct {
	Text      string
	Source    string
	ChunkID   int
	StartWord int
}

// RetrievedChunk is a chunk returned by retrieval together with its raw
// squared L2 distance to the query. Lower is closer.
type RetrievedChunk struct {
	Chunk
	SimilarityScore float64
}

// HistoryEntry records one answered question.
type HistoryEntry struct {
	Timestamp time.Time
	Question  string
	Answer    string
	Context   []RetrievedChunk
}

// Span is an extractive answer with the model's confidence.
type Span struct {
	Text  string
	Score float64
}

// Extractor pulls normalized text out of an uploaded document.
type Extractor interface {
	ExtractText(name string, data []byte) (string, error)
}

// Chunker splits a document's text into chunks suitable for indexing.
type Chunker interface {
	Chunk(text, source string) []Chunk
}

// Embedder converts free text into fixed-width vectors.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// QuestionAnswerer extracts an answer span for a question from a context.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question, passage string) (Span, error)
}

// Generator produces free text conditioned on a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
