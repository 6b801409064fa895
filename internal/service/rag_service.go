package service

import (
	"context"
	"fmt"
	"log/slog"

	"studymate/internal/domain"
	"studymate/internal/embedding"
	"studymate/internal/vectorstore"
)

// RAGService owns the chunk list and the vector index built over it.
// chunks[i] always corresponds to row i of the index.
type RAGService struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	logger   *slog.Logger
	chunks   []domain.Chunk
}

// NewRAGService wires an embedder and a vector store into an empty index.
func NewRAGService(embedder domain.Embedder, store vectorstore.Storage, logger *slog.Logger) *RAGService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{embedder: embedder, store: store, logger: logger}
}

// IndexChunks encodes every chunk and replaces the current index with one
// built from the result. On failure the previous chunks and index stay in
// place, unless the store no longer holds them, in which case the index is
// emptied.
func (s *RAGService) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("index chunks: %w", embedding.ErrEmptyCorpus)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := s.embedder.Prepare(ctx, texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := s.embedder.Encode(ctx, texts)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err == nil {
		err = s.store.Build(ctx, vectors)
	}
	if err != nil {
		if s.store.Len() != len(s.chunks) {
			// the store lost the rows the current chunks point at
			s.logger.ErrorContext(ctx, "index dropped after failed rebuild", "chunks", len(s.chunks), "rows", s.store.Len())
			s.chunks = nil
		}
		s.restoreEmbedder(ctx)
		return fmt.Errorf("index chunks: %w", err)
	}
	s.chunks = append([]domain.Chunk(nil), chunks...)
	s.logger.InfoContext(ctx, "index built", "embedder", s.embedder.Name(), "chunks", len(chunks), "dimension", len(vectors[0]))
	return nil
}

// restoreEmbedder re-fits the embedder on the previous corpus so queries stay
// in the vector space of the index that is still live.
func (s *RAGService) restoreEmbedder(ctx context.Context) {
	if len(s.chunks) == 0 {
		return
	}
	texts := make([]string, len(s.chunks))
	for i, ch := range s.chunks {
		texts[i] = ch.Text
	}
	if err := s.embedder.Prepare(ctx, texts); err != nil {
		s.logger.ErrorContext(ctx, "restore embedder", "error", err)
	}
}

// RetrieveRelevantChunks returns at most k chunks nearest to query ordered by
// ascending squared distance. An empty index yields an empty result.
func (s *RAGService) RetrieveRelevantChunks(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if len(s.chunks) == 0 || s.store.Len() == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if k < 1 {
		k = 1
	}
	vecs, err := s.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("encode query: got %d vectors", len(vecs))
	}
	hits, err := s.store.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]domain.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(s.chunks) {
			continue
		}
		out = append(out, domain.RetrievedChunk{Chunk: s.chunks[h.Position], SimilarityScore: h.Distance})
	}
	return out, nil
}

// Chunks returns the currently indexed chunks.
func (s *RAGService) Chunks() []domain.Chunk { return s.chunks }

// Len reports the number of indexed chunks.
func (s *RAGService) Len() int { return len(s.chunks) }
