package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"studymate/internal/vectorstore"
)

// Storage is an in-memory flat index using brute-force squared Euclidean
// distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
}

// NewStorage returns an empty index.
func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Build(_ context.Context, vectors [][]float32) error {
	dim, err := vectorstore.CheckMatrix(vectors)
	if err != nil {
		return fmt.Errorf("memory build: %w", err)
	}
	rows := make([][]float32, len(vectors))
	for i, v := range vectors {
		rows[i] = append([]float32(nil), v...)
	}
	s.mu.Lock()
	s.dimension = dim
	s.vectors = rows
	s.mu.Unlock()
	return nil
}

func (s *Storage) Search(_ context.Context, query []float32, k int) ([]vectorstore.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("memory search: %w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(query), s.dimension)
	}
	if k <= 0 {
		k = 1
	}
	hits := make([]vectorstore.Neighbor, len(s.vectors))
	for i := range s.vectors {
		hits[i] = vectorstore.Neighbor{Position: i, Distance: squaredL2(s.vectors[i], query)}
	}
	// Ties keep row order so repeated builds return identical results.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func squaredL2(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
