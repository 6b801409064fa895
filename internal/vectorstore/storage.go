package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when vectors in a build or query disagree
// on width.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is a search hit: the row position of the matched vector and its
// squared Euclidean distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// Storage is an exact nearest-neighbour index over a matrix of vectors.
// Build replaces any previous contents wholesale. Search returns at most k
// neighbours ordered by ascending distance.
type Storage interface {
	Build(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Len() int
}

// CheckMatrix verifies that all rows share one non-zero width and returns it.
func CheckMatrix(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, errors.New("no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, errors.New("invalid dimension")
	}
	for _, v := range vectors {
		if len(v) != dim {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}
