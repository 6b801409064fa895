package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate/internal/embedding"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	corpus := []string{
		"Photosynthesis converts light energy into chemical energy in plants.",
		"Mitochondria produce energy for the cell through respiration.",
		"Paris is the capital of France.",
	}

	t.Run("encode before prepare fails", func(t *testing.T) {
		e := NewEmbedder()
		_, err := e.Encode(ctx, []string{"x"})
		assert.Error(t, err)
	})

	t.Run("empty corpus", func(t *testing.T) {
		e := NewEmbedder()
		err := e.Prepare(ctx, nil)
		assert.ErrorIs(t, err, embedding.ErrEmptyCorpus)
	})

	t.Run("corpus without tokens keeps previous state", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))
		dim := e.Dimension()
		assert.Error(t, e.Prepare(ctx, []string{"123 456", "the a an"}))
		assert.Equal(t, dim, e.Dimension())
	})

	t.Run("vectors are unit length and deterministic", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))

		first, err := e.Encode(ctx, corpus)
		require.NoError(t, err)
		second, err := e.Encode(ctx, corpus)
		require.NoError(t, err)

		require.Len(t, first, len(corpus))
		assert.Equal(t, first, second)
		for _, v := range first {
			assert.Len(t, v, e.Dimension())
			assert.InDelta(t, 1.0, norm(v), 1e-5)
		}
	})

	t.Run("unknown words give zero vector", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))
		vecs, err := e.Encode(ctx, []string{"zebra xylophone"})
		require.NoError(t, err)
		assert.Equal(t, 0.0, norm(vecs[0]))
	})
}
