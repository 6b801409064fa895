// Package embedding holds helpers shared by the embedder implementations.
package embedding

import (
	"errors"
	"math"
)

// ErrEmptyCorpus is returned when an embedder is prepared or asked to encode
// with no input texts.
var ErrEmptyCorpus = errors.New("empty corpus")

// L2Normalize scales v to unit length in place. Zero vectors are left as is.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
