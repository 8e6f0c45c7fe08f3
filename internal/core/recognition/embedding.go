package recognition

import (
	"errors"
	"fmt"
	"math"
)

// EmbeddingDim is the dimensionality of face embeddings produced by the
// external encoder. Every embedding handled by this package has exactly
// this many elements.
const EmbeddingDim = 128

// ErrDimensionMismatch is returned when an embedding does not have
// EmbeddingDim elements.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedding is a 128-dimensional face vector. Treated as immutable once
// created.
type Embedding []float64

// Validate checks that the embedding has the expected dimensionality.
func (e Embedding) Validate() error {
	if len(e) != EmbeddingDim {
		return fmt.Errorf("%w: got %d elements, expected %d", ErrDimensionMismatch, len(e), EmbeddingDim)
	}
	return nil
}

// EuclideanDistance returns the L2 distance between two embeddings.
// Both slices must have the same length; the caller guarantees this.
func EuclideanDistance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func norm(e Embedding) float64 {
	var sum float64
	for _, v := range e {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func dot(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
