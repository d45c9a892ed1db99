// Package embed turns conversation text into vectors for similarity search.
//
// OpenAI calls the embeddings API; Hash is a deterministic local embedder
// for development servers and tests.
package embed

import (
	"context"
	"errors"
	"math"
)

// DefaultDimension matches the vector column of the conversations table.
const DefaultDimension = 384

// ErrEmptyInput is returned for blank text.
var ErrEmptyInput = errors.New("embed: empty input")

// Embedder converts text into a dense vector of length Dimension.
// Vectors are L2-normalized.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
