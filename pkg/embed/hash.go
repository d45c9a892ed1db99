package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Hash is a bag-of-words feature-hashing embedder. Texts sharing words end
// up close; it needs no network and is deterministic.
type Hash struct {
	dim int
}

var _ Embedder = (*Hash)(nil)

// NewHash returns a Hash embedder. dim <= 0 means DefaultDimension.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Hash{dim: dim}
}

func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyInput
	}
	vec := make([]float32, h.dim)
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		sum := f.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(h.dim)] += sign
	}
	return normalize(vec), nil
}

func (h *Hash) Dimension() int { return h.dim }
