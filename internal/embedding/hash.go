package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/rcliao/recall/internal/tokenize"
)

// HashEmbedder is an offline, deterministic embedder. Each token is hashed
// into one signed bucket and the result is normalised to unit length, so
// texts sharing words land close together.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	vec := make(Vector, e.dims)
	for _, tok := range tokenize.Words(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return normalize(vec), nil
}

func (e *HashEmbedder) Dims() int { return e.dims }

// normalize scales vec to unit length. Zero vectors are returned unchanged.
func normalize(vec Vector) Vector {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
