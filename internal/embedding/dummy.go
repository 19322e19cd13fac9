package embedding

import (
	"context"
	mathrand "math/rand"
)

// dummyService generates a deterministic embedding from a hash of the input
// text, so the same text always embeds to the same vector without calling
// out to a model. spec.md §4.8 permits this explicitly for tests; production
// deployments must select a real provider.
type dummyService struct {
	dimensions int
}

func newDummyService(dimensions int) Service {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &dummyService{dimensions: dimensions}
}

func (s *dummyService) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, s.dimensions)
	rng := mathrand.New(mathrand.NewSource(int64(simpleHash(text))))
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out, nil
}

func (s *dummyService) Dimensions() int { return s.dimensions }

func simpleHash(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return hash
}
