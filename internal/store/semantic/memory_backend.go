package semantic

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryBackend is a linear-scan in-process Backend: no persistence, no
// network calls. spec.md §4.8 calls this out explicitly as the backend for
// tests and backend-less deployments, mirroring the teacher's dummy
// embedding provider doing the same job for the embedding side.
type memoryBackend struct {
	mu   sync.RWMutex
	data map[Collection]map[string]memoryItem
}

type memoryItem struct {
	vector  []float32
	payload map[string]any
}

// NewMemoryBackend builds a Backend with no external dependencies.
func NewMemoryBackend() Backend {
	return &memoryBackend{data: make(map[Collection]map[string]memoryItem)}
}

func (b *memoryBackend) Upsert(_ context.Context, collection Collection, id string, vector []float32, payload map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, ok := b.data[collection]
	if !ok {
		items = make(map[string]memoryItem)
		b.data[collection] = items
	}
	stored := make(map[string]any, len(payload))
	for k, v := range payload {
		stored[k] = v
	}
	items[id] = memoryItem{vector: append([]float32(nil), vector...), payload: stored}
	return nil
}

func (b *memoryBackend) Search(_ context.Context, collection Collection, vector []float32, topK int) ([]Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := b.data[collection]
	matches := make([]Match, 0, len(items))
	for id, item := range items {
		matches = append(matches, Match{
			Record: Record{ID: id, Payload: item.payload},
			Score:  cosineSimilarity(vector, item.vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (b *memoryBackend) Close() error { return nil }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
