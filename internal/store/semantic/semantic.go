// Package semantic implements the semantic memory tier spec.md §4.8
// describes: three embedding-backed collections (cost optimization
// knowledge, performance patterns, customer context) that agents write
// textual summaries into and query by nearest-neighbor similarity filtered
// by arbitrary payload predicates. The vector backend is pluggable
// (pgvector, Weaviate, or an in-memory linear scan for tests), grounded on
// the teacher's internal/memory package, which picks the same three
// backends for its VectorMemory interface.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/embedding"
)

// Collection names the three semantic-memory collections spec.md §4.8
// requires. Each maps to its own table/class/namespace in the backend.
type Collection string

const (
	CostOptimizationKnowledge Collection = "cost_optimization_knowledge"
	PerformancePatterns       Collection = "performance_patterns"
	CustomerContext           Collection = "customer_context"
)

func (c Collection) valid() bool {
	switch c {
	case CostOptimizationKnowledge, PerformancePatterns, CustomerContext:
		return true
	default:
		return false
	}
}

// Record is a single stored item: an embedded summary plus an arbitrary
// payload that Query can filter on.
type Record struct {
	ID        string
	Summary   string
	Payload   map[string]any
	CreatedAt time.Time
}

// Match is a single nearest-neighbor search hit.
type Match struct {
	Record
	Score float32
}

// Predicate filters Matches by payload after the nearest-neighbor search
// returns, since none of the three backends natively express the same
// predicate language (pgvector: JSONB containment, Weaviate: GraphQL
// Where filters, memory: none at all). Backends never see it: Store.Search
// applies Predicate to whatever the backend returns, so behavior is uniform.
type Predicate func(payload map[string]any) bool

// Backend is the minimal vector-storage contract the three concrete
// backends satisfy. It operates on already-embedded vectors; Store itself
// owns turning text into vectors via the embedding.Service.
type Backend interface {
	Upsert(ctx context.Context, collection Collection, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, collection Collection, vector []float32, topK int) ([]Match, error)
	Close() error
}

// Store is the public semantic-memory API. It wires a Backend together
// with an embedding.Service so callers never handle raw vectors.
type Store struct {
	backend  Backend
	embedder embedding.Service
}

// New builds a Store over the given backend and embedding service.
func New(backend Backend, embedder embedding.Service) *Store {
	return &Store{backend: backend, embedder: embedder}
}

// Put embeds summary and stores it with payload under collection, keyed by
// id (callers typically pass core.NewID() for fresh records or a stable
// business key to upsert in place).
func (s *Store) Put(ctx context.Context, collection Collection, id, summary string, payload map[string]any) error {
	if !collection.valid() {
		return core.New(core.KindValidation, "semantic", fmt.Sprintf("unknown collection %q", collection), nil)
	}
	if id == "" {
		return core.New(core.KindValidation, "semantic", "id must not be empty", nil)
	}
	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return core.New(core.KindUnavailable, "semantic", "embed summary", err)
	}

	stored := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		stored[k] = v
	}
	stored["_summary"] = summary
	stored["_created_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.backend.Upsert(ctx, collection, id, vec, stored); err != nil {
		return core.New(core.KindUnavailable, "semantic", "upsert", err)
	}
	return nil
}

// Search embeds query and returns the topK nearest matches in collection
// whose payload satisfies pred (pred may be nil to accept everything).
func (s *Store) Search(ctx context.Context, collection Collection, query string, topK int, pred Predicate) ([]Match, error) {
	if !collection.valid() {
		return nil, core.New(core.KindValidation, "semantic", fmt.Sprintf("unknown collection %q", collection), nil)
	}
	if topK <= 0 {
		return nil, core.New(core.KindValidation, "semantic", "topK must be positive", nil)
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "semantic", "embed query", err)
	}

	// Over-fetch so post-filtering by pred still has a chance of returning
	// topK results.
	fetch := topK
	if pred != nil {
		fetch = topK * 4
		if fetch < topK+16 {
			fetch = topK + 16
		}
	}

	matches, err := s.backend.Search(ctx, collection, vec, fetch)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "semantic", "search", err)
	}

	if pred == nil {
		if len(matches) > topK {
			matches = matches[:topK]
		}
		return matches, nil
	}

	filtered := make([]Match, 0, topK)
	for _, m := range matches {
		if pred(m.Payload) {
			filtered = append(filtered, m)
			if len(filtered) == topK {
				break
			}
		}
	}
	return filtered, nil
}

// Close releases backend resources (connection pools, HTTP clients).
func (s *Store) Close() error {
	return s.backend.Close()
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

func unmarshalPayload(data []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
