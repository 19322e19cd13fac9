package semantic

import (
	"context"
	"fmt"

	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/embedding"
)

// NewFromConfig builds a Store by selecting a Backend per cfg.Memory.Backend
// and wiring it to an embedding.Service per cfg.Memory.Embedding*, mirroring
// the teacher's factory.go dispatch-by-string-field pattern.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Store, error) {
	embedder, err := embedding.New(
		cfg.Memory.EmbeddingProvider,
		cfg.Memory.EmbeddingModel,
		cfg.Memory.EmbeddingAPIKey,
		cfg.Memory.EmbeddingBaseURL,
		cfg.Memory.EmbeddingDims,
	)
	if err != nil {
		return nil, fmt.Errorf("semantic: build embedding service: %w", err)
	}

	var backend Backend
	switch cfg.Memory.Backend {
	case "pgvector":
		backend, err = NewPgVectorBackend(ctx, cfg.Database.DSN, embedder.Dimensions())
	case "weaviate":
		backend, err = NewWeaviateBackend(ctx, cfg.Memory.WeaviateURL, "http", "")
	case "memory", "":
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("semantic: unsupported backend %q", cfg.Memory.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("semantic: build backend %q: %w", cfg.Memory.Backend, err)
	}

	return New(backend, embedder), nil
}
