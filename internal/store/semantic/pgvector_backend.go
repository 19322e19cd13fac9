package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// pgvectorBackend stores every collection in its own table named
// "semantic_<collection>", adapted from the teacher's PgVectorMemory which
// hardcodes a single table per instance; here one backend instance serves
// all three spec.md §4.8 collections by deriving the table name from the
// Collection value.
type pgvectorBackend struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgVectorBackend connects to dsn and ensures a table per collection,
// each with an HNSW cosine index, following the teacher's
// ensureTableExists shape.
func NewPgVectorBackend(ctx context.Context, dsn string, dimensions int) (Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector backend: dsn must not be empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("pgvector backend: dimensions must be positive")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector backend: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgvector backend: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector backend: ping: %w", err)
	}

	b := &pgvectorBackend{pool: pool, dimensions: dimensions}
	for _, c := range []Collection{CostOptimizationKnowledge, PerformancePatterns, CustomerContext} {
		if err := b.ensureTable(ctx, c); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvector backend: ensure table for %s: %w", c, err)
		}
	}
	return b, nil
}

func (b *pgvectorBackend) tableName(c Collection) string {
	return "semantic_" + sanitizeIdentifier(string(c))
}

func (b *pgvectorBackend) ensureTable(ctx context.Context, c Collection) error {
	if _, err := b.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	table := b.tableName(c)
	createTableSQL := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id TEXT PRIMARY KEY,
            embedding VECTOR(%d),
            payload JSONB,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`, table, b.dimensions)
	if _, err := b.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	indexSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64);`,
		sanitizeIdentifier(table), table)
	if _, err := b.pool.Exec(ctx, indexSQL); err != nil {
		return fmt.Errorf("create hnsw index on %s: %w", table, err)
	}

	ginSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_payload_gin ON %s USING GIN (payload);`,
		sanitizeIdentifier(table), table)
	if _, err := b.pool.Exec(ctx, ginSQL); err != nil {
		return fmt.Errorf("create gin index on %s: %w", table, err)
	}
	return nil
}

func (b *pgvectorBackend) Upsert(ctx context.Context, collection Collection, id string, vector []float32, payload map[string]any) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	vec := pgvector.NewVector(vector)
	table := b.tableName(collection)
	upsertSQL := fmt.Sprintf(`
        INSERT INTO %s (id, embedding, payload)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            embedding = EXCLUDED.embedding,
            payload = EXCLUDED.payload,
            updated_at = NOW();`, table)
	if _, err := b.pool.Exec(ctx, upsertSQL, id, vec, payloadJSON); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func (b *pgvectorBackend) Search(ctx context.Context, collection Collection, vector []float32, topK int) ([]Match, error) {
	queryVec := pgvector.NewVector(vector)
	table := b.tableName(collection)
	querySQL := fmt.Sprintf(`
        SELECT id, payload, 1 - (embedding <=> $1) AS similarity
        FROM %s
        ORDER BY embedding <=> $1
        LIMIT $2;`, table)

	rows, err := b.pool.Query(ctx, querySQL, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id          string
			payloadJSON []byte
			score       float32
		)
		if err := rows.Scan(&id, &payloadJSON, &score); err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", table, err)
		}
		payload, err := unmarshalPayload(payloadJSON)
		if err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", id, err)
		}
		matches = append(matches, Match{Record: Record{ID: id, Payload: payload}, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %s: %w", table, err)
	}
	return matches, nil
}

func (b *pgvectorBackend) Close() error {
	b.pool.Close()
	return nil
}

// sanitizeIdentifier restricts table/index-name fragments to
// alphanumeric and underscore, since collection names are compile-time
// constants here but this still guards against a future caller plumbing
// an unvalidated string through.
func sanitizeIdentifier(identifier string) string {
	var sb strings.Builder
	for _, r := range identifier {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	if out == "" || strings.Trim(out, "_") == "" {
		return "identifier"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
