package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// weaviateBackend maps each Collection onto its own Weaviate class
// ("SemanticCostOptimizationKnowledge", etc.), adapted from the teacher's
// WeaviateMemory which serves one hardcoded class per instance.
type weaviateBackend struct {
	client *weaviate.Client
}

// NewWeaviateBackend connects to a Weaviate instance at host and ensures a
// class per collection exists, following the teacher's ensureClassExists
// shape with vectors supplied externally (Vectorizer: "none").
func NewWeaviateBackend(ctx context.Context, host, scheme, apiKey string) (Backend, error) {
	if host == "" {
		return nil, fmt.Errorf("weaviate backend: host must not be empty")
	}
	if scheme == "" {
		scheme = "http"
	}
	clientConfig := weaviate.Config{Host: host, Scheme: scheme}
	if apiKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("weaviate backend: create client: %w", err)
	}

	b := &weaviateBackend{client: client}
	for _, c := range []Collection{CostOptimizationKnowledge, PerformancePatterns, CustomerContext} {
		if err := b.ensureClass(ctx, c); err != nil {
			return nil, fmt.Errorf("weaviate backend: ensure class for %s: %w", c, err)
		}
	}
	return b, nil
}

func (b *weaviateBackend) className(c Collection) string {
	parts := strings.Split(string(c), "_")
	var sb strings.Builder
	sb.WriteString("Semantic")
	for _, p := range parts {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return sb.String()
}

func (b *weaviateBackend) ensureClass(ctx context.Context, c Collection) error {
	name := b.className(c)
	existing, err := b.client.Schema().ClassGetter().WithClassName(name).Do(ctx)
	if err == nil && existing != nil {
		return nil
	}

	class := &models.Class{
		Class:      name,
		Vectorizer: "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{{
			Name:            "itemId",
			DataType:        []string{"text"},
			IndexFilterable: boolPtr(true),
			IndexSearchable: boolPtr(false),
		}, {
			Name:     "payloadJson",
			DataType: []string{"text"},
		}},
	}
	if err := b.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", name, err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func (b *weaviateBackend) Upsert(ctx context.Context, collection Collection, id string, vector []float32, payload map[string]any) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	class := b.className(collection)

	// Upsert-by-delete-then-create, matching the teacher's WeaviateMemory
	// approach since the Go client has no native upsert-by-external-id.
	if err := b.deleteByItemID(ctx, class, id); err != nil {
		return fmt.Errorf("delete existing item %s: %w", id, err)
	}

	properties := map[string]interface{}{
		"itemId":      id,
		"payloadJson": string(payloadJSON),
	}
	_, err = b.client.Data().Creator().
		WithClassName(class).
		WithProperties(properties).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("create object in %s: %w", class, err)
	}
	return nil
}

func (b *weaviateBackend) deleteByItemID(ctx context.Context, class, id string) error {
	where := filters.Where().
		WithPath([]string{"itemId"}).
		WithOperator(filters.Equal).
		WithValueText(id)
	_, err := b.client.Batch().ObjectsBatchDeleter().
		WithClassName(class).
		WithWhere(where).
		Do(ctx)
	return err
}

func (b *weaviateBackend) Search(ctx context.Context, collection Collection, vector []float32, topK int) ([]Match, error) {
	class := b.className(collection)
	nearVector := b.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "itemId"},
		{Name: "payloadJson"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	resp, err := b.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", class, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql errors querying %s: %v", class, resp.Errors)
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected response shape from %s: missing Get", class)
	}
	rawItems, ok := getData[class].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]Match, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := item["itemId"].(string)
		if id == "" {
			continue
		}
		payloadJSON, _ := item["payloadJson"].(string)
		payload, err := unmarshalPayload([]byte(payloadJSON))
		if err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", id, err)
		}
		var score float32
		if additional, ok := item["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				score = float32(1 - distance)
			}
		}
		matches = append(matches, Match{Record: Record{ID: id, Payload: payload}, Score: score})
	}
	return matches, nil
}

func (b *weaviateBackend) Close() error { return nil }
