// Package embedding provides the pluggable embedding function spec.md §4.8
// requires: semantic-memory writes take an embedding over a textual summary
// of the event, and the function is swappable (openai, ollama, or a
// deterministic fallback for tests).
package embedding

import "context"

// Service turns text into a fixed-dimension embedding vector.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// New builds a Service for the configured provider. "dummy" is a
// deterministic hash-based embedding, explicitly permitted by spec.md §4.8
// for tests; production deployments should select "openai" or "ollama".
func New(provider, model, apiKey, baseURL string, dimensions int) (Service, error) {
	switch provider {
	case "openai":
		if apiKey == "" {
			return nil, &ConfigError{Provider: provider, Detail: "api key required"}
		}
		return newOpenAIService(apiKey, model, dimensions), nil
	case "ollama":
		return newOllamaService(model, baseURL, dimensions), nil
	case "dummy", "":
		return newDummyService(dimensions), nil
	default:
		return nil, &ConfigError{Provider: provider, Detail: "unsupported embedding provider"}
	}
}

type ConfigError struct {
	Provider string
	Detail   string
}

func (e *ConfigError) Error() string {
	return "embedding: " + e.Provider + ": " + e.Detail
}
