// Package embedding turns memory text into vectors for similarity search.
package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration. Provider selection happens
// here, at configuration time; an empty provider means semantic scoring is
// off and retrieval falls back to recency ordering.
type Config struct {
	Provider  string `json:"provider"` // "api", "local" or "" (disabled)
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the configured provider. A nil, nil return means embeddings are
// disabled by configuration.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
