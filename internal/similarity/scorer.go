// Package similarity scores memory candidates against free-text queries.
//
// The scorer in use is chosen once at configuration time: a vector scorer
// backed by an embedding provider and Qdrant when both are configured, a
// recency fallback otherwise. There is no runtime capability probing.
package similarity

import (
	"context"
)

// Scored is one candidate with its cosine similarity to the query.
type Scored struct {
	ID    string
	Score float64
}

// Scorer ranks stored documents against a text query.
type Scorer interface {
	// Available reports whether semantic scoring can run. When false the
	// storage engine falls back to recency ordering.
	Available() bool

	// Index embeds the text and registers it under the document id in the
	// named collection. It returns the embedding vector so callers can
	// persist it alongside the document, or nil when scoring is unavailable.
	Index(ctx context.Context, collection, id, text, agentID string) ([]float32, error)

	// Score embeds the query text and returns the top candidates in the
	// collection for the agent, highest similarity first.
	Score(ctx context.Context, collection, text, agentID string, limit int) ([]Scored, error)
}

// RecencyScorer is the no-op fallback used when no embedding backend is
// configured. It never scores; the engine orders by timestamp instead.
type RecencyScorer struct{}

// NewRecencyScorer returns the fallback scorer.
func NewRecencyScorer() *RecencyScorer { return &RecencyScorer{} }

func (*RecencyScorer) Available() bool { return false }

func (*RecencyScorer) Index(context.Context, string, string, string, string) ([]float32, error) {
	return nil, nil
}

func (*RecencyScorer) Score(context.Context, string, string, string, int) ([]Scored, error) {
	return nil, nil
}
