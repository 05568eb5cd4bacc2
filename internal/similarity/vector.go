package similarity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/embedding"
	"github.com/nidhogg/wormwood/internal/vectorstore"
)

// VectorScorer ranks documents by cosine similarity between the query
// embedding and stored embeddings in Qdrant.
type VectorScorer struct {
	embedder embedding.Provider
	qdrant   *vectorstore.Client
	logger   *zap.Logger
}

// NewVectorScorer wires an embedding provider to a Qdrant vector store.
func NewVectorScorer(embedder embedding.Provider, qdrant *vectorstore.Client, logger *zap.Logger) *VectorScorer {
	return &VectorScorer{embedder: embedder, qdrant: qdrant, logger: logger}
}

// InitCollections ensures one vector collection per memory collection.
func (s *VectorScorer) InitCollections(ctx context.Context, names []string) error {
	dim := uint64(s.embedder.Dimension())
	if dim == 0 {
		dim = 384
	}
	for _, name := range names {
		if err := s.qdrant.EnsureCollection(ctx, name, dim); err != nil {
			return fmt.Errorf("init collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *VectorScorer) Available() bool { return true }

// Index embeds the text and upserts it into the collection keyed by id. The
// returned vector is what got stored, so callers can persist it with the
// document row.
func (s *VectorScorer) Index(ctx context.Context, collection, id, text, agentID string) ([]float32, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	payload := map[string]string{"agent_id": agentID}
	if err := s.qdrant.Upsert(ctx, collection, id, vectors[0], payload); err != nil {
		return nil, fmt.Errorf("index document %s: %w", id, err)
	}
	return vectors[0], nil
}

// Score embeds the query and searches the collection, constrained to the
// agent's own documents.
func (s *VectorScorer) Score(ctx context.Context, collection, text, agentID string, limit int) ([]Scored, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	hits, err := s.qdrant.Search(ctx, collection, vectors[0], agentID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", collection, err)
	}
	scored := make([]Scored, 0, len(hits))
	for _, h := range hits {
		scored = append(scored, Scored{ID: h.ID, Score: float64(h.Score)})
	}
	return scored, nil
}
