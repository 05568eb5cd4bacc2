package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nidhogg/wormwood/internal/memory"
)

// linkSupports records the "supports" relationship between a fact and each of
// its source experiences. The relational rows are the system of record; the
// graph store mirror is best effort when attached.
func (e *Engine) linkSupports(ctx context.Context, fact *memory.KnowledgeFact) error {
	for _, expID := range fact.SourceExperiences {
		_, err := e.db.Exec(ctx, `
			INSERT INTO memory_links (id, agent_id, from_experience, to_fact, relationship, created_at)
			VALUES ($1, $2, $3, $4, 'supports', now())
			ON CONFLICT (from_experience, to_fact) DO NOTHING`,
			uuid.New().String(), fact.AgentID, expID, fact.FactID,
		)
		if err != nil {
			return fmt.Errorf("link experience %s to fact %s: %w", expID, fact.FactID, err)
		}
	}

	if e.graph != nil {
		if err := e.graph.LinkSupports(ctx, fact.AgentID, fact.SourceExperiences, fact.FactID); err != nil {
			return fmt.Errorf("mirror support links to graph: %w", err)
		}
	}
	return nil
}

// SupportingExperiences returns the ids of experiences that support a fact.
func (e *Engine) SupportingExperiences(ctx context.Context, agentID, factID string) ([]string, error) {
	rows, err := e.db.Query(ctx, `
		SELECT from_experience FROM memory_links
		WHERE agent_id = $1 AND to_fact = $2 AND relationship = 'supports'
		ORDER BY created_at`,
		agentID, factID)
	if err != nil {
		return nil, fmt.Errorf("supporting experiences for %s: %w", factID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
