package storage

import (
	"context"
	"fmt"

	"github.com/nidhogg/wormwood/internal/memory"
)

// Counts aggregates the per-agent numbers behind memory statistics. Each
// spatial record is one neighborhood, so the spatial count doubles as the
// unique-location count.
func (e *Engine) Counts(ctx context.Context, agentID string) (memory.TypeCounts, error) {
	var counts memory.TypeCounts

	for _, c := range []struct {
		sql  string
		dest *int
	}{
		{`SELECT count(*) FROM experiences WHERE agent_id = $1`, &counts.Episodic},
		{`SELECT count(*) FROM knowledge_facts WHERE agent_id = $1`, &counts.Semantic},
		{`SELECT count(*) FROM spatial_memories WHERE agent_id = $1`, &counts.Spatial},
		{`SELECT count(*) FROM strategies WHERE agent_id = $1`, &counts.Procedural},
		{`SELECT count(*) FROM experiences WHERE agent_id = $1 AND outcome = 'success'`, &counts.SuccessOutcomes},
	} {
		if err := e.db.QueryRow(ctx, c.sql, agentID).Scan(c.dest); err != nil {
			return memory.TypeCounts{}, fmt.Errorf("count memories: %w", err)
		}
	}
	counts.UniqueLocations = counts.Spatial
	return counts, nil
}
