package storage

import (
	"context"
	"fmt"

	"github.com/nidhogg/wormwood/internal/memory"
)

// NeighborsOf returns the agent's spatial memories within radius of loc,
// nearest first. Both the spatial-context queries and the update-or-create
// decision in experience recording go through here.
func (e *Engine) NeighborsOf(ctx context.Context, agentID string, loc memory.Location, radius float64) ([]*memory.SpatialMemory, error) {
	spec, _ := specFor(memory.TypeSpatial)

	b := newWhereBuilder()
	b.Equal("agent_id", agentID)
	dist := distanceExpr(b, spec.coords, loc)
	b.conds = append(b.conds, fmt.Sprintf("%s <= %s", dist, b.bind(radius)))

	sql := fmt.Sprintf("%s %s ORDER BY %s ASC", selectSpatial, b.Clause(), dist)
	rows, err := e.db.Query(ctx, sql, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("neighbors of (%.1f, %.1f, %.1f): %w", loc.X, loc.Y, loc.Z, err)
	}
	defer rows.Close()

	var neighbors []*memory.SpatialMemory
	for rows.Next() {
		sm, err := scanSpatialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spatial memory: %w", err)
		}
		neighbors = append(neighbors, sm)
	}
	return neighbors, rows.Err()
}
