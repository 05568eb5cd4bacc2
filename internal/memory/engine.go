package memory

import (
	"context"
	"time"
)

// Engine is the storage contract the Manager drives. The Postgres-backed
// implementation lives in internal/storage; tests substitute an in-memory one.
type Engine interface {
	// StoreExperience upserts an experience keyed by its id and returns the
	// id, or an empty id when the backend rejected the write.
	StoreExperience(ctx context.Context, exp *Experience) (string, error)
	StoreKnowledgeFact(ctx context.Context, fact *KnowledgeFact) (string, error)
	StoreSpatialMemory(ctx context.Context, sm *SpatialMemory) (string, error)
	StoreStrategy(ctx context.Context, st *Strategy) (string, error)

	// GetStrategy loads a single strategy by id.
	GetStrategy(ctx context.Context, agentID, strategyID string) (*Strategy, error)

	// QueryByType executes one filtered, scored, sorted query against a
	// single memory type.
	QueryByType(ctx context.Context, t Type, q Query) ([]Match, error)

	// NeighborsOf returns spatial memories within radius of loc for the
	// agent, nearest first.
	NeighborsOf(ctx context.Context, agentID string, loc Location, radius float64) ([]*SpatialMemory, error)

	// Consolidate runs one consolidation pass for the agent.
	Consolidate(ctx context.Context, agentID string) (*ConsolidationResult, error)

	// SupportingExperiences returns the experience ids linked to a fact via
	// the "supports" relationship.
	SupportingExperiences(ctx context.Context, agentID, factID string) ([]string, error)

	// Counts aggregates per-type record counts for statistics.
	Counts(ctx context.Context, agentID string) (TypeCounts, error)
}

// TypeCounts holds the per-agent aggregates behind GetMemoryStatistics.
type TypeCounts struct {
	Episodic        int
	Semantic        int
	Spatial         int
	Procedural      int
	SuccessOutcomes int
	UniqueLocations int
}

// ConsolidationTracker records when consolidation last ran per agent. The
// marker is monotonic: Mark with an earlier timestamp is a no-op.
type ConsolidationTracker interface {
	Last(ctx context.Context, agentID string) (time.Time, error)
	Mark(ctx context.Context, agentID string, at time.Time) error
}
