// Package storage is the physical persistence, indexing and query layer for
// all four memory types plus the experience-to-fact support links. Documents
// live in PostgreSQL; embeddings are mirrored into the vector index through
// the configured similarity scorer; support links are additionally mirrored
// into Neo4j when a graph store is attached.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/similarity"
)

const (
	connectAttempts   = 5
	initialRetryDelay = 3 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// Engine implements the memory.Engine contract over a pgx connection pool.
type Engine struct {
	db     *pgxpool.Pool
	scorer similarity.Scorer
	graph  *GraphStore
	logger *zap.Logger
}

// Open connects to PostgreSQL with bounded exponential retry. Past the
// initial connectivity check, storage faults degrade individual operations
// instead of failing the process.
func Open(ctx context.Context, dsn string, scorer similarity.Scorer, logger *zap.Logger) (*Engine, error) {
	if scorer == nil {
		scorer = similarity.NewRecencyScorer()
	}

	delay := initialRetryDelay
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err := pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("PostgreSQL connected", zap.Int("attempt", attempt))
				return &Engine{db: pool, scorer: scorer, logger: logger}, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("postgres connection attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < connectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*3/2, maxRetryDelay)
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", connectAttempts, lastErr)
}

// AttachGraph mirrors support links into the given graph store from now on.
func (e *Engine) AttachGraph(g *GraphStore) {
	e.graph = g
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (e *Engine) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := e.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		e.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

type indexDef struct {
	name     string
	ddl      string
	critical bool
}

var indexDefs = []indexDef{
	// Common: agent partition key and query timestamp on every collection.
	{"idx_experiences_agent", `CREATE INDEX IF NOT EXISTS idx_experiences_agent ON experiences USING hash (agent_id)`, true},
	{"idx_experiences_occurred", `CREATE INDEX IF NOT EXISTS idx_experiences_occurred ON experiences (occurred_at)`, true},
	{"idx_facts_agent", `CREATE INDEX IF NOT EXISTS idx_facts_agent ON knowledge_facts USING hash (agent_id)`, true},
	{"idx_facts_updated", `CREATE INDEX IF NOT EXISTS idx_facts_updated ON knowledge_facts (last_updated)`, true},
	{"idx_spatial_agent", `CREATE INDEX IF NOT EXISTS idx_spatial_agent ON spatial_memories USING hash (agent_id)`, true},
	{"idx_spatial_visited", `CREATE INDEX IF NOT EXISTS idx_spatial_visited ON spatial_memories (last_visited)`, true},
	{"idx_strategies_agent", `CREATE INDEX IF NOT EXISTS idx_strategies_agent ON strategies USING hash (agent_id)`, true},
	{"idx_strategies_updated", `CREATE INDEX IF NOT EXISTS idx_strategies_updated ON strategies (last_updated)`, true},
	// Experiences: outcome/goal range lookups and the location index.
	{"idx_experiences_outcome", `CREATE INDEX IF NOT EXISTS idx_experiences_outcome ON experiences (outcome)`, false},
	{"idx_experiences_goal", `CREATE INDEX IF NOT EXISTS idx_experiences_goal ON experiences (goal)`, false},
	{"idx_experiences_loc", `CREATE INDEX IF NOT EXISTS idx_experiences_loc ON experiences (loc_x, loc_y, loc_z)`, false},
	// Spatial memories: the coordinate index is critical, proximity search
	// is the whole point of the collection.
	{"idx_spatial_coords", `CREATE INDEX IF NOT EXISTS idx_spatial_coords ON spatial_memories (coord_x, coord_y, coord_z)`, true},
	{"idx_spatial_success", `CREATE INDEX IF NOT EXISTS idx_spatial_success ON spatial_memories (success_rate)`, false},
	// Facts and strategies.
	{"idx_facts_type", `CREATE INDEX IF NOT EXISTS idx_facts_type ON knowledge_facts USING hash (fact_type)`, false},
	{"idx_facts_confidence", `CREATE INDEX IF NOT EXISTS idx_facts_confidence ON knowledge_facts (confidence)`, false},
	{"idx_strategies_success", `CREATE INDEX IF NOT EXISTS idx_strategies_success ON strategies (success_rate)`, false},
	{"idx_strategies_usage", `CREATE INDEX IF NOT EXISTS idx_strategies_usage ON strategies (usage_count)`, false},
	// Support links.
	{"idx_links_experience", `CREATE INDEX IF NOT EXISTS idx_links_experience ON memory_links (from_experience)`, false},
	{"idx_links_fact", `CREATE INDEX IF NOT EXISTS idx_links_fact ON memory_links (to_fact)`, false},
}

// EnsureIndexes creates every index, tolerating per-index failures. The
// returned flag is false when any critical index (agent partition, query
// timestamp, spatial coordinates) could not be created; callers should
// refuse to serve in that state.
func (e *Engine) EnsureIndexes(ctx context.Context) bool {
	ok := true
	for _, idx := range indexDefs {
		if _, err := e.db.Exec(ctx, idx.ddl); err != nil {
			e.logger.Warn("index creation failed",
				zap.String("index", idx.name),
				zap.Bool("critical", idx.critical),
				zap.Error(err))
			if idx.critical {
				ok = false
			}
		}
	}
	return ok
}

// Close shuts down the connection pool.
func (e *Engine) Close() {
	e.db.Close()
}

// indexDocument pushes a document's text into the vector index, best effort.
// A scoring outage must not block the durable write, so failures only log.
func (e *Engine) indexDocument(ctx context.Context, collection, id, text, agentID string) []float32 {
	if !e.scorer.Available() || text == "" {
		return nil
	}
	vec, err := e.scorer.Index(ctx, collection, id, text, agentID)
	if err != nil {
		e.logger.Warn("vector indexing failed",
			zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return nil
	}
	return vec
}
