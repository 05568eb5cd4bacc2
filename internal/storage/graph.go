package storage

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// GraphStore mirrors the experience-supports-fact relationships into Neo4j,
// where provenance traversals are cheap. It is optional: when Neo4j is not
// configured the relational memory_links table alone carries the links.
type GraphStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraphStore creates a Neo4j-backed graph store.
func NewGraphStore(uri, user, password string, logger *zap.Logger) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &GraphStore{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (g *GraphStore) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (g *GraphStore) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// LinkSupports merges SUPPORTS edges from each experience node to the fact
// node. MERGE keeps the operation idempotent across consolidation reruns.
func (g *GraphStore) LinkSupports(ctx context.Context, agentID string, experienceIDs []string, factID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (f:Fact {id: $factId})
		 SET f.agent_id = $agentId
		 WITH f
		 UNWIND $expIds AS expId
		 MERGE (e:Experience {id: expId})
		 SET e.agent_id = $agentId
		 MERGE (e)-[r:SUPPORTS]->(f)
		 ON CREATE SET r.created_at = datetime()`,
		map[string]any{
			"factId":  factID,
			"agentId": agentID,
			"expIds":  experienceIDs,
		})
	if err != nil {
		return fmt.Errorf("merge supports edges for fact %s: %w", factID, err)
	}
	g.logger.Debug("mirrored support links",
		zap.String("fact", factID), zap.Int("experiences", len(experienceIDs)))
	return nil
}
