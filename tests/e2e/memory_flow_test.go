package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/api"
	"github.com/nidhogg/wormwood/internal/memory"
	"github.com/nidhogg/wormwood/internal/storage"
	"github.com/nidhogg/wormwood/internal/tracker"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger  *zap.Logger
	testEngine  *storage.Engine
	testTracker *tracker.Redis
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testEngine, err = storage.Open(ctx, pgDSN, nil, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		os.Exit(1)
	}
	defer testEngine.Close()

	if err := testEngine.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if !testEngine.EnsureIndexes(ctx) {
		fmt.Fprintln(os.Stderr, "critical index creation failed")
		os.Exit(1)
	}

	// 2. Start Neo4j and attach the graph mirror
	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		os.Exit(1)
	}
	defer neo4jCleanup()

	graph, err := storage.NewGraphStore(neo4jURI, "", "", testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph store: %v\n", err)
		os.Exit(1)
	}
	defer graph.Close(ctx)
	if err := graph.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "neo4j ping: %v\n", err)
		os.Exit(1)
	}
	testEngine.AttachGraph(graph)

	// 3. Start Redis for the consolidation tracker
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()

	testTracker, err = tracker.NewRedis(redisURL, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis tracker: %v\n", err)
		os.Exit(1)
	}
	defer testTracker.Close()

	os.Exit(m.Run())
}

func newManager() *memory.Manager {
	return memory.NewManager(testEngine, testTracker, memory.Options{}, testLogger)
}

func record(t *testing.T, m *memory.Manager, agentID string, loc memory.Location, outcome memory.Outcome) string {
	t.Helper()
	id, err := m.RecordExperience(context.Background(), memory.ExperienceInput{
		AgentID:       agentID,
		Location:      loc,
		Goal:          "find_food",
		Outcome:       outcome,
		FitnessChange: 0.1,
		Duration:      2,
		Tags:          []string{"e2e"},
	})
	if err != nil {
		t.Fatalf("record experience: %v", err)
	}
	return id
}

func TestExperienceLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	agentID := "lifecycle-worm"

	id := record(t, m, agentID, memory.Location{X: 10, Y: 20}, memory.OutcomeSuccess)
	if id == "" {
		t.Fatal("expected non-empty experience id")
	}

	results, err := m.RetrieveRelevantMemories(ctx, agentID, memory.Location{X: 10, Y: 20}, "find_food", "", nil, 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results[memory.TypeEpisodic]) != 1 {
		t.Fatalf("expected 1 episodic match, got %d", len(results[memory.TypeEpisodic]))
	}
	exp, ok := results[memory.TypeEpisodic][0].Record.(*memory.Experience)
	if !ok {
		t.Fatal("expected experience record")
	}
	if exp.ExperienceID != id || exp.Goal != "find_food" {
		t.Errorf("round-trip mismatch: %+v", exp)
	}
	if len(results[memory.TypeSpatial]) == 0 {
		t.Error("expected the folded spatial memory in retrieval")
	}
}

func TestSpatialAggregation(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	agentID := "spatial-worm"

	record(t, m, agentID, memory.Location{X: 0, Y: 0}, memory.OutcomeSuccess)
	record(t, m, agentID, memory.Location{X: 4, Y: 3}, memory.OutcomeSuccess)
	record(t, m, agentID, memory.Location{X: 8, Y: 0}, memory.OutcomeSuccess)
	record(t, m, agentID, memory.Location{X: 500, Y: 500}, memory.OutcomeFailure)

	sc, err := m.GetSpatialContext(ctx, agentID, memory.Location{X: 2, Y: 2}, 50)
	if err != nil {
		t.Fatalf("spatial context: %v", err)
	}
	if !sc.IsFamiliar || sc.VisitCount != 3 {
		t.Errorf("context = %+v, want familiar with 3 visits", sc)
	}
	if sc.RegionType != "food_rich" {
		t.Errorf("region = %q, want food_rich", sc.RegionType)
	}
	if sc.AverageSuccessRate <= 0.7 {
		t.Errorf("success rate = %v, want > 0.7", sc.AverageSuccessRate)
	}
}

func TestConsolidationCreatesLinkedFacts(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	agentID := "consolidation-worm"

	for i := 0; i < 4; i++ {
		record(t, m, agentID, memory.Location{X: 10, Y: 20}, memory.OutcomeSuccess)
	}

	result, err := m.Consolidate(ctx, agentID)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if result.ConsolidatedCount != 4 {
		t.Errorf("consolidated = %d, want 4", result.ConsolidatedCount)
	}
	if result.NewKnowledgeCount != 1 {
		t.Fatalf("new facts = %d, want 1", result.NewKnowledgeCount)
	}

	// The derived fact is retrievable as semantic memory.
	results, err := m.RetrieveRelevantMemories(ctx, agentID, memory.Location{X: 10, Y: 20}, "find_food", "", []memory.Type{memory.TypeSemantic}, 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	semantic := results[memory.TypeSemantic]
	if len(semantic) != 1 {
		t.Fatalf("expected 1 semantic match, got %d", len(semantic))
	}
	fact, ok := semantic[0].Record.(*memory.KnowledgeFact)
	if !ok {
		t.Fatal("expected knowledge fact record")
	}
	if fact.Confidence != 0.95 {
		t.Errorf("confidence = %v, want capped 0.95", fact.Confidence)
	}
	if !strings.Contains(fact.Content, "high success rate") {
		t.Errorf("content = %q", fact.Content)
	}

	// Provenance traverses the support links back to all four experiences.
	sources, err := m.GetFactProvenance(ctx, agentID, fact.FactID)
	if err != nil {
		t.Fatalf("provenance: %v", err)
	}
	if len(sources) != 4 {
		t.Errorf("provenance = %d experiences, want 4", len(sources))
	}

	// A rerun merges rather than duplicating links.
	if _, err := m.Consolidate(ctx, agentID); err != nil {
		t.Fatalf("reconsolidate: %v", err)
	}
	sources, err = m.GetFactProvenance(ctx, agentID, fact.FactID)
	if err != nil {
		t.Fatalf("provenance after rerun: %v", err)
	}
	if len(sources) != 4 {
		t.Errorf("provenance after rerun = %d, want still 4", len(sources))
	}
}

func TestStrategyPerformanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	agentID := "strategy-worm"

	id, err := m.CreateOrUpdateStrategy(ctx, memory.StrategyInput{
		AgentID:        agentID,
		Name:           "spiral-search",
		Description:    "spiral outward when the food gradient is flat",
		ActionSequence: []memory.Action{{"type": "turn", "direction": "dorsal"}},
		Tags:           []string{"search"},
	})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}

	if err := m.UpdateStrategyPerformance(ctx, agentID, id, true, 0.3, map[string]any{"food": "near"}); err != nil {
		t.Fatalf("update performance: %v", err)
	}
	if err := m.UpdateStrategyPerformance(ctx, agentID, id, true, 0.1, nil); err != nil {
		t.Fatalf("update performance: %v", err)
	}

	best, err := m.GetBestStrategiesForGoal(ctx, agentID, "spiral-search", 3)
	if err != nil {
		t.Fatalf("best strategies: %v", err)
	}
	if len(best) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(best))
	}
	st := best[0]
	if st.UsageCount != 2 || st.SuccessCount != 2 {
		t.Errorf("usage = %d success = %d, want 2/2", st.UsageCount, st.SuccessCount)
	}
	if st.SuccessRate != 1.0 {
		t.Errorf("success rate = %v, want 1.0", st.SuccessRate)
	}
	if len(st.EffectiveContexts) != 1 {
		t.Errorf("effective contexts = %d, want 1", len(st.EffectiveContexts))
	}
}

func TestStatisticsOverHTTP(t *testing.T) {
	m := newManager()
	agentID := "stats-worm"

	record(t, m, agentID, memory.Location{X: 1, Y: 1}, memory.OutcomeSuccess)
	record(t, m, agentID, memory.Location{X: 2, Y: 2}, memory.OutcomeFailure)

	h := api.NewHandler(m, testLogger)
	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/agents/" + agentID + "/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats memory.Statistics
	if err := decodeBody(resp, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.EpisodicCount != 2 {
		t.Errorf("episodic = %d, want 2", stats.EpisodicCount)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", stats.SuccessRate)
	}
	if stats.SpatialCount == 0 {
		t.Error("expected spatial locations counted")
	}
}

func TestRedisTrackerMonotonic(t *testing.T) {
	ctx := context.Background()
	agentID := "tracker-worm"

	newer := time.Now()
	older := newer.Add(-time.Hour)

	if err := testTracker.Mark(ctx, agentID, newer); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := testTracker.Mark(ctx, agentID, older); err != nil {
		t.Fatalf("mark older: %v", err)
	}

	last, err := testTracker.Last(ctx, agentID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.Before(newer.Add(-time.Second)) {
		t.Errorf("last = %v, want >= %v (marker must not regress)", last, newer)
	}
}

func TestRedisTrackerFractionalSeconds(t *testing.T) {
	ctx := context.Background()
	agentID := "tracker-worm-frac"

	whole := time.Date(2026, 8, 31, 12, 0, 5, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)

	if err := testTracker.Mark(ctx, agentID, whole); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := testTracker.Mark(ctx, agentID, fractional); err != nil {
		t.Fatalf("mark fractional: %v", err)
	}

	last, err := testTracker.Last(ctx, agentID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if !last.Equal(fractional) {
		t.Errorf("last = %v, want %v (sub-second mark after a whole second must advance the marker)", last, fractional)
	}
}

func TestCrossAgentIsolation(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	record(t, m, "isolated-a", memory.Location{X: 7, Y: 7}, memory.OutcomeSuccess)
	record(t, m, "isolated-b", memory.Location{X: 7, Y: 7}, memory.OutcomeSuccess)

	results, err := m.RetrieveRelevantMemories(ctx, "isolated-a", memory.Location{X: 7, Y: 7}, "find_food", "", []memory.Type{memory.TypeEpisodic}, 50)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, match := range results[memory.TypeEpisodic] {
		if match.Record.RecordAgent() != "isolated-a" {
			t.Errorf("cross-agent leak: %s", match.Record.RecordID())
		}
	}

	sc, err := m.GetSpatialContext(ctx, "isolated-a", memory.Location{X: 7, Y: 7}, 50)
	if err != nil {
		t.Fatalf("spatial context: %v", err)
	}
	if sc.VisitCount != 1 {
		t.Errorf("visit count = %d, want only own visit", sc.VisitCount)
	}
}
