package memory

import (
	"context"
	"testing"
)

func TestStatisticsFreshAgent(t *testing.T) {
	engine := newFakeEngine()
	m := newTestManager(engine, Options{})

	stats := m.GetMemoryStatistics(context.Background(), "worm-1")
	if stats.TotalExperiences != 0 || stats.SuccessRate != 0 {
		t.Errorf("expected zero-filled stats, got %+v", stats)
	}
	if !closeTo(stats.MemoryConfidence, 0.5) {
		t.Errorf("confidence = %v, want 0.5", stats.MemoryConfidence)
	}
	if len(stats.Insights) == 0 || stats.Insights[0] != "No experiences recorded yet" {
		t.Errorf("insights = %v, want fresh-agent insight first", stats.Insights)
	}
}

func TestStatisticsAfterExperiences(t *testing.T) {
	engine := newFakeEngine()
	m := newTestManager(engine, Options{})
	ctx := context.Background()

	recordAt(t, m, "worm-1", Location{X: 0, Y: 0}, OutcomeSuccess)
	recordAt(t, m, "worm-1", Location{X: 1, Y: 1}, OutcomeSuccess)
	recordAt(t, m, "worm-1", Location{X: 2, Y: 2}, OutcomeFailure)

	stats := m.GetMemoryStatistics(ctx, "worm-1")
	if stats.EpisodicCount != 3 {
		t.Errorf("episodic count = %d, want 3", stats.EpisodicCount)
	}
	if !closeTo(stats.SuccessRate, 200.0/3.0) {
		t.Errorf("success rate = %v, want ~66.7", stats.SuccessRate)
	}
	if stats.SpatialCount != 1 {
		t.Errorf("spatial count = %d, want 1", stats.SpatialCount)
	}

	// 0.5 base + 3*0.05 experience volume + 0.2 majority success + 0.1 spatial.
	if !closeTo(stats.MemoryConfidence, 0.95) {
		t.Errorf("confidence = %v, want 0.95", stats.MemoryConfidence)
	}
	if len(stats.Insights) == 0 || stats.Insights[0] != "Learned from 3 experiences" {
		t.Errorf("insights = %v", stats.Insights)
	}
}

func TestStatisticsConfidenceCapped(t *testing.T) {
	counts := TypeCounts{Episodic: 100, Spatial: 10, SuccessOutcomes: 90}
	if c := memoryConfidence(counts, 90); c != 1.0 {
		t.Errorf("confidence = %v, want capped at 1.0", c)
	}
}

func TestStatisticsDegradedWhenDisconnected(t *testing.T) {
	engine := newFakeEngine()
	engine.failQueries = true
	m := newTestManager(engine, Options{})

	stats := m.GetMemoryStatistics(context.Background(), "worm-1")
	if stats == nil {
		t.Fatal("expected well-typed stats on failure")
	}
	if stats.EpisodicCount != 0 {
		t.Errorf("expected zero counts, got %d", stats.EpisodicCount)
	}
	if len(stats.Insights) != 1 || stats.Insights[0] != "Memory system not connected" {
		t.Errorf("insights = %v, want disconnect notice", stats.Insights)
	}
}

func TestInsightTiering(t *testing.T) {
	cases := []struct {
		successRate float64
		want        string
	}{
		{80, "High success rate - learning effectively"},
		{50, "Moderate success - adapting strategies"},
		{10, "Learning from failures - building resilience"},
	}
	for _, c := range cases {
		insights := buildInsights(&Statistics{EpisodicCount: 5, SuccessRate: c.successRate})
		found := false
		for _, in := range insights {
			if in == c.want {
				found = true
			}
		}
		if !found {
			t.Errorf("success rate %v: insights %v missing %q", c.successRate, insights, c.want)
		}
	}
}
