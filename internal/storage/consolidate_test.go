package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/wormwood/internal/memory"
)

func expAt(id string, x, y float64, outcome memory.Outcome) *memory.Experience {
	return &memory.Experience{
		ExperienceID: id,
		AgentID:      "worm-1",
		Goal:         "find_food",
		Location:     memory.Location{X: x, Y: y},
		Outcome:      outcome,
	}
}

func TestBucketKeyRounding(t *testing.T) {
	cases := []struct {
		loc  memory.Location
		want string
	}{
		{memory.Location{X: 10.4, Y: 20.6}, "10,21"},
		{memory.Location{X: -0.4, Y: 0.4}, "-0,0"},
		{memory.Location{X: 100, Y: 200, Z: 999}, "100,200"}, // z ignored
	}
	for _, c := range cases {
		if got := bucketKey(c.loc); got != c.want {
			t.Errorf("bucketKey(%+v) = %q, want %q", c.loc, got, c.want)
		}
	}
}

func TestBucketByLocation(t *testing.T) {
	exps := []*memory.Experience{
		expAt("a", 10.1, 20.1, memory.OutcomeSuccess),
		expAt("b", 10.2, 19.9, memory.OutcomeSuccess),
		expAt("c", 50, 50, memory.OutcomeFailure),
	}
	buckets := bucketByLocation(exps)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if len(buckets["10,20"]) != 2 {
		t.Errorf("expected 2 experiences in 10,20 bucket, got %d", len(buckets["10,20"]))
	}
}

func TestDeriveFactsSuccessCluster(t *testing.T) {
	now := time.Now()
	buckets := map[string][]*memory.Experience{
		"10,20": {
			expAt("a", 10, 20, memory.OutcomeSuccess),
			expAt("b", 10, 20, memory.OutcomeSuccess),
			expAt("c", 10, 20, memory.OutcomeSuccess),
		},
	}
	facts := deriveFacts("worm-1", buckets, now)
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}

	fact := facts[0]
	if fact.AgentID != "worm-1" {
		t.Errorf("agent = %q", fact.AgentID)
	}
	if fact.FactType != "location" {
		t.Errorf("fact type = %q, want location", fact.FactType)
	}
	// Perfect success still caps below certainty.
	if fact.Confidence != maxFactConfidence {
		t.Errorf("confidence = %v, want %v", fact.Confidence, maxFactConfidence)
	}
	if fact.EvidenceCount != 3 || len(fact.SourceExperiences) != 3 {
		t.Errorf("evidence = %d sources = %d, want 3/3", fact.EvidenceCount, len(fact.SourceExperiences))
	}
	wantContent := fmt.Sprintf("Location 10,20 has high success rate (%.2f) for goal find_food", 1.0)
	if fact.Content != wantContent {
		t.Errorf("content = %q, want %q", fact.Content, wantContent)
	}
	for _, tag := range []string{"high_success", "location_knowledge"} {
		found := false
		for _, got := range fact.Tags {
			if got == tag {
				found = true
			}
		}
		if !found {
			t.Errorf("tags %v missing %q", fact.Tags, tag)
		}
	}
}

func TestDeriveFactsClusterTooSmall(t *testing.T) {
	buckets := map[string][]*memory.Experience{
		"10,20": {
			expAt("a", 10, 20, memory.OutcomeSuccess),
			expAt("b", 10, 20, memory.OutcomeSuccess),
		},
	}
	if facts := deriveFacts("worm-1", buckets, time.Now()); len(facts) != 0 {
		t.Errorf("expected no facts from 2-experience cluster, got %d", len(facts))
	}
}

func TestDeriveFactsLowSuccessFraction(t *testing.T) {
	buckets := map[string][]*memory.Experience{
		"10,20": {
			expAt("a", 10, 20, memory.OutcomeSuccess),
			expAt("b", 10, 20, memory.OutcomeSuccess),
			expAt("c", 10, 20, memory.OutcomeFailure),
		},
	}
	// 2/3 is below the 0.7 threshold.
	if facts := deriveFacts("worm-1", buckets, time.Now()); len(facts) != 0 {
		t.Errorf("expected no facts below success threshold, got %d", len(facts))
	}
}

func TestDeriveFactsThresholdExactlyMet(t *testing.T) {
	group := []*memory.Experience{
		expAt("a", 0, 0, memory.OutcomeSuccess),
		expAt("b", 0, 0, memory.OutcomeSuccess),
		expAt("c", 0, 0, memory.OutcomeSuccess),
		expAt("d", 0, 0, memory.OutcomeSuccess),
		expAt("e", 0, 0, memory.OutcomeSuccess),
		expAt("f", 0, 0, memory.OutcomeSuccess),
		expAt("g", 0, 0, memory.OutcomeSuccess),
		expAt("h", 0, 0, memory.OutcomeFailure),
		expAt("i", 0, 0, memory.OutcomeFailure),
		expAt("j", 0, 0, memory.OutcomePartial),
	}
	facts := deriveFacts("worm-1", map[string][]*memory.Experience{"0,0": group}, time.Now())
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact at exact threshold, got %d", len(facts))
	}
	if facts[0].Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", facts[0].Confidence)
	}
	if !strings.Contains(facts[0].Content, "(0.70)") {
		t.Errorf("content = %q, want 0.70 rate", facts[0].Content)
	}
}
