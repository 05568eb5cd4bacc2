package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/memory"
)

const (
	consolidationLookback = 7 * 24 * time.Hour
	consolidationFetch    = 100
	minClusterSize        = 3
	minSuccessFraction    = 0.7
	maxFactConfidence     = 0.95
)

// Consolidate turns clusters of recent experiences into durable knowledge:
// experiences from the last seven days are bucketed by coarse location, and
// any bucket whose success fraction clears the threshold becomes a
// KnowledgeFact linked to its supporting experiences. Failures never corrupt
// stored data; partial results are reported through the summary.
func (e *Engine) Consolidate(ctx context.Context, agentID string) (*memory.ConsolidationResult, error) {
	start := time.Now()

	since := start.Add(-consolidationLookback)
	until := start
	matches, err := e.QueryByType(ctx, memory.TypeEpisodic, memory.Query{
		AgentID: agentID,
		Types:   []memory.Type{memory.TypeEpisodic},
		Since:   &since,
		Until:   &until,
		Limit:   consolidationFetch,
	})
	if err != nil {
		return &memory.ConsolidationResult{
			UpdatedStrategies: []string{},
			ProcessingTime:    time.Since(start),
			Summary:           fmt.Sprintf("Consolidation failed: %v", err),
		}, nil
	}

	experiences := make([]*memory.Experience, 0, len(matches))
	for _, m := range matches {
		if exp, ok := m.Record.(*memory.Experience); ok {
			experiences = append(experiences, exp)
		}
	}

	facts := deriveFacts(agentID, bucketByLocation(experiences), start)

	stored := 0
	var storeErr error
	for _, fact := range facts {
		if _, err := e.StoreKnowledgeFact(ctx, fact); err != nil {
			storeErr = err
			continue
		}
		stored++
		if err := e.linkSupports(ctx, fact); err != nil {
			e.logger.Warn("support link creation failed",
				zap.String("fact", fact.FactID), zap.Error(err))
		}
	}

	result := &memory.ConsolidationResult{
		ConsolidatedCount: len(experiences),
		NewKnowledgeCount: stored,
		UpdatedStrategies: []string{},
		ProcessingTime:    time.Since(start),
		Summary: fmt.Sprintf("Consolidated %d experiences, created %d knowledge facts",
			len(experiences), stored),
	}
	if storeErr != nil {
		result.Summary += fmt.Sprintf(" (partial: %v)", storeErr)
	}
	return result, nil
}

// bucketKey rounds x and y to the nearest integer, giving the coarse
// location grid consolidation clusters on.
func bucketKey(loc memory.Location) string {
	return fmt.Sprintf("%.0f,%.0f", loc.X, loc.Y)
}

func bucketByLocation(experiences []*memory.Experience) map[string][]*memory.Experience {
	buckets := make(map[string][]*memory.Experience)
	for _, exp := range experiences {
		key := bucketKey(exp.Location)
		buckets[key] = append(buckets[key], exp)
	}
	return buckets
}

// deriveFacts emits one location fact per bucket that has enough experiences
// and a success fraction at or above the threshold. Confidence is the success
// fraction capped below certainty: even a perfect week is still a sample.
func deriveFacts(agentID string, buckets map[string][]*memory.Experience, now time.Time) []*memory.KnowledgeFact {
	var facts []*memory.KnowledgeFact
	for key, group := range buckets {
		if len(group) < minClusterSize {
			continue
		}
		successes := 0
		for _, exp := range group {
			if exp.Outcome == memory.OutcomeSuccess {
				successes++
			}
		}
		fraction := float64(successes) / float64(len(group))
		if fraction < minSuccessFraction {
			continue
		}

		sources := make([]string, 0, len(group))
		for _, exp := range group {
			sources = append(sources, exp.ExperienceID)
		}
		facts = append(facts, &memory.KnowledgeFact{
			FactID:   uuid.New().String(),
			AgentID:  agentID,
			FactType: "location",
			Content: fmt.Sprintf("Location %s has high success rate (%.2f) for goal %s",
				key, fraction, group[0].Goal),
			Confidence:        min(fraction, maxFactConfidence),
			SourceExperiences: sources,
			EvidenceCount:     len(group),
			FirstLearned:      now,
			LastUpdated:       now,
			Tags:              []string{"high_success", "location_knowledge"},
		})
	}
	return facts
}
