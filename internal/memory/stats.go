package memory

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Statistics is the fixed-shape summary the dashboard and CLI consume. It is
// always fully populated; when storage is unavailable every count is zero and
// the insights say so.
type Statistics struct {
	EpisodicCount    int      `json:"episodic_count"`
	SemanticCount    int      `json:"semantic_count"`
	SpatialCount     int      `json:"spatial_count"`
	ProceduralCount  int      `json:"procedural_count"`
	TotalExperiences int      `json:"total_experiences"`
	SuccessRate      float64  `json:"success_rate"` // percent, 0-100
	LocationsVisited int      `json:"locations_visited"`
	StrategiesLearnt int      `json:"strategies_learned"`
	KnowledgeFacts   int      `json:"knowledge_facts"`
	MemoryConfidence float64  `json:"memory_confidence"`
	Insights         []string `json:"insights"`
}

// GetMemoryStatistics aggregates per-type counts and derived metrics for an
// agent. It never fails: a storage fault yields the zero-filled shape with an
// explanatory insight.
func (m *Manager) GetMemoryStatistics(ctx context.Context, agentID string) *Statistics {
	stats := &Statistics{
		MemoryConfidence: 0.5,
		Insights:         []string{},
	}

	counts, err := m.engine.Counts(ctx, agentID)
	if err != nil {
		m.logger.Warn("memory statistics degraded to zero-filled",
			zap.String("agent", agentID), zap.Error(err))
		stats.Insights = []string{"Memory system not connected"}
		return stats
	}

	stats.EpisodicCount = counts.Episodic
	stats.SemanticCount = counts.Semantic
	stats.SpatialCount = counts.Spatial
	stats.ProceduralCount = counts.Procedural
	stats.TotalExperiences = counts.Episodic
	stats.LocationsVisited = counts.UniqueLocations
	stats.StrategiesLearnt = counts.Procedural
	stats.KnowledgeFacts = counts.Semantic
	if counts.Episodic > 0 {
		stats.SuccessRate = float64(counts.SuccessOutcomes) / float64(counts.Episodic) * 100
	}

	stats.Insights = buildInsights(stats)
	stats.MemoryConfidence = memoryConfidence(counts, stats.SuccessRate)
	return stats
}

func buildInsights(stats *Statistics) []string {
	var insights []string
	if stats.EpisodicCount > 0 {
		insights = append(insights, fmt.Sprintf("Learned from %d experiences", stats.EpisodicCount))
		switch {
		case stats.SuccessRate > 70:
			insights = append(insights, "High success rate - learning effectively")
		case stats.SuccessRate > 40:
			insights = append(insights, "Moderate success - adapting strategies")
		default:
			insights = append(insights, "Learning from failures - building resilience")
		}
	} else {
		insights = append(insights, "No experiences recorded yet")
	}
	if stats.SpatialCount > 0 {
		insights = append(insights, fmt.Sprintf("Remembers %d spatial locations", stats.SpatialCount))
	}
	if stats.ProceduralCount > 0 {
		insights = append(insights, fmt.Sprintf("Developed %d strategies", stats.ProceduralCount))
	}
	return insights
}

// memoryConfidence scores how much the agent should trust its own memory:
// 0.5 base, up to +0.3 from experience volume, +0.2 for a majority success
// rate, +0.1 for any spatial awareness, capped at 1.0.
func memoryConfidence(counts TypeCounts, successRatePct float64) float64 {
	confidence := 0.5
	if counts.Episodic > 0 {
		confidence += math.Min(0.3, float64(counts.Episodic)*0.05)
	}
	if successRatePct > 50 {
		confidence += 0.2
	}
	if counts.Spatial > 0 {
		confidence += 0.1
	}
	return math.Min(1.0, confidence)
}
