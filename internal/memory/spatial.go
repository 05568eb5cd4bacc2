package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpatialContext summarizes what the agent knows about the neighborhood
// around a location.
type SpatialContext struct {
	IsFamiliar         bool     `json:"is_familiar"`
	VisitCount         int      `json:"visit_count"`
	AverageSuccessRate float64  `json:"average_success_rate"`
	RegionType         string   `json:"region_type"`
	Recommendations    []string `json:"recommendations"`
	NearbyLocations    int      `json:"nearby_locations"`
}

// GetSpatialContext aggregates all spatial memories within radius of the
// location. The success rate is visit-count weighted and the region type is
// the mode by total visits.
func (m *Manager) GetSpatialContext(ctx context.Context, agentID string, location Location, radius float64) (*SpatialContext, error) {
	if radius <= 0 {
		radius = ContextRadius
	}

	nearby, err := m.engine.NeighborsOf(ctx, agentID, location, radius)
	if err != nil {
		m.logger.Warn("spatial context degraded to unfamiliar",
			zap.String("agent", agentID), zap.Error(err))
		return unfamiliarContext(), err
	}
	if len(nearby) == 0 {
		return unfamiliarContext(), nil
	}

	totalVisits := 0
	weightedRate := 0.0
	regionVisits := map[string]int{}
	for _, sm := range nearby {
		totalVisits += sm.VisitCount
		weightedRate += sm.SuccessRate * float64(sm.VisitCount)
		regionVisits[sm.RegionType] += sm.VisitCount
	}
	if totalVisits > 0 {
		weightedRate /= float64(totalVisits)
	}

	dominant := "unknown"
	best := 0
	for region, visits := range regionVisits {
		if visits > best {
			dominant = region
			best = visits
		}
	}

	var recommendations []string
	if weightedRate > 0.7 {
		recommendations = append(recommendations, "This area has been successful before")
	} else if weightedRate < 0.3 {
		recommendations = append(recommendations, "This area has been challenging")
	}
	if totalVisits < 3 {
		recommendations = append(recommendations, "Limited experience in this area")
	}

	return &SpatialContext{
		IsFamiliar:         totalVisits > 0,
		VisitCount:         totalVisits,
		AverageSuccessRate: weightedRate,
		RegionType:         dominant,
		Recommendations:    recommendations,
		NearbyLocations:    len(nearby),
	}, nil
}

func unfamiliarContext() *SpatialContext {
	return &SpatialContext{
		RegionType:      "unknown",
		Recommendations: []string{},
	}
}

// updateSpatialMemory folds an experience into the spatial map: an existing
// memory within the neighborhood radius is updated in place, otherwise a new
// one is seeded from the triggering outcome. A freshly created record is
// therefore always outside the radius of every existing one for the agent.
func (m *Manager) updateSpatialMemory(ctx context.Context, agentID string, loc Location, outcome Outcome, duration float64) error {
	nearby, err := m.engine.NeighborsOf(ctx, agentID, loc, NeighborhoodRadius)
	if err != nil {
		return err
	}

	now := time.Now()
	if len(nearby) > 0 {
		sm := nearby[0] // nearest
		sm.VisitCount++
		sm.LastVisited = now
		sm.TotalTimeSpent += duration
		if outcome == OutcomeSuccess {
			sm.FoodFoundCount++
		}
		sm.SuccessRate = float64(sm.FoodFoundCount) / float64(sm.VisitCount)
		_, err = m.engine.StoreSpatialMemory(ctx, sm)
		return err
	}

	sm := &SpatialMemory{
		LocationID:     uuid.New().String(),
		AgentID:        agentID,
		Coordinates:    loc,
		RegionType:     classifyRegion(outcome),
		VisitCount:     1,
		FirstVisited:   now,
		LastVisited:    now,
		TotalTimeSpent: duration,
		Tags:           spatialTags(outcome),
	}
	if outcome == OutcomeSuccess {
		sm.FoodFoundCount = 1
		sm.SuccessRate = 1.0
	}
	_, err = m.engine.StoreSpatialMemory(ctx, sm)
	return err
}

func classifyRegion(outcome Outcome) string {
	switch outcome {
	case OutcomeSuccess:
		return "food_rich"
	case OutcomeFailure:
		return "obstacle"
	default:
		return "neutral"
	}
}

func spatialTags(outcome Outcome) []string {
	tags := []string{"auto_generated"}
	switch outcome {
	case OutcomeSuccess:
		tags = append(tags, "successful_location")
	case OutcomeFailure:
		tags = append(tags, "challenging_location")
	}
	return tags
}
