package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maybeConsolidate launches a background consolidation pass when the
// configured interval has elapsed for the agent. It never blocks the caller:
// the pass runs on a detached context with its own budget, and its failure is
// logged rather than propagated.
func (m *Manager) maybeConsolidate(ctx context.Context, agentID string) {
	last, err := m.tracker.Last(ctx, agentID)
	if err != nil {
		m.logger.Warn("consolidation tracker unavailable, skipping",
			zap.String("agent", agentID), zap.Error(err))
		return
	}
	if time.Since(last) < m.opts.ConsolidationInterval {
		return
	}

	// Mark before launching so back-to-back record calls within one interval
	// cannot both schedule a pass. The tracker keeps the marker monotonic.
	if err := m.tracker.Mark(ctx, agentID, time.Now()); err != nil {
		m.logger.Warn("consolidation marker write failed, skipping",
			zap.String("agent", agentID), zap.Error(err))
		return
	}

	go m.runConsolidation(agentID)
}

func (m *Manager) runConsolidation(agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), consolidationBudget)
	defer cancel()

	m.logger.Info("starting memory consolidation", zap.String("agent", agentID))
	result, err := m.engine.Consolidate(ctx, agentID)
	if err != nil {
		m.logger.Error("memory consolidation failed",
			zap.String("agent", agentID), zap.Error(err))
		return
	}
	m.logger.Info("memory consolidation completed",
		zap.String("agent", agentID),
		zap.Int("experiences", result.ConsolidatedCount),
		zap.Int("new_facts", result.NewKnowledgeCount),
		zap.Duration("took", result.ProcessingTime),
		zap.String("summary", result.Summary))
}

// GetFactProvenance returns the ids of the experiences that support a
// knowledge fact. Degrades to an empty list when the link store is down.
func (m *Manager) GetFactProvenance(ctx context.Context, agentID, factID string) ([]string, error) {
	ids, err := m.engine.SupportingExperiences(ctx, agentID, factID)
	if err != nil {
		m.logger.Warn("fact provenance degraded to empty result",
			zap.String("agent", agentID), zap.String("fact", factID), zap.Error(err))
		return []string{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Consolidate runs a consolidation pass synchronously, bypassing the interval
// check. Exposed for the API surface and operational tooling.
func (m *Manager) Consolidate(ctx context.Context, agentID string) (*ConsolidationResult, error) {
	result, err := m.engine.Consolidate(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if terr := m.tracker.Mark(ctx, agentID, time.Now()); terr != nil {
		m.logger.Warn("consolidation marker write failed",
			zap.String("agent", agentID), zap.Error(terr))
	}
	return result, nil
}
