package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// NeighborhoodRadius decides update-vs-create for spatial memories.
	NeighborhoodRadius = 20.0
	// ContextRadius is the default lookup radius for spatial context and
	// relevant-memory retrieval.
	ContextRadius = 50.0
	// RetrievalWindow bounds how far back relevant-memory queries look.
	RetrievalWindow = 30 * 24 * time.Hour

	defaultConsolidationInterval = 24 * time.Hour
	consolidationBudget          = 30 * time.Second
)

// Options tunes Manager behavior.
type Options struct {
	ConsolidationEnabled  bool
	ConsolidationInterval time.Duration
}

// Manager is the single entry point surrounding callers use. It sequences
// storage operations, blends retrieval results across memory types and
// schedules background consolidation. Storage faults never escape it as
// panics; callers get degraded but well-typed results plus an error they can
// inspect to tell "no matches" from "backend unavailable".
type Manager struct {
	engine  Engine
	tracker ConsolidationTracker
	opts    Options
	logger  *zap.Logger
}

// NewManager creates a Manager over the given storage engine.
func NewManager(engine Engine, tracker ConsolidationTracker, opts Options, logger *zap.Logger) *Manager {
	if opts.ConsolidationInterval <= 0 {
		opts.ConsolidationInterval = defaultConsolidationInterval
	}
	return &Manager{engine: engine, tracker: tracker, opts: opts, logger: logger}
}

// ExperienceInput carries everything the control loop reports for one
// decision cycle.
type ExperienceInput struct {
	AgentID          string
	Location         Location
	Goal             string
	ActionsTaken     []Action
	MotorCommands    map[string]float64
	Outcome          Outcome
	FitnessChange    float64
	EnergyChange     float64
	Duration         float64
	EnvironmentState map[string]any
	Tags             []string
}

// RecordExperience stores a new episodic memory, folds it into the spatial
// map and schedules consolidation when the interval has elapsed. The returned
// id is empty when the storage backend rejected the write.
func (m *Manager) RecordExperience(ctx context.Context, in ExperienceInput) (string, error) {
	exp := &Experience{
		ExperienceID:     uuid.New().String(),
		AgentID:          in.AgentID,
		Timestamp:        time.Now(),
		Location:         in.Location,
		Goal:             in.Goal,
		EnvironmentState: in.EnvironmentState,
		ActionsTaken:     in.ActionsTaken,
		MotorCommands:    NormalizeMotorCommands(in.MotorCommands),
		Outcome:          in.Outcome,
		FitnessChange:    in.FitnessChange,
		EnergyChange:     in.EnergyChange,
		Duration:         in.Duration,
		Tags:             in.Tags,
		Importance:       ComputeImportance(in.Outcome, in.FitnessChange),
	}
	if exp.EnvironmentState == nil {
		exp.EnvironmentState = map[string]any{}
	}
	if exp.Tags == nil {
		exp.Tags = []string{}
	}

	id, err := m.engine.StoreExperience(ctx, exp)
	if err != nil {
		m.logger.Error("store experience failed",
			zap.String("agent", in.AgentID), zap.Error(err))
		return "", err
	}

	if serr := m.updateSpatialMemory(ctx, in.AgentID, in.Location, in.Outcome, in.Duration); serr != nil {
		// The experience itself is already durable; a failed spatial fold
		// degrades the map but not the episodic record.
		m.logger.Warn("spatial memory update failed",
			zap.String("agent", in.AgentID), zap.Error(serr))
	}

	if m.opts.ConsolidationEnabled {
		m.maybeConsolidate(ctx, in.AgentID)
	}

	m.logger.Debug("recorded experience",
		zap.String("agent", in.AgentID),
		zap.String("experience", id),
		zap.String("outcome", string(in.Outcome)))
	return id, nil
}

// RetrieveRelevantMemories issues one query per requested type, blending the
// current goal and context into the semantic text and constraining results to
// the context radius and retrieval window. The returned map always carries one
// (possibly empty) slice per requested type.
func (m *Manager) RetrieveRelevantMemories(
	ctx context.Context,
	agentID string,
	location Location,
	goal, extra string,
	types []Type,
	limit int,
) (map[Type][]Match, error) {
	if len(types) == 0 {
		types = AllTypes()
	}
	if limit <= 0 {
		limit = 10
	}

	text := goal
	if extra != "" {
		text = goal + " " + extra
	}
	since := time.Now().Add(-RetrievalWindow)
	until := time.Now()

	results := make(map[Type][]Match, len(types))
	var firstErr error
	for _, t := range types {
		results[t] = []Match{}
		q := Query{
			AgentID:  agentID,
			Types:    []Type{t},
			Text:     text,
			Location: &location,
			Radius:   ContextRadius,
			Since:    &since,
			Until:    &until,
			Limit:    limit,
		}
		matches, err := m.engine.QueryByType(ctx, t, q)
		if err != nil {
			m.logger.Warn("memory query degraded to empty result",
				zap.String("agent", agentID), zap.String("type", string(t)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// Defense in depth: the engine already filters on agent_id, but a
		// cross-agent leak here would poison every downstream decision.
		for _, match := range matches {
			if match.Record != nil && match.Record.RecordAgent() == agentID {
				results[t] = append(results[t], match)
			}
		}
	}
	return results, firstErr
}

// GetBestStrategiesForGoal returns up to limit strategies ranked by success
// rate, then usage count.
func (m *Manager) GetBestStrategiesForGoal(ctx context.Context, agentID, goal string, limit int) ([]*Strategy, error) {
	if limit <= 0 {
		limit = 3
	}
	q := Query{
		AgentID: agentID,
		Types:   []Type{TypeProcedural},
		Text:    goal,
		Limit:   limit * 2, // overfetch, the agent filter below may drop some
	}
	matches, err := m.engine.QueryByType(ctx, TypeProcedural, q)
	if err != nil {
		m.logger.Warn("strategy query degraded to empty result",
			zap.String("agent", agentID), zap.Error(err))
		return []*Strategy{}, err
	}

	var strategies []*Strategy
	for _, match := range matches {
		st, ok := match.Record.(*Strategy)
		if !ok || st.AgentID != agentID {
			continue
		}
		strategies = append(strategies, st)
	}
	sort.SliceStable(strategies, func(i, j int) bool {
		if strategies[i].SuccessRate != strategies[j].SuccessRate {
			return strategies[i].SuccessRate > strategies[j].SuccessRate
		}
		return strategies[i].UsageCount > strategies[j].UsageCount
	})
	if len(strategies) > limit {
		strategies = strategies[:limit]
	}
	return strategies, nil
}

// StrategyInput describes a new strategy.
type StrategyInput struct {
	AgentID           string
	Name              string
	Description       string
	TriggerConditions map[string]any
	ActionSequence    []Action
	Context           map[string]any
	Tags              []string
}

// CreateOrUpdateStrategy records a strategy. Despite the name it always
// inserts a fresh record; performance updates go through
// UpdateStrategyPerformance instead.
func (m *Manager) CreateOrUpdateStrategy(ctx context.Context, in StrategyInput) (string, error) {
	now := time.Now()
	st := &Strategy{
		StrategyID:          uuid.New().String(),
		AgentID:             in.AgentID,
		Name:                in.Name,
		Description:         in.Description,
		TriggerConditions:   in.TriggerConditions,
		ActionSequence:      in.ActionSequence,
		Created:             now,
		LastUsed:            now,
		LastUpdated:         now,
		EffectiveContexts:   []map[string]any{},
		IneffectiveContexts: []map[string]any{},
		Tags:                in.Tags,
		Importance:          0.5,
	}
	if in.Context != nil {
		st.EffectiveContexts = append(st.EffectiveContexts, in.Context)
	}
	if st.Tags == nil {
		st.Tags = []string{}
	}

	id, err := m.engine.StoreStrategy(ctx, st)
	if err != nil {
		m.logger.Error("store strategy failed",
			zap.String("agent", in.AgentID), zap.String("name", in.Name), zap.Error(err))
		return "", err
	}
	m.logger.Info("created strategy",
		zap.String("agent", in.AgentID), zap.String("strategy", id), zap.String("name", in.Name))
	return id, nil
}

// UpdateStrategyPerformance folds one usage outcome into a strategy's track
// record: counts, derived success rate, running average fitness gain and the
// effective/ineffective context lists.
func (m *Manager) UpdateStrategyPerformance(
	ctx context.Context,
	agentID, strategyID string,
	success bool,
	fitnessGain float64,
	usageContext map[string]any,
) error {
	st, err := m.engine.GetStrategy(ctx, agentID, strategyID)
	if err != nil {
		m.logger.Warn("strategy lookup failed",
			zap.String("agent", agentID), zap.String("strategy", strategyID), zap.Error(err))
		return err
	}

	now := time.Now()
	st.UsageCount++
	if success {
		st.SuccessCount++
		if usageContext != nil {
			st.EffectiveContexts = appendContext(st.EffectiveContexts, usageContext)
		}
	} else {
		st.FailureCount++
		if usageContext != nil {
			st.IneffectiveContexts = appendContext(st.IneffectiveContexts, usageContext)
		}
	}
	st.SuccessRate = float64(st.SuccessCount) / float64(st.UsageCount)
	st.AverageFitnessGain += (fitnessGain - st.AverageFitnessGain) / float64(st.UsageCount)
	st.LastUsed = now
	st.LastUpdated = now

	if _, err := m.engine.StoreStrategy(ctx, st); err != nil {
		m.logger.Error("store strategy update failed",
			zap.String("agent", agentID), zap.String("strategy", strategyID), zap.Error(err))
		return err
	}
	return nil
}

// maxTrackedContexts caps the context snapshot lists on a strategy so a
// long-lived strategy does not grow without bound.
const maxTrackedContexts = 20

func appendContext(list []map[string]any, c map[string]any) []map[string]any {
	list = append(list, c)
	if len(list) > maxTrackedContexts {
		list = list[len(list)-maxTrackedContexts:]
	}
	return list
}
