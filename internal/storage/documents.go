package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/memory"
)

// StoreExperience upserts an episodic record keyed by its id. Re-storing the
// same id overwrites; a rejected write yields an empty id and an error the
// manager absorbs.
func (e *Engine) StoreExperience(ctx context.Context, exp *memory.Experience) (string, error) {
	vec := e.indexDocument(ctx, CollExperiences, exp.ExperienceID, experienceText(exp), exp.AgentID)

	env, err := json.Marshal(exp.EnvironmentState)
	if err != nil {
		return "", fmt.Errorf("marshal environment_state: %w", err)
	}
	actions, err := json.Marshal(exp.ActionsTaken)
	if err != nil {
		return "", fmt.Errorf("marshal actions_taken: %w", err)
	}

	_, err = e.db.Exec(ctx, `
		INSERT INTO experiences (
			id, agent_id, memory_type, occurred_at,
			loc_x, loc_y, loc_z, goal, environment_state, actions_taken,
			motor_dorsal, motor_ventral, motor_pharynx,
			outcome, fitness_change, energy_change, duration,
			tags, importance, embedding, created_at
		) VALUES ($1, $2, 'episodic', $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb,
		          $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
		ON CONFLICT (id) DO UPDATE SET
			occurred_at = EXCLUDED.occurred_at,
			loc_x = EXCLUDED.loc_x, loc_y = EXCLUDED.loc_y, loc_z = EXCLUDED.loc_z,
			goal = EXCLUDED.goal,
			environment_state = EXCLUDED.environment_state,
			actions_taken = EXCLUDED.actions_taken,
			motor_dorsal = EXCLUDED.motor_dorsal,
			motor_ventral = EXCLUDED.motor_ventral,
			motor_pharynx = EXCLUDED.motor_pharynx,
			outcome = EXCLUDED.outcome,
			fitness_change = EXCLUDED.fitness_change,
			energy_change = EXCLUDED.energy_change,
			duration = EXCLUDED.duration,
			tags = EXCLUDED.tags,
			importance = EXCLUDED.importance,
			embedding = EXCLUDED.embedding`,
		exp.ExperienceID, exp.AgentID, exp.Timestamp,
		exp.Location.X, exp.Location.Y, exp.Location.Z,
		exp.Goal, string(env), string(actions),
		exp.MotorCommands.Dorsal, exp.MotorCommands.Ventral, exp.MotorCommands.PharynxPump,
		string(exp.Outcome), exp.FitnessChange, exp.EnergyChange, exp.Duration,
		exp.Tags, exp.Importance, vec,
	)
	if err != nil {
		e.logger.Error("store experience failed",
			zap.String("id", exp.ExperienceID), zap.Error(err))
		return "", fmt.Errorf("store experience %s: %w", exp.ExperienceID, err)
	}
	return exp.ExperienceID, nil
}

// StoreKnowledgeFact upserts a semantic record keyed by its id.
func (e *Engine) StoreKnowledgeFact(ctx context.Context, fact *memory.KnowledgeFact) (string, error) {
	vec := e.indexDocument(ctx, CollFacts, fact.FactID, factText(fact), fact.AgentID)

	_, err := e.db.Exec(ctx, `
		INSERT INTO knowledge_facts (
			id, agent_id, memory_type, fact_type, content, confidence,
			source_experiences, evidence_count, first_learned, last_updated,
			tags, embedding, created_at
		) VALUES ($1, $2, 'semantic', $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id) DO UPDATE SET
			fact_type = EXCLUDED.fact_type,
			content = EXCLUDED.content,
			confidence = EXCLUDED.confidence,
			source_experiences = EXCLUDED.source_experiences,
			evidence_count = EXCLUDED.evidence_count,
			last_updated = EXCLUDED.last_updated,
			tags = EXCLUDED.tags,
			embedding = EXCLUDED.embedding`,
		fact.FactID, fact.AgentID, fact.FactType, fact.Content, fact.Confidence,
		fact.SourceExperiences, fact.EvidenceCount, fact.FirstLearned, fact.LastUpdated,
		fact.Tags, vec,
	)
	if err != nil {
		e.logger.Error("store knowledge fact failed",
			zap.String("id", fact.FactID), zap.Error(err))
		return "", fmt.Errorf("store knowledge fact %s: %w", fact.FactID, err)
	}
	return fact.FactID, nil
}

// StoreSpatialMemory upserts a spatial record keyed by its id.
func (e *Engine) StoreSpatialMemory(ctx context.Context, sm *memory.SpatialMemory) (string, error) {
	vec := e.indexDocument(ctx, CollSpatial, sm.LocationID, spatialText(sm), sm.AgentID)

	gradients, err := json.Marshal(sm.ChemicalGradients)
	if err != nil {
		return "", fmt.Errorf("marshal chemical_gradients: %w", err)
	}

	_, err = e.db.Exec(ctx, `
		INSERT INTO spatial_memories (
			id, agent_id, memory_type, coord_x, coord_y, coord_z, region_type,
			visit_count, success_rate, food_found_count,
			first_visited, last_visited, total_time_spent,
			average_temperature, chemical_gradients, tags, embedding, created_at
		) VALUES ($1, $2, 'spatial', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		          $13, $14::jsonb, $15, $16, now())
		ON CONFLICT (id) DO UPDATE SET
			region_type = EXCLUDED.region_type,
			visit_count = EXCLUDED.visit_count,
			success_rate = EXCLUDED.success_rate,
			food_found_count = EXCLUDED.food_found_count,
			last_visited = EXCLUDED.last_visited,
			total_time_spent = EXCLUDED.total_time_spent,
			average_temperature = EXCLUDED.average_temperature,
			chemical_gradients = EXCLUDED.chemical_gradients,
			tags = EXCLUDED.tags,
			embedding = EXCLUDED.embedding`,
		sm.LocationID, sm.AgentID,
		sm.Coordinates.X, sm.Coordinates.Y, sm.Coordinates.Z, sm.RegionType,
		sm.VisitCount, sm.SuccessRate, sm.FoodFoundCount,
		sm.FirstVisited, sm.LastVisited, sm.TotalTimeSpent,
		sm.AverageTemperature, string(gradients), sm.Tags, vec,
	)
	if err != nil {
		e.logger.Error("store spatial memory failed",
			zap.String("id", sm.LocationID), zap.Error(err))
		return "", fmt.Errorf("store spatial memory %s: %w", sm.LocationID, err)
	}
	return sm.LocationID, nil
}

// StoreStrategy upserts a procedural record keyed by its id.
func (e *Engine) StoreStrategy(ctx context.Context, st *memory.Strategy) (string, error) {
	vec := e.indexDocument(ctx, CollStrategies, st.StrategyID, strategyText(st), st.AgentID)

	triggers, err := json.Marshal(st.TriggerConditions)
	if err != nil {
		return "", fmt.Errorf("marshal trigger_conditions: %w", err)
	}
	actions, err := json.Marshal(st.ActionSequence)
	if err != nil {
		return "", fmt.Errorf("marshal action_sequence: %w", err)
	}
	effective, err := json.Marshal(st.EffectiveContexts)
	if err != nil {
		return "", fmt.Errorf("marshal effective_contexts: %w", err)
	}
	ineffective, err := json.Marshal(st.IneffectiveContexts)
	if err != nil {
		return "", fmt.Errorf("marshal ineffective_contexts: %w", err)
	}

	_, err = e.db.Exec(ctx, `
		INSERT INTO strategies (
			id, agent_id, memory_type, name, description,
			trigger_conditions, action_sequence,
			usage_count, success_count, failure_count, success_rate,
			average_fitness_gain, created, last_used, last_updated,
			effective_contexts, ineffective_contexts, tags, importance,
			embedding, created_at
		) VALUES ($1, $2, 'procedural', $3, $4, $5::jsonb, $6::jsonb,
		          $7, $8, $9, $10, $11, $12, $13, $14,
		          $15::jsonb, $16::jsonb, $17, $18, $19, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_conditions = EXCLUDED.trigger_conditions,
			action_sequence = EXCLUDED.action_sequence,
			usage_count = EXCLUDED.usage_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			success_rate = EXCLUDED.success_rate,
			average_fitness_gain = EXCLUDED.average_fitness_gain,
			last_used = EXCLUDED.last_used,
			last_updated = EXCLUDED.last_updated,
			effective_contexts = EXCLUDED.effective_contexts,
			ineffective_contexts = EXCLUDED.ineffective_contexts,
			tags = EXCLUDED.tags,
			importance = EXCLUDED.importance,
			embedding = EXCLUDED.embedding`,
		st.StrategyID, st.AgentID, st.Name, st.Description,
		string(triggers), string(actions),
		st.UsageCount, st.SuccessCount, st.FailureCount, st.SuccessRate,
		st.AverageFitnessGain, st.Created, st.LastUsed, st.LastUpdated,
		string(effective), string(ineffective), st.Tags, st.Importance, vec,
	)
	if err != nil {
		e.logger.Error("store strategy failed",
			zap.String("id", st.StrategyID), zap.Error(err))
		return "", fmt.Errorf("store strategy %s: %w", st.StrategyID, err)
	}
	return st.StrategyID, nil
}

// GetStrategy loads one strategy scoped to its agent.
func (e *Engine) GetStrategy(ctx context.Context, agentID, strategyID string) (*memory.Strategy, error) {
	row := e.db.QueryRow(ctx, selectStrategies+` WHERE id = $1 AND agent_id = $2`, strategyID, agentID)
	st, err := scanStrategyRow(row)
	if err != nil {
		return nil, fmt.Errorf("get strategy %s: %w", strategyID, err)
	}
	return st, nil
}

// scanRow is satisfied by both pgx.Row and pgx.Rows.
type scanRow interface {
	Scan(dest ...any) error
}

const selectExperiences = `
	SELECT id, agent_id, occurred_at, loc_x, loc_y, loc_z, goal,
	       environment_state, actions_taken,
	       motor_dorsal, motor_ventral, motor_pharynx,
	       outcome, fitness_change, energy_change, duration, tags, importance
	FROM experiences`

func scanExperienceRow(row scanRow) (*memory.Experience, error) {
	var (
		exp     memory.Experience
		env     []byte
		actions []byte
		outcome string
	)
	err := row.Scan(
		&exp.ExperienceID, &exp.AgentID, &exp.Timestamp,
		&exp.Location.X, &exp.Location.Y, &exp.Location.Z, &exp.Goal,
		&env, &actions,
		&exp.MotorCommands.Dorsal, &exp.MotorCommands.Ventral, &exp.MotorCommands.PharynxPump,
		&outcome, &exp.FitnessChange, &exp.EnergyChange, &exp.Duration,
		&exp.Tags, &exp.Importance,
	)
	if err != nil {
		return nil, err
	}
	exp.Outcome = memory.Outcome(outcome)
	if len(env) > 0 {
		if err := json.Unmarshal(env, &exp.EnvironmentState); err != nil {
			return nil, fmt.Errorf("unmarshal environment_state: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &exp.ActionsTaken); err != nil {
			return nil, fmt.Errorf("unmarshal actions_taken: %w", err)
		}
	}
	return &exp, nil
}

const selectFacts = `
	SELECT id, agent_id, fact_type, content, confidence,
	       source_experiences, evidence_count, first_learned, last_updated, tags
	FROM knowledge_facts`

func scanFactRow(row scanRow) (*memory.KnowledgeFact, error) {
	var fact memory.KnowledgeFact
	err := row.Scan(
		&fact.FactID, &fact.AgentID, &fact.FactType, &fact.Content, &fact.Confidence,
		&fact.SourceExperiences, &fact.EvidenceCount, &fact.FirstLearned, &fact.LastUpdated,
		&fact.Tags,
	)
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

const selectSpatial = `
	SELECT id, agent_id, coord_x, coord_y, coord_z, region_type,
	       visit_count, success_rate, food_found_count,
	       first_visited, last_visited, total_time_spent,
	       average_temperature, chemical_gradients, tags
	FROM spatial_memories`

func scanSpatialRow(row scanRow) (*memory.SpatialMemory, error) {
	var (
		sm        memory.SpatialMemory
		gradients []byte
	)
	err := row.Scan(
		&sm.LocationID, &sm.AgentID,
		&sm.Coordinates.X, &sm.Coordinates.Y, &sm.Coordinates.Z, &sm.RegionType,
		&sm.VisitCount, &sm.SuccessRate, &sm.FoodFoundCount,
		&sm.FirstVisited, &sm.LastVisited, &sm.TotalTimeSpent,
		&sm.AverageTemperature, &gradients, &sm.Tags,
	)
	if err != nil {
		return nil, err
	}
	if len(gradients) > 0 {
		if err := json.Unmarshal(gradients, &sm.ChemicalGradients); err != nil {
			return nil, fmt.Errorf("unmarshal chemical_gradients: %w", err)
		}
	}
	return &sm, nil
}

const selectStrategies = `
	SELECT id, agent_id, name, description, trigger_conditions, action_sequence,
	       usage_count, success_count, failure_count, success_rate,
	       average_fitness_gain, created, last_used, last_updated,
	       effective_contexts, ineffective_contexts, tags, importance
	FROM strategies`

func scanStrategyRow(row scanRow) (*memory.Strategy, error) {
	var (
		st          memory.Strategy
		triggers    []byte
		actions     []byte
		effective   []byte
		ineffective []byte
	)
	err := row.Scan(
		&st.StrategyID, &st.AgentID, &st.Name, &st.Description, &triggers, &actions,
		&st.UsageCount, &st.SuccessCount, &st.FailureCount, &st.SuccessRate,
		&st.AverageFitnessGain, &st.Created, &st.LastUsed, &st.LastUpdated,
		&effective, &ineffective, &st.Tags, &st.Importance,
	)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw  []byte
		dest any
	}{
		{triggers, &st.TriggerConditions},
		{actions, &st.ActionSequence},
		{effective, &st.EffectiveContexts},
		{ineffective, &st.IneffectiveContexts},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
				return nil, fmt.Errorf("unmarshal strategy field: %w", err)
			}
		}
	}
	return &st, nil
}
