package memory

import (
	"math"
	"time"
)

// Type identifies one of the four memory kinds.
type Type string

const (
	TypeEpisodic   Type = "episodic"   // experiences and events
	TypeSemantic   Type = "semantic"   // facts and knowledge
	TypeSpatial    Type = "spatial"    // location-based memory
	TypeProcedural Type = "procedural" // strategies and behaviors
)

// AllTypes lists every memory type in blend order.
func AllTypes() []Type {
	return []Type{TypeEpisodic, TypeSemantic, TypeSpatial, TypeProcedural}
}

// Outcome classifies how an experience ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Location is a point in the simulated 3-D environment.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the Euclidean distance to another location.
func (l Location) DistanceTo(o Location) float64 {
	dx := l.X - o.X
	dy := l.Y - o.Y
	dz := l.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// MotorCommands is the normalized continuous activation set the control
// loop reports with every experience.
type MotorCommands struct {
	Dorsal      float64 `json:"dorsal"`
	Ventral     float64 `json:"ventral"`
	PharynxPump float64 `json:"pharynx_pump"`
}

// NormalizeMotorCommands coerces an arbitrary command map into the three
// canonical channels. Absent fields default to 0.0, extra fields are dropped.
func NormalizeMotorCommands(raw map[string]float64) MotorCommands {
	return MotorCommands{
		Dorsal:      raw["dorsal"],
		Ventral:     raw["ventral"],
		PharynxPump: raw["pharynx_pump"],
	}
}

// Action is a single step descriptor inside an experience or strategy.
type Action map[string]any

// Experience is an episodic memory: one event, immutable once written.
type Experience struct {
	ExperienceID     string         `json:"experience_id"`
	AgentID          string         `json:"agent_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Location         Location       `json:"location"`
	Goal             string         `json:"goal"`
	EnvironmentState map[string]any `json:"environment_state"`
	ActionsTaken     []Action       `json:"actions_taken"`
	MotorCommands    MotorCommands  `json:"motor_commands"`
	Outcome          Outcome        `json:"outcome"`
	FitnessChange    float64        `json:"fitness_change"`
	EnergyChange     float64        `json:"energy_change"`
	Duration         float64        `json:"duration"`
	Tags             []string       `json:"tags"`
	Importance       float64        `json:"importance"`
}

// KnowledgeFact is a semantic memory: a generalized statement derived from
// experiences by consolidation. The control loop never writes these directly.
type KnowledgeFact struct {
	FactID            string    `json:"fact_id"`
	AgentID           string    `json:"agent_id"`
	FactType          string    `json:"fact_type"`
	Content           string    `json:"content"`
	Confidence        float64   `json:"confidence"`
	SourceExperiences []string  `json:"source_experiences"`
	EvidenceCount     int       `json:"evidence_count"`
	FirstLearned      time.Time `json:"first_learned"`
	LastUpdated       time.Time `json:"last_updated"`
	Tags              []string  `json:"tags"`
}

// SpatialMemory aggregates what the agent knows about one neighborhood of
// locations. A record stands for the fixed-radius region around its
// coordinates, not an exact point.
type SpatialMemory struct {
	LocationID         string             `json:"location_id"`
	AgentID            string             `json:"agent_id"`
	Coordinates        Location           `json:"coordinates"`
	RegionType         string             `json:"region_type"`
	VisitCount         int                `json:"visit_count"`
	SuccessRate        float64            `json:"success_rate"`
	FoodFoundCount     int                `json:"food_found_count"`
	FirstVisited       time.Time          `json:"first_visited"`
	LastVisited        time.Time          `json:"last_visited"`
	TotalTimeSpent     float64            `json:"total_time_spent"`
	AverageTemperature *float64           `json:"average_temperature,omitempty"`
	ChemicalGradients  map[string]float64 `json:"chemical_gradients,omitempty"`
	Tags               []string           `json:"tags"`
}

// Strategy is a procedural memory: a reusable action sequence with trigger
// conditions and a performance track record.
type Strategy struct {
	StrategyID          string           `json:"strategy_id"`
	AgentID             string           `json:"agent_id"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	TriggerConditions   map[string]any   `json:"trigger_conditions"`
	ActionSequence      []Action         `json:"action_sequence"`
	UsageCount          int              `json:"usage_count"`
	SuccessCount        int              `json:"success_count"`
	FailureCount        int              `json:"failure_count"`
	SuccessRate         float64          `json:"success_rate"`
	AverageFitnessGain  float64          `json:"average_fitness_gain"`
	Created             time.Time        `json:"created"`
	LastUsed            time.Time        `json:"last_used"`
	LastUpdated         time.Time        `json:"last_updated"`
	EffectiveContexts   []map[string]any `json:"effective_contexts"`
	IneffectiveContexts []map[string]any `json:"ineffective_contexts"`
	Tags                []string         `json:"tags"`
	Importance          float64          `json:"importance"`
}

// Query describes one retrieval request. It is transient and never persisted.
// AgentID is mandatory: no query ever crosses agents.
type Query struct {
	AgentID      string     `json:"agent_id"`
	Types        []Type     `json:"types"`
	Text         string     `json:"text,omitempty"`
	Location     *Location  `json:"location,omitempty"`
	Radius       float64    `json:"radius,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Limit        int        `json:"limit"`
	MinRelevance float64    `json:"min_relevance"`
}

// Record is any persisted memory entity.
type Record interface {
	RecordID() string
	RecordAgent() string
}

func (e *Experience) RecordID() string       { return e.ExperienceID }
func (e *Experience) RecordAgent() string    { return e.AgentID }
func (f *KnowledgeFact) RecordID() string    { return f.FactID }
func (f *KnowledgeFact) RecordAgent() string { return f.AgentID }
func (s *SpatialMemory) RecordID() string    { return s.LocationID }
func (s *SpatialMemory) RecordAgent() string { return s.AgentID }
func (s *Strategy) RecordID() string         { return s.StrategyID }
func (s *Strategy) RecordAgent() string      { return s.AgentID }

// Match is one retrieval hit together with its relevance score. Relevance is
// cosine similarity when semantic scoring ran, 1.0 otherwise.
type Match struct {
	Type      Type    `json:"type"`
	Relevance float64 `json:"relevance"`
	Record    Record  `json:"record"`
}

// ConsolidationResult reports one consolidation pass.
type ConsolidationResult struct {
	ConsolidatedCount int           `json:"consolidated_count"`
	NewKnowledgeCount int           `json:"new_knowledge_count"`
	UpdatedStrategies []string      `json:"updated_strategies"`
	ProcessingTime    time.Duration `json:"processing_time"`
	Summary           string        `json:"summary"`
}

// ComputeImportance derives the importance score for a new experience from
// its outcome and the magnitude of the fitness change. Failures score almost
// as high as successes: they carry learning signal too.
func ComputeImportance(outcome Outcome, fitnessChange float64) float64 {
	importance := 0.5
	switch outcome {
	case OutcomeSuccess:
		importance += 0.3
	case OutcomeFailure:
		importance += 0.2
	}
	importance += math.Min(math.Abs(fitnessChange), 0.2)
	return math.Min(importance, 1.0)
}
