package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/wormwood/internal/memory"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	manager *memory.Manager
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(manager *memory.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/agents/{id}", func(r chi.Router) {
			r.Post("/experiences", h.recordExperience)
			r.Get("/memories", h.retrieveMemories)
			r.Get("/spatial-context", h.spatialContext)
			r.Get("/strategies", h.bestStrategies)
			r.Post("/strategies", h.createStrategy)
			r.Post("/strategies/{strategyID}/outcome", h.strategyOutcome)
			r.Get("/stats", h.memoryStats)
			r.Post("/consolidate", h.consolidate)
			r.Get("/facts/{factID}/provenance", h.factProvenance)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "wormwood"})
}

type experienceRequest struct {
	Location         memory.Location    `json:"location"`
	Goal             string             `json:"goal"`
	ActionsTaken     []memory.Action    `json:"actions_taken"`
	MotorCommands    map[string]float64 `json:"motor_commands"`
	Outcome          memory.Outcome     `json:"outcome"`
	FitnessChange    float64            `json:"fitness_change"`
	EnergyChange     float64            `json:"energy_change"`
	Duration         float64            `json:"duration"`
	EnvironmentState map[string]any     `json:"environment_state"`
	Tags             []string           `json:"tags"`
}

func (h *Handler) recordExperience(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	var req experienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}
	if req.Outcome == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "outcome is required"})
		return
	}

	id, err := h.manager.RecordExperience(r.Context(), memory.ExperienceInput{
		AgentID:          agentID,
		Location:         req.Location,
		Goal:             req.Goal,
		ActionsTaken:     req.ActionsTaken,
		MotorCommands:    req.MotorCommands,
		Outcome:          req.Outcome,
		FitnessChange:    req.FitnessChange,
		EnergyChange:     req.EnergyChange,
		Duration:         req.Duration,
		EnvironmentState: req.EnvironmentState,
		Tags:             req.Tags,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"experience_id": id})
}

func (h *Handler) retrieveMemories(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	q := r.URL.Query()

	goal := q.Get("goal")
	extra := q.Get("context")
	loc, err := locationFromQuery(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, err := parseInt("limit", q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var types []memory.Type
	for _, raw := range q["type"] {
		types = append(types, memory.Type(raw))
	}

	results, err := h.manager.RetrieveRelevantMemories(r.Context(), agentID, loc, goal, extra, types, limit)
	if err != nil {
		// Partial failures still return the per-type map; the caller sees
		// which types came back empty.
		h.logger.Warn("memory retrieval partially failed",
			zap.String("agent", agentID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) spatialContext(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	q := r.URL.Query()
	loc, err := locationFromQuery(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	radius, err := parseFloat("radius", q.Get("radius"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sc, err := h.manager.GetSpatialContext(r.Context(), agentID, loc, radius)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) bestStrategies(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	goal := r.URL.Query().Get("goal")
	limit, err := parseInt("limit", r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	strategies, err := h.manager.GetBestStrategiesForGoal(r.Context(), agentID, goal, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, strategies)
}

type strategyRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	TriggerConditions map[string]any  `json:"trigger_conditions"`
	ActionSequence    []memory.Action `json:"action_sequence"`
	Context           map[string]any  `json:"context"`
	Tags              []string        `json:"tags"`
}

func (h *Handler) createStrategy(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	id, err := h.manager.CreateOrUpdateStrategy(r.Context(), memory.StrategyInput{
		AgentID:           agentID,
		Name:              req.Name,
		Description:       req.Description,
		TriggerConditions: req.TriggerConditions,
		ActionSequence:    req.ActionSequence,
		Context:           req.Context,
		Tags:              req.Tags,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"strategy_id": id})
}

type outcomeRequest struct {
	Success     bool           `json:"success"`
	FitnessGain float64        `json:"fitness_gain"`
	Context     map[string]any `json:"context"`
}

func (h *Handler) strategyOutcome(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	strategyID := chi.URLParam(r, "strategyID")
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.manager.UpdateStrategyPerformance(r.Context(), agentID, strategyID, req.Success, req.FitnessGain, req.Context); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) memoryStats(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	stats := h.manager.GetMemoryStatistics(r.Context(), agentID)
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	result, err := h.manager.Consolidate(r.Context(), agentID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) factProvenance(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	factID := chi.URLParam(r, "factID")
	ids, err := h.manager.GetFactProvenance(r.Context(), agentID, factID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fact_id": factID, "source_experiences": ids})
}

func parseFloat(name, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

func parseInt(name, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

func locationFromQuery(q url.Values) (memory.Location, error) {
	x, err := parseFloat("x", q.Get("x"))
	if err != nil {
		return memory.Location{}, err
	}
	y, err := parseFloat("y", q.Get("y"))
	if err != nil {
		return memory.Location{}, err
	}
	z, err := parseFloat("z", q.Get("z"))
	if err != nil {
		return memory.Location{}, err
	}
	return memory.Location{X: x, Y: y, Z: z}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
