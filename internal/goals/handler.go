package goals

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/middleware"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
	"github.com/fitcoachapp/backend/pkg"
)

type goalsRepo interface {
	Add(ctx context.Context, goal Goal) (*Goal, error)
	Get(ctx context.Context, id string) (*Goal, error)
	List(ctx context.Context, userID string) ([]Goal, error)
	GetActive(ctx context.Context, userID string) (*Goal, error)
	Update(ctx context.Context, goal *Goal) error
	Activate(ctx context.Context, userID, goalID string) error
	Deactivate(ctx context.Context, userID, goalID string) error
	UpdateProgress(ctx context.Context, userID, goalID string, progress float64) error
	Delete(ctx context.Context, id string) error
}

type goalNormalizer interface {
	Normalize(ctx context.Context, transcript []llm.Message) (NormalizeResult, error)
}

type NormalizeRequest struct {
	Messages []llm.Message `json:"messages"`
}

type NormalizeResponse struct {
	Goal           StructuredGoal `json:"goal"`
	Raw            string         `json:"raw,omitempty"`
	Degraded       bool           `json:"degraded"`
	DegradedReason string         `json:"degradedReason,omitempty"`
}

type DeleteGoalResponse struct {
	DeletedID string `json:"deletedId"`
}

type UpdateGoalResponse struct {
	UpdatedID string `json:"updatedId"`
}

type ActivateGoalResponse struct {
	ActivatedID string `json:"activatedId"`
}

type ListResponse struct {
	Goals []Goal `json:"goals"`
	Total int    `json:"total"`
}

type Handler struct {
	repo       goalsRepo
	normalizer goalNormalizer
	cache      *ActiveGoalCache
	metrics    *metrics.Manager
}

func NewHandler(
	repo goalsRepo,
	normalizer goalNormalizer,
	cache *ActiveGoalCache,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:       repo,
		normalizer: normalizer,
		cache:      cache,
		metrics:    metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	llmAllowedPerMin int,
) {
	// normalization hits the LLM provider, keep it behind a rate limit
	normalizeRouter := router.PathPrefix("/goals").Subrouter()
	normalizeRouter.HandleFunc("/normalize", handler.HandleNormalize).Methods("POST", "OPTIONS").Name("normalize-goal")
	normalizeRouter.Use(middleware.RateLimit(rateLimiter, "goals-normalize", llmAllowedPerMin, handler.metrics))

	router.HandleFunc("/goals", handler.HandleAdd).Methods("POST", "OPTIONS").Name("new-goal")
	router.HandleFunc("/goals/user/{userId}", handler.HandleList).Methods("GET").Name("user-goals")
	router.HandleFunc("/goals/user/{userId}/active", handler.HandleGetActive).Methods("GET").Name("active-goal")
	router.HandleFunc("/goals/{id}", handler.HandleGet).Methods("GET").Name("get-goal")
	router.HandleFunc("/goals/{id}", handler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-goal")
	router.HandleFunc("/goals/{id}", handler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-goal")
	router.HandleFunc("/goals/{id}/activate", handler.HandleActivate).Methods("POST", "OPTIONS").Name("activate-goal")
	router.HandleFunc("/goals/{id}/deactivate", handler.HandleDeactivate).Methods("POST", "OPTIONS").Name("deactivate-goal")
	router.HandleFunc("/goals/{id}/progress", handler.HandleUpdateProgress).Methods("PUT", "OPTIONS").Name("goal-progress")
}

func (handler *Handler) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.normalize")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("normalize goal, unmarshal json params: %s", err)
		http.Error(w, "normalize goal failed", http.StatusBadRequest)
		return
	}

	result, err := handler.normalizer.Normalize(ctx, req.Messages)
	if err != nil {
		if errors.Is(err, ErrNoUserMessage) {
			http.Error(w, "error, no user message in conversation", http.StatusBadRequest)
			return
		}
		log.Errorf("normalize goal: %s", err)
		http.Error(w, "normalize goal failed", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterGoalsNormalized.Inc()
	if result.Degraded {
		handler.metrics.CounterGoalsDegraded.Inc()
	}

	pkg.SendJsonResponse(w, http.StatusOK, NormalizeResponse{
		Goal:           result.Goal,
		Raw:            result.Raw,
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
	})
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var goal Goal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		log.Tracef("new goal, unmarshal json params: %s", err)
		http.Error(w, "add goal failed", http.StatusBadRequest)
		return
	}

	if goal.UserID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}
	if !goal.GoalType.Valid() {
		http.Error(w, "error, invalid goal type", http.StatusBadRequest)
		return
	}

	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = time.Now()
	}

	addedGoal, err := handler.repo.Add(ctx, goal)
	if err != nil {
		log.Errorf("failed to add new goal [%s] for user %s: %s", goal.GoalType, goal.UserID, err)
		http.Error(w, "error, failed to add new goal", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	log.Debugf("new goal added: %s [%s]", addedGoal.ID, addedGoal.GoalType)
	pkg.SendJsonResponse(w, http.StatusCreated, addedGoal)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.get")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	goal, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "goal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get goal %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, goal)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.list")
	defer span.End()

	vars := mux.Vars(r)
	userID := vars["userId"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	goals, err := handler.repo.List(ctx, userID)
	if err != nil {
		log.Errorf("list goals for user %s: %s", userID, err)
		http.Error(w, "failed to get goals", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, ListResponse{
		Goals: goals,
		Total: len(goals),
	})
}

// HandleGetActive serves the current goal of the user, first from the
// in-process cache, then from the database.
func (handler *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.getActive")
	defer span.End()

	vars := mux.Vars(r)
	userID := vars["userId"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	if goal, ok := handler.cache.Get(userID); ok {
		pkg.SendJsonResponse(w, http.StatusOK, goal)
		return
	}

	goal, err := handler.repo.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "no active goal", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get active goal for user %s: %s", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.cache.Set(userID, goal)

	pkg.SendJsonResponse(w, http.StatusOK, goal)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.update")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	// isActive is not updatable here, the activate / deactivate endpoints
	// own that transition
	var req struct {
		Goal
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("update goal, unmarshal json params: %s", err)
		http.Error(w, "update goal failed", http.StatusBadRequest)
		return
	}
	if req.IsActive != nil {
		http.Error(w, "error, isActive not updatable here, use the activate / deactivate endpoints", http.StatusBadRequest)
		return
	}

	goal := req.Goal
	vars := mux.Vars(r)
	goal.ID = vars["id"]
	if goal.ID == "" || goal.UserID == "" {
		http.Error(w, "error, goal id or user id empty", http.StatusBadRequest)
		return
	}
	if !goal.GoalType.Valid() {
		http.Error(w, "error, invalid goal type", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, &goal); err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "goal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to update goal %s: %s", goal.ID, err)
		http.Error(w, "error, failed to update goal", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	pkg.SendJsonResponse(w, http.StatusOK, UpdateGoalResponse{
		UpdatedID: goal.ID,
	})
}

// HandleActivate makes the given goal the only active goal of its user.
func (handler *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.activate")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	goal, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "goal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get goal %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Activate(ctx, goal.UserID, goal.ID); err != nil {
		log.Errorf("failed to activate goal %s: %s", goal.ID, err)
		http.Error(w, "error, failed to activate goal", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	log.Debugf("goal %s activated for user %s", goal.ID, goal.UserID)
	pkg.SendJsonResponse(w, http.StatusOK, ActivateGoalResponse{
		ActivatedID: goal.ID,
	})
}

func (handler *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.deactivate")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	goal, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "goal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get goal %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Deactivate(ctx, goal.UserID, goal.ID); err != nil {
		log.Errorf("failed to deactivate goal %s: %s", goal.ID, err)
		http.Error(w, "error, failed to deactivate goal", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	pkg.SendJsonResponse(w, http.StatusOK, UpdateGoalResponse{
		UpdatedID: goal.ID,
	})
}

type UpdateProgressRequest struct {
	Progress float64 `json:"progress"`
}

func (handler *Handler) HandleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.progress")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	var req UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update goal progress, unmarshal json params: %s", err)
		http.Error(w, "update progress failed", http.StatusBadRequest)
		return
	}

	if req.Progress < 0 || req.Progress > 100 {
		http.Error(w, "error, progress must be between 0 and 100", http.StatusBadRequest)
		return
	}

	goal, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			http.Error(w, "goal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get goal %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.UpdateProgress(ctx, goal.UserID, goal.ID, req.Progress); err != nil {
		log.Errorf("failed to update progress of goal %s: %s", goal.ID, err)
		http.Error(w, "error, failed to update progress", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	pkg.SendJsonResponse(w, http.StatusOK, UpdateGoalResponse{
		UpdatedID: goal.ID,
	})
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.goals.delete")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	goal, err := handler.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrGoalNotFound) {
		log.Errorf("failed to get goal %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	} else if errors.Is(err, ErrGoalNotFound) {
		log.Debugf("goal %s not found", id)
		http.Error(w, "goal not found", http.StatusNotFound)
		return
	}

	log.Debugf("deleting goal %s of user %s", goal.ID, goal.UserID)

	if err := handler.repo.Delete(ctx, id); err != nil {
		log.Errorf("failed to delete goal %s: %s", id, err)
		http.Error(w, "goal not deleted", http.StatusInternalServerError)
		return
	}

	handler.cache.Invalidate(goal.UserID)

	pkg.SendJsonResponse(w, http.StatusOK, DeleteGoalResponse{
		DeletedID: id,
	})
}
