package plans

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitcoachapp/backend/internal/goals"
	"github.com/fitcoachapp/backend/internal/middleware"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
	"github.com/fitcoachapp/backend/pkg"
)

type planGenerator interface {
	Generate(ctx context.Context, goal goals.StructuredGoal) (GenerateResult, error)
}

type workoutPlansRepo interface {
	Add(ctx context.Context, plan WorkoutPlan) (*WorkoutPlan, error)
	Get(ctx context.Context, goalID, userID string) (*WorkoutPlan, error)
	Delete(ctx context.Context, id string) error
}

type mealPlansRepo interface {
	Add(ctx context.Context, plan MealPlan) (*MealPlan, error)
	Get(ctx context.Context, goalID, userID string) (*MealPlan, error)
	Delete(ctx context.Context, id string) error
}

type GenerateRequest struct {
	GoalData        goals.StructuredGoal `json:"goalData"`
	ExperienceLevel string               `json:"experienceLevel,omitempty"`
}

type GenerateResponse struct {
	Success     bool          `json:"success"`
	Plan        GeneratedPlan `json:"plan"`
	RawResponse string        `json:"rawResponse,omitempty"`
}

type DeletePlanResponse struct {
	DeletedID string `json:"deletedId"`
}

type Handler struct {
	generator   planGenerator
	workoutRepo workoutPlansRepo
	mealRepo    mealPlansRepo
	metrics     *metrics.Manager
}

func NewHandler(
	generator planGenerator,
	workoutRepo workoutPlansRepo,
	mealRepo mealPlansRepo,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		generator:   generator,
		workoutRepo: workoutRepo,
		mealRepo:    mealRepo,
		metrics:     metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	llmAllowedPerMin int,
) {
	// generation hits the LLM provider, keep it behind a rate limit
	generateRouter := router.PathPrefix("/plans").Subrouter()
	generateRouter.HandleFunc("/generate", handler.HandleGenerate).Methods("POST", "OPTIONS").Name("generate-plan")
	generateRouter.Use(middleware.RateLimit(rateLimiter, "plans-generate", llmAllowedPerMin, handler.metrics))

	router.HandleFunc("/workout-plans", handler.HandleAddWorkoutPlan).Methods("POST", "OPTIONS").Name("new-workout-plan")
	router.HandleFunc("/workout-plans", handler.HandleGetWorkoutPlan).Methods("GET").Name("get-workout-plan")
	router.HandleFunc("/workout-plans/{id}", handler.HandleDeleteWorkoutPlan).Methods("DELETE", "OPTIONS").Name("delete-workout-plan")
	router.HandleFunc("/meal-plans", handler.HandleAddMealPlan).Methods("POST", "OPTIONS").Name("new-meal-plan")
	router.HandleFunc("/meal-plans", handler.HandleGetMealPlan).Methods("GET").Name("get-meal-plan")
	router.HandleFunc("/meal-plans/{id}", handler.HandleDeleteMealPlan).Methods("DELETE", "OPTIONS").Name("delete-meal-plan")
}

// HandleGenerate runs the full generation pipeline: provider call, JSON
// repair, structural normalization, stretching augmentation.
func (handler *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.generate")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("generate plan, unmarshal json params: %s", err)
		http.Error(w, "generate plan failed", http.StatusBadRequest)
		return
	}

	if !goals.GoalType(req.GoalData.GoalType).Valid() {
		http.Error(w, "error, invalid goal type", http.StatusBadRequest)
		return
	}

	generationStart := time.Now()
	result, err := handler.generator.Generate(ctx, req.GoalData)
	handler.metrics.HistPlanGenerationDuration.Observe(time.Since(generationStart).Seconds())

	if err != nil {
		handler.metrics.CounterPlanFailures.Inc()
		log.Errorf("generate plan for goal [%s]: %s", req.GoalData.GoalType, err)
		pkg.SendJsonError(w, http.StatusInternalServerError, "plan generation failed", err.Error())
		return
	}

	handler.metrics.CounterPlansGenerated.Inc()
	if result.Repaired {
		handler.metrics.CounterPlanRepairs.Inc()
	}

	AugmentPlanWithStretching(&result.Plan.WorkoutPlan, req.GoalData.GoalType, req.ExperienceLevel)

	pkg.SendJsonResponse(w, http.StatusOK, GenerateResponse{
		Success:     true,
		Plan:        result.Plan,
		RawResponse: result.Raw,
	})
}

func (handler *Handler) HandleAddWorkoutPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.newWorkoutPlan")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var plan WorkoutPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		log.Tracef("new workout plan, unmarshal json params: %s", err)
		http.Error(w, "add workout plan failed", http.StatusBadRequest)
		return
	}

	if plan.GoalID == "" || plan.UserID == "" {
		http.Error(w, "error, goal id or user id empty", http.StatusBadRequest)
		return
	}

	addedPlan, err := handler.workoutRepo.Add(ctx, plan)
	if err != nil {
		if errors.Is(err, ErrGoalMissing) {
			http.Error(w, "error, goal does not exist", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to add workout plan for goal %s: %s", plan.GoalID, err)
		http.Error(w, "error, failed to add workout plan", http.StatusInternalServerError)
		return
	}

	log.Debugf("new workout plan added: %s [goal %s]", addedPlan.ID, addedPlan.GoalID)
	pkg.SendJsonResponse(w, http.StatusCreated, addedPlan)
}

func (handler *Handler) HandleGetWorkoutPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.getWorkoutPlan")
	defer span.End()

	goalID := r.URL.Query().Get("goalId")
	userID := r.URL.Query().Get("userId")
	if goalID == "" || userID == "" {
		http.Error(w, "error, goalId or userId empty", http.StatusBadRequest)
		return
	}

	plan, err := handler.workoutRepo.Get(ctx, goalID, userID)
	if err != nil {
		if errors.Is(err, ErrWorkoutPlanNotFound) {
			http.Error(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get workout plan for goal %s: %s", goalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, plan)
}

func (handler *Handler) HandleDeleteWorkoutPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.deleteWorkoutPlan")
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	if err := handler.workoutRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrWorkoutPlanNotFound) {
			http.Error(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete workout plan %s: %s", id, err)
		http.Error(w, "workout plan not deleted", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, DeletePlanResponse{
		DeletedID: id,
	})
}

func (handler *Handler) HandleAddMealPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.newMealPlan")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var plan MealPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		log.Tracef("new meal plan, unmarshal json params: %s", err)
		http.Error(w, "add meal plan failed", http.StatusBadRequest)
		return
	}

	if plan.GoalID == "" || plan.UserID == "" {
		http.Error(w, "error, goal id or user id empty", http.StatusBadRequest)
		return
	}

	addedPlan, err := handler.mealRepo.Add(ctx, plan)
	if err != nil {
		if errors.Is(err, ErrGoalMissing) {
			http.Error(w, "error, goal does not exist", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to add meal plan for goal %s: %s", plan.GoalID, err)
		http.Error(w, "error, failed to add meal plan", http.StatusInternalServerError)
		return
	}

	log.Debugf("new meal plan added: %s [goal %s]", addedPlan.ID, addedPlan.GoalID)
	pkg.SendJsonResponse(w, http.StatusCreated, addedPlan)
}

func (handler *Handler) HandleGetMealPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.getMealPlan")
	defer span.End()

	goalID := r.URL.Query().Get("goalId")
	userID := r.URL.Query().Get("userId")
	if goalID == "" || userID == "" {
		http.Error(w, "error, goalId or userId empty", http.StatusBadRequest)
		return
	}

	plan, err := handler.mealRepo.Get(ctx, goalID, userID)
	if err != nil {
		if errors.Is(err, ErrMealPlanNotFound) {
			http.Error(w, "meal plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get meal plan for goal %s: %s", goalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, plan)
}

func (handler *Handler) HandleDeleteMealPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.deleteMealPlan")
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	if err := handler.mealRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrMealPlanNotFound) {
			http.Error(w, "meal plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete meal plan %s: %s", id, err)
		http.Error(w, "meal plan not deleted", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, DeletePlanResponse{
		DeletedID: id,
	})
}
