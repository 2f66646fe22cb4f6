package plans

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoachapp/backend/internal/goals"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
	"github.com/fitcoachapp/backend/pkg"
)

var _ planGenerator = (*generatorMock)(nil)

type generatorMock struct {
	result GenerateResult
	err    error
	calls  int
}

func (g *generatorMock) Generate(_ context.Context, _ goals.StructuredGoal) (GenerateResult, error) {
	g.calls++
	return g.result, g.err
}

type rateLimiterMock struct{}

func (rl *rateLimiterMock) Allow(
	_ context.Context, _ string, _ redis_rate.Limit,
) (*redis_rate.Result, error) {
	return &redis_rate.Result{Allowed: 1}, nil
}

func getTestHandler(t *testing.T, generator planGenerator) (*mux.Router, *workoutRepoMock, *mealRepoMock) {
	t.Helper()

	workoutRepo := newWorkoutRepoMock()
	mealRepo := newMealRepoMock()
	handler := NewHandler(generator, workoutRepo, mealRepo, metrics.NewTestManager())

	r := mux.NewRouter()
	handler.SetupRoutes(r, &rateLimiterMock{}, 10)

	return r, workoutRepo, mealRepo
}

func TestHandler_routes(t *testing.T) {
	r, _, _ := getTestHandler(t, &generatorMock{})

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"generate": {
			name:   "generate-plan",
			path:   "/plans/generate",
			method: "POST",
		},
		"new-workout-plan": {
			name:   "new-workout-plan",
			path:   "/workout-plans",
			method: "POST",
		},
		"get-workout-plan": {
			name:   "get-workout-plan",
			path:   "/workout-plans",
			method: "GET",
		},
		"delete-workout-plan": {
			name:   "delete-workout-plan",
			path:   "/workout-plans/some-id",
			method: "DELETE",
		},
		"new-meal-plan": {
			name:   "new-meal-plan",
			path:   "/meal-plans",
			method: "POST",
		},
		"get-meal-plan": {
			name:   "get-meal-plan",
			path:   "/meal-plans",
			method: "GET",
		},
		"delete-meal-plan": {
			name:   "delete-meal-plan",
			path:   "/meal-plans/some-id",
			method: "DELETE",
		},
	} {
		t.Run(caseName, func(t *testing.T) {
			req, err := http.NewRequest(route.method, route.path, nil)
			require.NoError(t, err)

			routeMatch := &mux.RouteMatch{}
			muxRoute := r.Get(route.name)
			require.NotNil(t, muxRoute)
			assert.True(t, muxRoute.Match(req, routeMatch), caseName)
		})
	}
}

func TestHandler_handleGenerate(t *testing.T) {
	plan, _, err := parseGeneratedPlan(validPlanJson)
	require.NoError(t, err)

	generator := &generatorMock{
		result: GenerateResult{Plan: plan, Raw: validPlanJson},
	}
	r, _, _ := getTestHandler(t, generator)

	reqBody, err := json.Marshal(GenerateRequest{GoalData: goals.StructuredGoal{
		GoalType:        "weight_loss",
		Target:          "Lose 5kg",
		Timeframe:       "2 months",
		WorkoutDays:     []string{"monday"},
		WorkoutDuration: 45,
	}})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/plans/generate", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, validPlanJson, resp.RawResponse)
	assert.Equal(t, 1, generator.calls)

	// stretching augmentation applied on the way out
	require.NotEmpty(t, resp.Plan.WorkoutPlan.WeeklySchedule)
	day := resp.Plan.WorkoutPlan.WeeklySchedule[0]
	assert.NotEmpty(t, day.WarmUp)
	assert.NotEmpty(t, day.CoolDown)
	assert.Equal(t, FlexInt(10), day.StretchingDuration)
}

func TestHandler_handleGenerate_generationFailed(t *testing.T) {
	generator := &generatorMock{err: ErrPlanGeneration}
	r, _, _ := getTestHandler(t, generator)

	reqBody, err := json.Marshal(GenerateRequest{GoalData: goals.StructuredGoal{
		GoalType: "weight_loss",
	}})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/plans/generate", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var errResp pkg.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "plan generation failed", errResp.Error)
	assert.NotEmpty(t, errResp.Details)
}

func TestHandler_handleGenerate_invalidGoalType(t *testing.T) {
	generator := &generatorMock{}
	r, _, _ := getTestHandler(t, generator)

	reqBody, err := json.Marshal(GenerateRequest{GoalData: goals.StructuredGoal{
		GoalType: "world_domination",
	}})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/plans/generate", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, generator.calls)
}

func TestHandler_workoutPlanRoundTrip(t *testing.T) {
	r, workoutRepo, _ := getTestHandler(t, &generatorMock{})

	newPlan := WorkoutPlan{
		GoalID: "goal-1",
		UserID: "user-1",
		Name:   "Strength block",
		Weeks: []WeeklyWorkout{
			{
				WeekNumber: 1,
				Days: []DailyWorkout{
					{
						Day:         "monday",
						WorkoutType: "strength",
						Exercises: []Exercise{
							{Name: "Squat", Sets: 5, Reps: "5", Weight: "80kg"},
						},
					},
				},
			},
		},
	}
	reqBody, err := json.Marshal(newPlan)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/workout-plans", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var addedPlan WorkoutPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &addedPlan))
	assert.NotEmpty(t, addedPlan.ID)
	assert.Len(t, workoutRepo.Plans, 1)

	req, err = http.NewRequest("GET", "/workout-plans?goalId=goal-1&userId=user-1", nil)
	require.NoError(t, err)
	rr = httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var fetchedPlan WorkoutPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetchedPlan))
	assert.Equal(t, addedPlan.ID, fetchedPlan.ID)
	require.Len(t, fetchedPlan.Weeks, 1)
	require.Len(t, fetchedPlan.Weeks[0].Days, 1)
	assert.Equal(t, "Squat", fetchedPlan.Weeks[0].Days[0].Exercises[0].Name)

	req, err = http.NewRequest("DELETE", "/workout-plans/"+addedPlan.ID, nil)
	require.NoError(t, err)
	rr = httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, workoutRepo.Plans)
}

func TestHandler_addWorkoutPlan_goalMissing(t *testing.T) {
	r, workoutRepo, _ := getTestHandler(t, &generatorMock{})
	workoutRepo.AddErr = ErrGoalMissing

	reqBody, err := json.Marshal(WorkoutPlan{
		GoalID: "no-such-goal",
		UserID: "user-1",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/workout-plans", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, workoutRepo.Plans)
}

func TestHandler_addMealPlan_goalMissing(t *testing.T) {
	r, _, mealRepo := getTestHandler(t, &generatorMock{})
	mealRepo.AddErr = ErrGoalMissing

	reqBody, err := json.Marshal(MealPlan{
		GoalID: "no-such-goal",
		UserID: "user-1",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/meal-plans", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, mealRepo.Plans)
}

func TestHandler_workoutPlan_missingParams(t *testing.T) {
	r, _, _ := getTestHandler(t, &generatorMock{})

	req, err := http.NewRequest("GET", "/workout-plans?goalId=goal-1", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_mealPlanRoundTrip(t *testing.T) {
	r, _, mealRepo := getTestHandler(t, &generatorMock{})

	newPlan := MealPlan{
		GoalID:        "goal-1",
		UserID:        "user-1",
		Name:          "Cutting meals",
		DailyCalories: 1800,
		Days: []DailyMeals{
			{
				Day: "monday",
				Meals: []Meal{
					{
						Meal:         "breakfast",
						Name:         "Oatmeal",
						Calories:     350,
						Ingredients:  []string{"oats", "milk"},
						Instructions: "Cook oats in milk.",
					},
				},
			},
		},
	}
	reqBody, err := json.Marshal(newPlan)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/meal-plans", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Len(t, mealRepo.Plans, 1)

	req, err = http.NewRequest("GET", "/meal-plans?goalId=goal-1&userId=user-1", nil)
	require.NoError(t, err)
	rr = httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var fetchedPlan MealPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetchedPlan))
	require.Len(t, fetchedPlan.Days, 1)
	assert.Equal(t, "Oatmeal", fetchedPlan.Days[0].Meals[0].Name)

	req, err = http.NewRequest("DELETE", "/meal-plans/"+fetchedPlan.ID, nil)
	require.NoError(t, err)
	rr = httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, mealRepo.Plans)
}

func TestHandler_deleteMealPlan_notFound(t *testing.T) {
	r, _, _ := getTestHandler(t, &generatorMock{})

	req, err := http.NewRequest("DELETE", "/meal-plans/no-such-plan", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
