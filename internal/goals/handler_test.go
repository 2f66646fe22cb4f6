package goals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
)

var _ goalNormalizer = (*normalizerMock)(nil)

type normalizerMock struct {
	result NormalizeResult
	err    error
}

func (n *normalizerMock) Normalize(_ context.Context, _ []llm.Message) (NormalizeResult, error) {
	return n.result, n.err
}

type rateLimiterMock struct{}

func (rl *rateLimiterMock) Allow(
	_ context.Context, _ string, _ redis_rate.Limit,
) (*redis_rate.Result, error) {
	return &redis_rate.Result{Allowed: 1}, nil
}

func getTestHandlerAndRepo(t *testing.T, normalizer goalNormalizer) (*mux.Router, *Handler, *repoMock) {
	t.Helper()

	repo := newRepoMock()
	now := time.Now()
	for i := 0; i < 3; i++ {
		_, err := repo.Add(context.Background(), Goal{
			ID:        fmt.Sprintf("goal-%d", i),
			UserID:    "user-1",
			GoalType:  GoalTypeWeightLoss,
			Target:    fmt.Sprintf("Lose %d kg", i+1),
			Timeframe: "3 months",
			IsActive:  i == 0,
			CreatedAt: now.Add(time.Minute * time.Duration(i)),
		})
		require.NoError(t, err)
	}

	handler := NewHandler(repo, normalizer, NewActiveGoalCache(), metrics.NewTestManager())

	r := mux.NewRouter()
	handler.SetupRoutes(r, &rateLimiterMock{}, 10)

	return r, handler, repo
}

func TestHandler_routes(t *testing.T) {
	r, _, _ := getTestHandlerAndRepo(t, &normalizerMock{})

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"normalize": {
			name:   "normalize-goal",
			path:   "/goals/normalize",
			method: "POST",
		},
		"new-goal": {
			name:   "new-goal",
			path:   "/goals",
			method: "POST",
		},
		"user-goals": {
			name:   "user-goals",
			path:   "/goals/user/user-1",
			method: "GET",
		},
		"active-goal": {
			name:   "active-goal",
			path:   "/goals/user/user-1/active",
			method: "GET",
		},
		"get-goal": {
			name:   "get-goal",
			path:   "/goals/goal-0",
			method: "GET",
		},
		"update-goal": {
			name:   "update-goal",
			path:   "/goals/goal-0",
			method: "PUT",
		},
		"delete-goal": {
			name:   "delete-goal",
			path:   "/goals/goal-0",
			method: "DELETE",
		},
		"activate-goal": {
			name:   "activate-goal",
			path:   "/goals/goal-1/activate",
			method: "POST",
		},
		"goal-progress": {
			name:   "goal-progress",
			path:   "/goals/goal-0/progress",
			method: "PUT",
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

func TestHandler_handleNormalize(t *testing.T) {
	normalizer := &normalizerMock{
		result: NormalizeResult{
			Goal: StructuredGoal{
				GoalType:           "muscle_gain",
				Target:             "Gain 3kg of muscle",
				Timeframe:          "4 months",
				AvailableEquipment: []string{"barbell"},
				WorkoutDays:        []string{"tuesday", "saturday"},
				WorkoutDuration:    75,
			},
			Raw: `{"goal_type":"muscle_gain"}`,
		},
	}
	r, _, _ := getTestHandlerAndRepo(t, normalizer)

	reqBody, err := json.Marshal(NormalizeRequest{
		Messages: []llm.Message{{Role: "user", Content: "I want to gain muscle"}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/goals/normalize", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NormalizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Degraded)
	assert.Equal(t, "muscle_gain", resp.Goal.GoalType)
	assert.Equal(t, 75, resp.Goal.WorkoutDuration)
}

func TestHandler_handleNormalize_degraded(t *testing.T) {
	normalizer := &normalizerMock{
		result: NormalizeResult{
			Goal:           DefaultStructuredGoal(),
			Degraded:       true,
			DegradedReason: "provider call failed",
		},
	}
	r, _, _ := getTestHandlerAndRepo(t, normalizer)

	reqBody, err := json.Marshal(NormalizeRequest{
		Messages: []llm.Message{{Role: "user", Content: "help me get fit"}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/goals/normalize", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NormalizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Equal(t, "provider call failed", resp.DegradedReason)
	assert.Equal(t, DefaultStructuredGoal(), resp.Goal)
}

func TestHandler_handleNormalize_noUserMessage(t *testing.T) {
	normalizer := &normalizerMock{
		err: ErrNoUserMessage,
	}
	r, _, _ := getTestHandlerAndRepo(t, normalizer)

	reqBody, err := json.Marshal(NormalizeRequest{})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/goals/normalize", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_handleAdd(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	newGoal := Goal{
		UserID:    "user-2",
		GoalType:  GoalTypeEndurance,
		Target:    "Run a half marathon",
		Timeframe: "5 months",
	}
	reqBody, err := json.Marshal(newGoal)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/goals", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var addedGoal Goal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &addedGoal))
	assert.NotEmpty(t, addedGoal.ID)
	assert.Equal(t, GoalTypeEndurance, addedGoal.GoalType)
	assert.False(t, addedGoal.CreatedAt.IsZero())
	assert.Len(t, repo.Goals, 4)
}

func TestHandler_handleAdd_invalidGoalType(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	reqBody, err := json.Marshal(Goal{
		UserID:   "user-2",
		GoalType: "couch_surfing",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/goals", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, repo.Goals, 3)
}

func TestHandler_handleUpdate(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	reqBody, err := json.Marshal(map[string]interface{}{
		"userId":    "user-1",
		"goalType":  "weight_loss",
		"target":    "Lose 10 kg",
		"timeframe": "6 months",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("PUT", "/goals/goal-1", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Lose 10 kg", repo.Goals["goal-1"].Target)
}

func TestHandler_handleUpdate_isActiveRejected(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	for _, isActive := range []bool{true, false} {
		reqBody, err := json.Marshal(map[string]interface{}{
			"userId":    "user-1",
			"goalType":  "weight_loss",
			"target":    "Lose 10 kg",
			"timeframe": "6 months",
			"isActive":  isActive,
		})
		require.NoError(t, err)

		req, err := http.NewRequest("PUT", "/goals/goal-1", bytes.NewReader(reqBody))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}

	// the goal and its active state stayed untouched
	assert.Equal(t, "Lose 1 kg", repo.Goals["goal-0"].Target)
	assert.True(t, repo.Goals["goal-0"].IsActive)
	assert.False(t, repo.Goals["goal-1"].IsActive)
}

func TestHandler_handleList(t *testing.T) {
	r, _, _ := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("GET", "/goals/user/user-1", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Goals, 3)
	// newest first
	assert.Equal(t, "goal-2", resp.Goals[0].ID)
}

func TestHandler_handleGetActive(t *testing.T) {
	r, handler, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("GET", "/goals/user/user-1/active", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var activeGoal Goal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &activeGoal))
	assert.Equal(t, "goal-0", activeGoal.ID)
	assert.True(t, activeGoal.IsActive)

	// second read comes out of the cache, even with the repo emptied
	repo.Goals = map[string]*Goal{}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &activeGoal))
	assert.Equal(t, "goal-0", activeGoal.ID)

	// invalidated cache falls through to the repo again
	handler.cache.Invalidate("user-1")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_handleActivate(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("POST", "/goals/goal-2/activate", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ActivateGoalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "goal-2", resp.ActivatedID)

	// exactly one goal active, the previously active one got cleared
	activeCount := 0
	for id := range repo.Goals {
		if repo.Goals[id].IsActive {
			activeCount++
			assert.Equal(t, "goal-2", id)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestHandler_handleActivate_notFound(t *testing.T) {
	r, _, _ := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("POST", "/goals/no-such-goal/activate", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_handleUpdateProgress(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	reqBody, err := json.Marshal(UpdateProgressRequest{Progress: 42.5})
	require.NoError(t, err)

	req, err := http.NewRequest("PUT", "/goals/goal-1/progress", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 42.5, repo.Goals["goal-1"].Progress)
}

func TestHandler_handleUpdateProgress_outOfRange(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	for _, progress := range []float64{-1, 100.5} {
		reqBody, err := json.Marshal(UpdateProgressRequest{Progress: progress})
		require.NoError(t, err)

		req, err := http.NewRequest("PUT", "/goals/goal-1/progress", bytes.NewReader(reqBody))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}

	assert.Zero(t, repo.Goals["goal-1"].Progress)
}

func TestHandler_handleDelete(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("DELETE", "/goals/goal-1", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp DeleteGoalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "goal-1", resp.DeletedID)
	assert.Len(t, repo.Goals, 2)
	assert.Nil(t, repo.Goals["goal-1"])
}

func TestHandler_handleDelete_notFound(t *testing.T) {
	r, _, repo := getTestHandlerAndRepo(t, &normalizerMock{})

	req, err := http.NewRequest("DELETE", "/goals/no-such-goal", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Len(t, repo.Goals, 3)
}
