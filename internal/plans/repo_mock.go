package plans

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var (
	_ workoutPlansRepo = (*workoutRepoMock)(nil)
	_ mealPlansRepo    = (*mealRepoMock)(nil)
)

type workoutRepoMock struct {
	Plans  map[string]*WorkoutPlan
	AddErr error
	mutex  sync.Mutex
}

func newWorkoutRepoMock() *workoutRepoMock {
	return &workoutRepoMock{
		Plans: make(map[string]*WorkoutPlan),
	}
}

func (r *workoutRepoMock) Add(_ context.Context, plan WorkoutPlan) (*WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.AddErr != nil {
		return nil, r.AddErr
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	r.Plans[plan.ID] = &plan
	return &plan, nil
}

func (r *workoutRepoMock) Get(_ context.Context, goalID, userID string) (*WorkoutPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id := range r.Plans {
		if r.Plans[id].GoalID == goalID && r.Plans[id].UserID == userID {
			return r.Plans[id], nil
		}
	}
	return nil, ErrWorkoutPlanNotFound
}

func (r *workoutRepoMock) Delete(_ context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Plans[id]; !ok {
		return ErrWorkoutPlanNotFound
	}
	delete(r.Plans, id)
	return nil
}

type mealRepoMock struct {
	Plans  map[string]*MealPlan
	AddErr error
	mutex  sync.Mutex
}

func newMealRepoMock() *mealRepoMock {
	return &mealRepoMock{
		Plans: make(map[string]*MealPlan),
	}
}

func (r *mealRepoMock) Add(_ context.Context, plan MealPlan) (*MealPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.AddErr != nil {
		return nil, r.AddErr
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	r.Plans[plan.ID] = &plan
	return &plan, nil
}

func (r *mealRepoMock) Get(_ context.Context, goalID, userID string) (*MealPlan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id := range r.Plans {
		if r.Plans[id].GoalID == goalID && r.Plans[id].UserID == userID {
			return r.Plans[id], nil
		}
	}
	return nil, ErrMealPlanNotFound
}

func (r *mealRepoMock) Delete(_ context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Plans[id]; !ok {
		return ErrMealPlanNotFound
	}
	delete(r.Plans, id)
	return nil
}
