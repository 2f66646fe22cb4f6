package goals

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var _ goalsRepo = (*repoMock)(nil)

type repoMock struct {
	Goals map[string]*Goal
	mutex sync.Mutex
}

func newRepoMock() *repoMock {
	return &repoMock{
		Goals: make(map[string]*Goal),
	}
}

func (r *repoMock) Add(_ context.Context, goal Goal) (*Goal, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}

	r.Goals[goal.ID] = &goal
	return &goal, nil
}

func (r *repoMock) Get(_ context.Context, id string) (*Goal, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	goal, ok := r.Goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	return goal, nil
}

func (r *repoMock) List(_ context.Context, userID string) ([]Goal, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var goals []Goal
	for id := range r.Goals {
		if r.Goals[id].UserID == userID {
			goals = append(goals, *r.Goals[id])
		}
	}

	sort.Slice(goals, func(i, j int) bool {
		return goals[i].CreatedAt.After(goals[j].CreatedAt)
	})

	return goals, nil
}

func (r *repoMock) GetActive(_ context.Context, userID string) (*Goal, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id := range r.Goals {
		if r.Goals[id].UserID == userID && r.Goals[id].IsActive {
			return r.Goals[id], nil
		}
	}
	return nil, ErrGoalNotFound
}

func (r *repoMock) Update(_ context.Context, goal *Goal) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	current, ok := r.Goals[goal.ID]
	if !ok || current.UserID != goal.UserID {
		return ErrGoalNotFound
	}

	current.GoalType = goal.GoalType
	current.Target = goal.Target
	current.Timeframe = goal.Timeframe
	current.StartDate = goal.StartDate
	current.TargetDate = goal.TargetDate
	current.Progress = goal.Progress

	return nil
}

func (r *repoMock) Activate(_ context.Context, userID, goalID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	found := false
	for id := range r.Goals {
		if r.Goals[id].UserID != userID {
			continue
		}
		found = true
		r.Goals[id].IsActive = id == goalID
	}

	if !found {
		return ErrGoalNotFound
	}
	return nil
}

func (r *repoMock) Deactivate(_ context.Context, userID, goalID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	goal, ok := r.Goals[goalID]
	if !ok || goal.UserID != userID {
		return ErrGoalNotFound
	}
	goal.IsActive = false
	return nil
}

func (r *repoMock) UpdateProgress(_ context.Context, userID, goalID string, progress float64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	goal, ok := r.Goals[goalID]
	if !ok || goal.UserID != userID {
		return ErrGoalNotFound
	}
	goal.Progress = progress
	return nil
}

func (r *repoMock) Delete(_ context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Goals[id]; !ok {
		return ErrGoalNotFound
	}

	delete(r.Goals, id)
	return nil
}
