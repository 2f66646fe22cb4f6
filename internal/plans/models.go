package plans

import (
	"bytes"
	"strconv"
	"time"
)

// FlexInt is an int that tolerates providers emitting numbers as quoted
// strings or with trailing units ("3", "20-30 minutes"). Unparsable values
// decode to zero and get fixed up by normalizeGeneratedPlan.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)

	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	if i == 0 {
		*f = 0
		return nil
	}

	val, err := strconv.Atoi(string(data[:i]))
	if err != nil {
		*f = 0
		return nil
	}

	*f = FlexInt(val)
	return nil
}

type Exercise struct {
	Name     string  `json:"name"`
	Sets     FlexInt `json:"sets"`
	Reps     string  `json:"reps"`
	Weight   string  `json:"weight,omitempty"`
	RestTime string  `json:"rest_time,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// DailyWorkout keeps the base duration and the stretching duration apart, so
// augmenting the same workout twice does not inflate the total.
type DailyWorkout struct {
	Day                string     `json:"day"`
	WorkoutType        string     `json:"workout_type"`
	Duration           FlexInt    `json:"duration,omitempty"`
	Exercises          []Exercise `json:"exercises"`
	WarmUp             []string   `json:"warm_up,omitempty"`
	CoolDown           []string   `json:"cool_down,omitempty"`
	Stretching         []string   `json:"stretching,omitempty"`
	StretchingFocus    []string   `json:"stretching_focus,omitempty"`
	StretchingDuration FlexInt    `json:"stretching_duration,omitempty"`
}

func (d *DailyWorkout) TotalDuration() int {
	return int(d.Duration + d.StretchingDuration)
}

type Meal struct {
	Meal         string   `json:"meal"`
	Name         string   `json:"name"`
	Calories     FlexInt  `json:"calories"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
}

type DailyMeals struct {
	Day   string `json:"day"`
	Meals []Meal `json:"meals"`
}

type ProgressTracking struct {
	WeeklyCheckins []string `json:"weekly_checkins,omitempty"`
	Metrics        []string `json:"metrics,omitempty"`
	Milestones     []string `json:"milestones,omitempty"`
}

type GeneratedWorkoutPlan struct {
	PlanName       string         `json:"plan_name"`
	WeeklySchedule []DailyWorkout `json:"weekly_schedule"`
}

type GeneratedMealPlan struct {
	PlanName      string       `json:"plan_name"`
	DailyCalories FlexInt      `json:"daily_calories,omitempty"`
	WeeklyMeals   []DailyMeals `json:"weekly_meals"`
}

// GeneratedPlan is the provider output shape, after repair and normalization.
type GeneratedPlan struct {
	WorkoutPlan      GeneratedWorkoutPlan `json:"workout_plan"`
	MealPlan         GeneratedMealPlan    `json:"meal_plan"`
	ProgressTracking ProgressTracking     `json:"progress_tracking"`
}

// WorkoutPlan is the persisted form, one plan per goal, weeks ordered by
// week number, days by their position within the week.
type WorkoutPlan struct {
	ID        string          `json:"id"`
	GoalID    string          `json:"goalId"`
	UserID    string          `json:"userId"`
	Name      string          `json:"name"`
	Weeks     []WeeklyWorkout `json:"weeks"`
	CreatedAt time.Time       `json:"createdAt"`
}

type WeeklyWorkout struct {
	ID         string         `json:"id"`
	WeekNumber int            `json:"weekNumber"`
	Days       []DailyWorkout `json:"days"`
}

type MealPlan struct {
	ID            string       `json:"id"`
	GoalID        string       `json:"goalId"`
	UserID        string       `json:"userId"`
	Name          string       `json:"name"`
	DailyCalories int          `json:"dailyCalories"`
	Days          []DailyMeals `json:"days"`
	CreatedAt     time.Time    `json:"createdAt"`
}
