package goals

import (
	"time"
)

type GoalType string

const (
	GoalTypeWeightLoss     GoalType = "weight_loss"
	GoalTypeMuscleGain     GoalType = "muscle_gain"
	GoalTypeStrength       GoalType = "strength"
	GoalTypeEndurance      GoalType = "endurance"
	GoalTypeFlexibility    GoalType = "flexibility"
	GoalTypeGeneralFitness GoalType = "general_fitness"
)

func (gt GoalType) Valid() bool {
	switch gt {
	case GoalTypeWeightLoss, GoalTypeMuscleGain, GoalTypeStrength,
		GoalTypeEndurance, GoalTypeFlexibility, GoalTypeGeneralFitness:
		return true
	}
	return false
}

// Goal is one fitness objective of one user. At most one goal per user is
// active at any time (enforced by Repo.Activate).
type Goal struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	GoalType   GoalType   `json:"goalType"`
	Target     string     `json:"target"`
	Timeframe  string     `json:"timeframe"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	TargetDate *time.Time `json:"targetDate,omitempty"`
	IsActive   bool       `json:"isActive"`
	Progress   float64    `json:"progress"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// StructuredGoal is the normalized form produced by the Goal Normalizer. All
// fields are always populated, optional ones get hardcoded fallbacks.
type StructuredGoal struct {
	GoalType           string   `json:"goal_type"`
	Target             string   `json:"target"`
	Timeframe          string   `json:"timeframe"`
	AvailableEquipment []string `json:"available_equipment"`
	WorkoutDays        []string `json:"workout_days"`
	WorkoutDuration    int      `json:"workout_duration"`
}

// DefaultStructuredGoal is returned when the normalizer cannot get anything
// usable out of the provider.
func DefaultStructuredGoal() StructuredGoal {
	return StructuredGoal{
		GoalType:           string(GoalTypeGeneralFitness),
		Target:             "Improve fitness",
		Timeframe:          "3 months",
		AvailableEquipment: []string{"bodyweight"},
		WorkoutDays:        []string{"monday", "wednesday", "friday"},
		WorkoutDuration:    45,
	}
}
