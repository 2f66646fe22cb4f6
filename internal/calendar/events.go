package calendar

import (
	"fmt"
	"strings"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"

	"github.com/fitcoachapp/backend/internal/plans"
)

// Google calendar color ids, workouts render red-ish, meals green.
const (
	workoutEventColor = "11"
	mealEventColor    = "10"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday: %q", name)
	}
	return day, nil
}

// NextWeekday returns the next occurrence of the target weekday at the given
// hour, always in the upcoming week. Today never qualifies, even before the
// target hour, and the result is never in the past.
func NextWeekday(now time.Time, target time.Weekday, hour int) time.Time {
	daysAhead := (int(target) - int(now.Weekday())) % 7
	if daysAhead <= 0 {
		daysAhead += 7
	}

	next := now.AddDate(0, 0, daysAhead)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, now.Location())
}

// WorkoutEvent renders one scheduled workout day as a calendar event.
// Exercises become bullet lines, the goal id is appended for traceability.
func WorkoutEvent(goalID string, day plans.DailyWorkout, start time.Time, timezone string) *gcalendar.Event {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s workout\n\nExercises:\n", day.WorkoutType)
	for _, exercise := range day.Exercises {
		weight := exercise.Weight
		if weight == "" {
			weight = "bodyweight"
		}
		fmt.Fprintf(&sb, "- %s: %dx%s @ %s\n", exercise.Name, int(exercise.Sets), exercise.Reps, weight)
	}

	if len(day.Stretching) > 0 {
		sb.WriteString("\nStretching:\n")
		for _, stretch := range day.Stretching {
			fmt.Fprintf(&sb, "- %s\n", stretch)
		}
	}

	fmt.Fprintf(&sb, "\ngoal: %s", goalID)

	title := fmt.Sprintf("Workout: %s", day.WorkoutType)
	end := start.Add(time.Duration(day.TotalDuration()) * time.Minute)

	return &gcalendar.Event{
		Summary:     title,
		Description: sb.String(),
		ColorId:     workoutEventColor,
		Start: &gcalendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: timezone,
		},
		End: &gcalendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: timezone,
		},
	}
}

// MealEvent renders one meal as a calendar event with its ingredient list
// and a nutrition summary.
func MealEvent(goalID string, meal plans.Meal, start time.Time, timezone string) *gcalendar.Event {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n\nIngredients:\n", meal.Name)
	for _, ingredient := range meal.Ingredients {
		fmt.Fprintf(&sb, "- %s\n", ingredient)
	}

	fmt.Fprintf(&sb, "\nNutrition:\n- calories: %d\n", int(meal.Calories))

	if meal.Instructions != "" {
		fmt.Fprintf(&sb, "\nInstructions:\n%s\n", meal.Instructions)
	}

	fmt.Fprintf(&sb, "\ngoal: %s", goalID)

	title := fmt.Sprintf("Meal: %s (%s)", meal.Name, meal.Meal)
	end := start.Add(30 * time.Minute)

	return &gcalendar.Event{
		Summary:     title,
		Description: sb.String(),
		ColorId:     mealEventColor,
		Start: &gcalendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: timezone,
		},
		End: &gcalendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: timezone,
		},
	}
}

// mealHour places meals at conventional times of day.
func mealHour(mealType string) int {
	switch strings.ToLower(mealType) {
	case "breakfast":
		return 8
	case "lunch":
		return 12
	case "snack":
		return 16
	case "dinner":
		return 19
	default:
		return 12
	}
}
