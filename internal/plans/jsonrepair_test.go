package plans

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlanJson = `{
	"workout_plan": {
		"plan_name": "Lean in 12 weeks",
		"weekly_schedule": [
			{
				"day": "monday",
				"workout_type": "cardio",
				"duration": 45,
				"exercises": [
					{"name": "Treadmill intervals", "sets": 5, "reps": "2 minutes", "weight": "N/A", "notes": ""},
					{"name": "Jump rope", "sets": 3, "reps": "60 seconds", "weight": "bodyweight", "notes": "steady pace"}
				],
				"stretching": ["hamstring stretch", "calf stretch"]
			}
		]
	},
	"meal_plan": {
		"plan_name": "Cutting meals",
		"daily_calories": 1800,
		"weekly_meals": [
			{
				"day": "monday",
				"meals": [
					{"meal": "breakfast", "name": "Oatmeal", "calories": 350, "ingredients": ["oats", "milk"], "instructions": "Cook oats in milk."}
				]
			}
		]
	},
	"progress_tracking": {
		"weekly_checkins": ["weigh-in every monday"],
		"metrics": ["weight", "waist"],
		"milestones": ["first 2kg down"]
	}
}`

func TestParseGeneratedPlan_directParse(t *testing.T) {
	plan, repaired, err := parseGeneratedPlan(validPlanJson)
	require.NoError(t, err)
	assert.False(t, repaired)

	require.Len(t, plan.WorkoutPlan.WeeklySchedule, 1)
	day := plan.WorkoutPlan.WeeklySchedule[0]
	assert.Equal(t, "monday", day.Day)
	assert.Equal(t, FlexInt(45), day.Duration)
	require.Len(t, day.Exercises, 2)
	assert.Equal(t, FlexInt(5), day.Exercises[0].Sets)

	require.Len(t, plan.MealPlan.WeeklyMeals, 1)
	assert.Equal(t, FlexInt(350), plan.MealPlan.WeeklyMeals[0].Meals[0].Calories)
	assert.Equal(t, []string{"weight", "waist"}, plan.ProgressTracking.Metrics)
}

func TestParseGeneratedPlan_surroundingCommentary(t *testing.T) {
	raw := "Here is your plan: " + validPlanJson + " Hope this helps!"

	plan, repaired, err := parseGeneratedPlan(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "Lean in 12 weeks", plan.WorkoutPlan.PlanName)
}

func TestParseGeneratedPlan_trailingGarbageWithBraces(t *testing.T) {
	// the garbage after the object contains a '}', so the first-to-last
	// brace substring is not valid and the balanced scan has to kick in
	raw := validPlanJson + "\nLet me know if {anything} needs adjusting!}"

	plan, repaired, err := parseGeneratedPlan(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "Cutting meals", plan.MealPlan.PlanName)
}

func TestParseGeneratedPlan_markdownFences(t *testing.T) {
	raw := "```json\n" + validPlanJson + "\n```"

	plan, repaired, err := parseGeneratedPlan(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "Lean in 12 weeks", plan.WorkoutPlan.PlanName)
}

func TestParseGeneratedPlan_unquotedNA(t *testing.T) {
	raw := `{
		"workout_plan": {
			"plan_name": "Plan",
			"weekly_schedule": [
				{
					"day": "monday",
					"workout_type": "cardio",
					"exercises": [
						{"name": "Running", "sets": 1, "reps": "30 minutes", "weight": N/A}
					],
					"stretching": []
				}
			]
		},
		"meal_plan": {"plan_name": "Meals", "weekly_meals": []},
		"progress_tracking": {}
	}`

	plan, repaired, err := parseGeneratedPlan(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "N/A", plan.WorkoutPlan.WeeklySchedule[0].Exercises[0].Weight)
}

func TestParseGeneratedPlan_setsRange(t *testing.T) {
	raw := `{
		"workout_plan": {
			"plan_name": "Plan",
			"weekly_schedule": [
				{
					"day": "monday",
					"workout_type": "cardio",
					"exercises": [
						{"name": "Cycling", "sets": 20-30 minutes, "reps": "steady"}
					],
					"stretching": []
				}
			]
		},
		"meal_plan": {"plan_name": "Meals", "weekly_meals": []},
		"progress_tracking": {}
	}`

	plan, repaired, err := parseGeneratedPlan(raw)
	require.NoError(t, err)
	assert.True(t, repaired)

	exercise := plan.WorkoutPlan.WeeklySchedule[0].Exercises[0]
	assert.Equal(t, FlexInt(1), exercise.Sets)
	assert.Equal(t, "20-30 minutes", exercise.Notes)
}

func TestParseGeneratedPlan_unusableOutput(t *testing.T) {
	for name, raw := range map[string]string{
		"no json at all":  "Sorry, I cannot generate a plan right now.",
		"empty":           "",
		"unclosed object": `{"workout_plan": {"plan_name": "Plan", "weekly_schedule": [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseGeneratedPlan(raw)
			require.ErrorIs(t, err, ErrPlanGeneration)
		})
	}
}

func TestNormalizeGeneratedPlan_setsClampedToOne(t *testing.T) {
	plan := GeneratedPlan{
		WorkoutPlan: GeneratedWorkoutPlan{
			WeeklySchedule: []DailyWorkout{
				{
					Day: "monday",
					Exercises: []Exercise{
						{Name: "Plank", Sets: 0, Reps: "60 seconds"},
						{Name: "Push-ups", Sets: 3, Reps: "12"},
					},
				},
				{Day: "tuesday"},
			},
		},
	}

	normalizeGeneratedPlan(&plan)

	assert.Equal(t, FlexInt(1), plan.WorkoutPlan.WeeklySchedule[0].Exercises[0].Sets)
	assert.Equal(t, FlexInt(3), plan.WorkoutPlan.WeeklySchedule[0].Exercises[1].Sets)
	assert.NotNil(t, plan.WorkoutPlan.WeeklySchedule[1].Exercises)
}

func TestFlexInt_unmarshal(t *testing.T) {
	for input, expected := range map[string]FlexInt{
		`3`:               3,
		`"3"`:             3,
		`"12-15"`:         12,
		`"20-30 minutes"`: 20,
		`"N/A"`:           0,
		`null`:            0,
		`""`:              0,
	} {
		var f FlexInt
		require.NoError(t, json.Unmarshal([]byte(input), &f), input)
		assert.Equal(t, expected, f, input)
	}
}
