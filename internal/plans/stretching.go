package plans

import "strings"

// StretchingRule describes the warm-up and cool-down routine attached to a
// workout, keyed by (goal type, workout focus).
type StretchingRule struct {
	GoalType   string
	Focus      string
	WarmUp     []string
	CoolDown   []string
	FocusAreas []string
	// Duration is the extra stretching time in minutes, kept separate from
	// the base workout duration.
	Duration int
}

// stretchingRules is evaluated in order, the first (goal type, focus) match
// wins. The default rule covers every combination without an entry.
var stretchingRules = []StretchingRule{
	{
		GoalType:   "weight_loss",
		Focus:      "cardio",
		WarmUp:     []string{"light jogging in place", "arm circles", "leg swings"},
		CoolDown:   []string{"walking recovery", "standing quad stretch", "calf stretch"},
		FocusAreas: []string{"hamstrings", "calves", "hip flexors"},
		Duration:   10,
	},
	{
		GoalType:   "weight_loss",
		Focus:      "hiit",
		WarmUp:     []string{"jumping jacks", "high knees", "dynamic lunges"},
		CoolDown:   []string{"slow march", "child's pose", "seated forward fold"},
		FocusAreas: []string{"quads", "glutes", "lower back"},
		Duration:   8,
	},
	{
		GoalType:   "muscle_gain",
		Focus:      "strength",
		WarmUp:     []string{"band pull-aparts", "bodyweight squats", "shoulder dislocates"},
		CoolDown:   []string{"chest doorway stretch", "lat stretch", "hip flexor stretch"},
		FocusAreas: []string{"shoulders", "chest", "hips"},
		Duration:   12,
	},
	{
		GoalType:   "strength",
		Focus:      "strength",
		WarmUp:     []string{"empty bar sets", "hip circles", "scapular push-ups"},
		CoolDown:   []string{"pigeon pose", "thoracic rotations", "wrist stretches"},
		FocusAreas: []string{"hips", "thoracic spine", "wrists"},
		Duration:   12,
	},
	{
		GoalType:   "endurance",
		Focus:      "cardio",
		WarmUp:     []string{"easy pace warm-up", "ankle rolls", "walking lunges"},
		CoolDown:   []string{"easy pace cool-down", "standing hamstring stretch", "hip flexor stretch"},
		FocusAreas: []string{"hamstrings", "hip flexors", "ankles"},
		Duration:   10,
	},
	{
		GoalType:   "flexibility",
		Focus:      "flexibility",
		WarmUp:     []string{"cat-cow", "neck rolls", "gentle torso twists"},
		CoolDown:   []string{"full body flow", "deep breathing hold"},
		FocusAreas: []string{"full body"},
		Duration:   15,
	},
	{
		GoalType:   "general_fitness",
		Focus:      "full_body",
		WarmUp:     []string{"jumping jacks", "arm circles", "bodyweight squats"},
		CoolDown:   []string{"standing quad stretch", "shoulder stretch", "child's pose"},
		FocusAreas: []string{"legs", "shoulders", "back"},
		Duration:   10,
	},
}

// defaultStretchingRule is the weight-loss/cardio routine, used when the
// table has no entry for the given key.
var defaultStretchingRule = stretchingRules[0]

func lookupStretchingRule(goalType, focus string) StretchingRule {
	goalType = strings.ToLower(strings.TrimSpace(goalType))
	focus = strings.ToLower(strings.TrimSpace(focus))

	for _, rule := range stretchingRules {
		if rule.GoalType == goalType && rule.Focus == focus {
			return rule
		}
	}
	return defaultStretchingRule
}

// AugmentWithStretching attaches the warm-up, cool-down, focus areas and
// stretching duration of the matching rule to the workout. Fields are
// overwritten, not appended, augmenting twice gives the same result.
func AugmentWithStretching(day *DailyWorkout, goalType, experienceLevel string) {
	rule := lookupStretchingRule(goalType, day.WorkoutType)

	duration := rule.Duration
	if strings.EqualFold(experienceLevel, "beginner") {
		// beginners get extra warm-up time
		duration += 5
	}

	day.WarmUp = rule.WarmUp
	day.CoolDown = rule.CoolDown
	day.StretchingFocus = rule.FocusAreas
	day.StretchingDuration = FlexInt(duration)
}

// AugmentPlanWithStretching runs the rule engine over every scheduled day.
func AugmentPlanWithStretching(plan *GeneratedWorkoutPlan, goalType, experienceLevel string) {
	for i := range plan.WeeklySchedule {
		AugmentWithStretching(&plan.WeeklySchedule[i], goalType, experienceLevel)
	}
}
