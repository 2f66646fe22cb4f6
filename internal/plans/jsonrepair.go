package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrPlanGeneration marks provider output that stayed unusable after every
// repair attempt. There is no fallback plan, a malformed plan must not be
// persisted.
var ErrPlanGeneration = errors.New("plan generation failed")

var (
	// unquoted N/A literals, e.g. {"weight": N/A}
	unquotedNARegex = regexp.MustCompile(`:\s*N/A`)
	// numeric ranges where an integer is required, e.g. {"sets": 20-30 minutes}
	setsRangeRegex = regexp.MustCompile(`"sets"\s*:\s*(\d+\s*-\s*\d+[^,}\]"]*)`)
)

// parseGeneratedPlan runs the repair pipeline over raw provider output:
//  1. direct parse
//  2. substring between the first '{' and the last '}'
//  3. first balanced top-level object (drops trailing garbage)
//  4. regex repairs of known malformed tokens, then reparse
//  5. trim to the last '}', then reparse
//
// The repaired flag reports that anything beyond step 1 was needed.
func parseGeneratedPlan(raw string) (plan GeneratedPlan, repaired bool, err error) {
	if err := json.Unmarshal([]byte(raw), &plan); err == nil {
		return plan, false, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return GeneratedPlan{}, true, fmt.Errorf("%w: no JSON object in response", ErrPlanGeneration)
	}

	candidate := raw[start : end+1]
	if err := json.Unmarshal([]byte(candidate), &plan); err == nil {
		return plan, true, nil
	}

	if balanced, ok := firstBalancedObject(raw[start:]); ok {
		if err := json.Unmarshal([]byte(balanced), &plan); err == nil {
			return plan, true, nil
		}
		// further repairs work on the balanced candidate, it has the least noise
		candidate = balanced
	}

	candidate = repairMalformedTokens(candidate)
	if err := json.Unmarshal([]byte(candidate), &plan); err == nil {
		return plan, true, nil
	}

	if lastBrace := strings.LastIndex(candidate, "}"); lastBrace != -1 {
		if err := json.Unmarshal([]byte(candidate[:lastBrace+1]), &plan); err == nil {
			return plan, true, nil
		}
	}

	return GeneratedPlan{}, true, fmt.Errorf("%w: response not parsable after repairs", ErrPlanGeneration)
}

// firstBalancedObject returns the substring from the first '{' to the point
// where brace depth returns to zero. Braces inside JSON strings are skipped.
func firstBalancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return "", false
}

// repairMalformedTokens fixes the known ways providers break the schema: an
// unquoted N/A becomes a quoted one, and a numeric range in a sets field
// becomes sets:1 with the range preserved in the notes field.
func repairMalformedTokens(s string) string {
	s = unquotedNARegex.ReplaceAllString(s, `: "N/A"`)
	s = setsRangeRegex.ReplaceAllStringFunc(s, func(match string) string {
		rangeText := strings.TrimSpace(setsRangeRegex.FindStringSubmatch(match)[1])
		return fmt.Sprintf(`"sets": 1, "notes": "%s"`, rangeText)
	})
	return s
}

// normalizeGeneratedPlan enforces the structural guarantee on parsed plans:
// every exercise has sets >= 1 and at least a name, day lists are never nil.
func normalizeGeneratedPlan(plan *GeneratedPlan) {
	for i := range plan.WorkoutPlan.WeeklySchedule {
		day := &plan.WorkoutPlan.WeeklySchedule[i]
		if day.Exercises == nil {
			day.Exercises = []Exercise{}
		}
		for j := range day.Exercises {
			if day.Exercises[j].Sets < 1 {
				day.Exercises[j].Sets = 1
			}
		}
	}

	for i := range plan.MealPlan.WeeklyMeals {
		if plan.MealPlan.WeeklyMeals[i].Meals == nil {
			plan.MealPlan.WeeklyMeals[i].Meals = []Meal{}
		}
		for j := range plan.MealPlan.WeeklyMeals[i].Meals {
			if plan.MealPlan.WeeklyMeals[i].Meals[j].Ingredients == nil {
				plan.MealPlan.WeeklyMeals[i].Meals[j].Ingredients = []string{}
			}
		}
	}
}
