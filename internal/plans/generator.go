package plans

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitcoachapp/backend/internal/goals"
	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
)

const planSchemaInstruction = `Respond with a single JSON object and nothing else, matching exactly this schema:
{
  "workout_plan": {
    "plan_name": string,
    "weekly_schedule": [
      {
        "day": string (lowercase weekday name),
        "workout_type": string (e.g. "cardio", "strength", "hiit", "full_body"),
        "duration": number (minutes),
        "exercises": [
          {
            "name": string,
            "sets": number (must be a number, never a range like "3-4"),
            "reps": string (e.g. "12" or "30 seconds"),
            "weight": string (e.g. "10kg" or "bodyweight"),
            "notes": string
          }
        ],
        "stretching": [string]
      }
    ]
  },
  "meal_plan": {
    "plan_name": string,
    "daily_calories": number,
    "weekly_meals": [
      {
        "day": string (lowercase weekday name),
        "meals": [
          {
            "meal": string ("breakfast", "lunch", "dinner" or "snack"),
            "name": string,
            "calories": number,
            "ingredients": [string],
            "instructions": string
          }
        ]
      }
    ]
  },
  "progress_tracking": {
    "weekly_checkins": [string],
    "metrics": [string],
    "milestones": [string]
  }
}
Every "sets" value must be a plain number. Do not wrap the JSON in markdown fences or add commentary.`

type completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// GenerateResult carries the parsed plan together with the raw provider text
// and whether JSON repairs were needed to get there.
type GenerateResult struct {
	Plan     GeneratedPlan
	Raw      string
	Repaired bool
}

type Generator struct {
	llmClient   completer
	temperature float64
	maxTokens   int64
}

func NewGenerator(llmClient completer, temperature float64, maxTokens int64) *Generator {
	return &Generator{
		llmClient:   llmClient,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Generate produces a full weekly plan for the goal. Provider failures and
// unrepairable output both surface as errors wrapping ErrPlanGeneration.
func (g *Generator) Generate(ctx context.Context, goal goals.StructuredGoal) (_ GenerateResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "plans.generate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("goal.type", goal.GoalType))

	raw, err := g.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: planSchemaInstruction,
		Messages: []llm.Message{
			{Role: "user", Content: buildPlanPrompt(goal)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%w: %s", ErrPlanGeneration, err)
	}

	plan, repaired, err := parseGeneratedPlan(raw)
	if err != nil {
		log.Errorf("generate plan, unusable provider output (%d chars): %s", len(raw), err)
		return GenerateResult{Raw: raw}, err
	}
	if repaired {
		log.Warnf("generate plan, provider output needed JSON repair")
	}

	normalizeGeneratedPlan(&plan)

	return GenerateResult{
		Plan:     plan,
		Raw:      raw,
		Repaired: repaired,
	}, nil
}

func buildPlanPrompt(goal goals.StructuredGoal) string {
	var sb strings.Builder

	sb.WriteString("Create a weekly workout plan and a weekly meal plan for this fitness goal:\n")
	fmt.Fprintf(&sb, "- goal type: %s\n", goal.GoalType)
	fmt.Fprintf(&sb, "- target: %s\n", goal.Target)
	fmt.Fprintf(&sb, "- timeframe: %s\n", goal.Timeframe)
	fmt.Fprintf(&sb, "- available equipment: %s\n", strings.Join(goal.AvailableEquipment, ", "))
	fmt.Fprintf(&sb, "- workout days: %s\n", strings.Join(goal.WorkoutDays, ", "))
	fmt.Fprintf(&sb, "- workout duration: %d minutes per session\n", goal.WorkoutDuration)
	sb.WriteString("Schedule workouts only on the listed days and keep each session within the given duration. ")
	sb.WriteString("Also include progress tracking suggestions with weekly check-ins, metrics and milestones.")

	return sb.String()
}
