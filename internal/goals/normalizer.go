package goals

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

var ErrNoUserMessage = errors.New("transcript contains no user message")

const normalizerInstruction = `You are a fitness goal extraction assistant.
Read the conversation and extract the user's fitness goal as a single JSON object with exactly these fields:
- "goal_type": one of "weight_loss", "muscle_gain", "strength", "endurance", "flexibility", "general_fitness" (required)
- "target": short description of what the user wants to achieve (required)
- "timeframe": how long the user wants to take, e.g. "3 months" (required)
- "available_equipment": list of equipment the user mentioned (optional)
- "workout_days": list of weekday names the user can train (optional)
- "workout_duration": workout length in minutes, as a number (optional)
Respond with the JSON object only, no extra text.`

type completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// NormalizeResult is a tagged result: Degraded marks that the provider call or
// its output failed and the default goal was substituted, so callers can
// distinguish "understood a generic goal" from "provider failed".
type NormalizeResult struct {
	Goal           StructuredGoal
	Raw            string
	Degraded       bool
	DegradedReason string
}

type Normalizer struct {
	llmClient completer
}

func NewNormalizer(llmClient completer) *Normalizer {
	return &Normalizer{
		llmClient: llmClient,
	}
}

// Normalize turns a chat transcript into a StructuredGoal. It never fails on
// provider errors, it degrades to DefaultStructuredGoal instead. The only
// error returned is ErrNoUserMessage for an unusable transcript.
func (n *Normalizer) Normalize(ctx context.Context, transcript []llm.Message) (_ NormalizeResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "goals.normalize")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	hasUserMessage := false
	for _, m := range transcript {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return NormalizeResult{}, ErrNoUserMessage
	}

	raw, llmErr := n.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: normalizerInstruction,
		Messages:     transcript,
	})
	if llmErr != nil {
		log.Errorf("normalize goal, llm call failed, using default goal: %s", llmErr)
		return NormalizeResult{
			Goal:           DefaultStructuredGoal(),
			Degraded:       true,
			DegradedReason: "provider call failed",
		}, nil
	}

	goal, parseErr := parseStructuredGoal(raw)
	if parseErr != nil {
		log.Errorf("normalize goal, unparsable llm output, using default goal: %s", parseErr)
		return NormalizeResult{
			Goal:           DefaultStructuredGoal(),
			Raw:            raw,
			Degraded:       true,
			DegradedReason: "provider output not valid JSON",
		}, nil
	}

	applyGoalDefaults(&goal)

	return NormalizeResult{
		Goal: goal,
		Raw:  raw,
	}, nil
}

func parseStructuredGoal(raw string) (StructuredGoal, error) {
	var goal StructuredGoal
	if err := json.Unmarshal([]byte(raw), &goal); err == nil {
		return goal, nil
	}

	// the model sometimes wraps the object in prose or markdown fences,
	// retry with the outermost braces only
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return StructuredGoal{}, errors.New("no JSON object found in response")
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), &goal); err != nil {
		return StructuredGoal{}, err
	}
	return goal, nil
}

// applyGoalDefaults backfills every optional field, returned goals are always
// fully populated regardless of how sparse the model output was.
func applyGoalDefaults(goal *StructuredGoal) {
	defaults := DefaultStructuredGoal()

	if !GoalType(goal.GoalType).Valid() {
		goal.GoalType = defaults.GoalType
	}
	if strings.TrimSpace(goal.Target) == "" {
		goal.Target = defaults.Target
	}
	if strings.TrimSpace(goal.Timeframe) == "" {
		goal.Timeframe = defaults.Timeframe
	}
	if len(goal.AvailableEquipment) == 0 {
		goal.AvailableEquipment = defaults.AvailableEquipment
	}
	if len(goal.WorkoutDays) == 0 {
		goal.WorkoutDays = defaults.WorkoutDays
	}
	if goal.WorkoutDuration <= 0 {
		goal.WorkoutDuration = defaults.WorkoutDuration
	}
}
