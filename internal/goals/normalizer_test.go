package goals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoachapp/backend/internal/llm"
)

var _ completer = (*completerMock)(nil)

type completerMock struct {
	response string
	err      error
	calls    int
}

func (c *completerMock) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func userTranscript() []llm.Message {
	return []llm.Message{
		{Role: "user", Content: "I want to lose 5kg in 2 months, I have dumbbells at home"},
		{Role: "assistant", Content: "Great, how many days a week can you train?"},
		{Role: "user", Content: "Mondays and Thursdays, about an hour"},
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	completerClient := &completerMock{
		response: `{
			"goal_type": "weight_loss",
			"target": "Lose 5kg",
			"timeframe": "2 months",
			"available_equipment": ["dumbbells"],
			"workout_days": ["monday", "thursday"],
			"workout_duration": 60
		}`,
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Empty(t, result.DegradedReason)
	assert.Equal(t, 1, completerClient.calls)
	assert.Equal(t, "weight_loss", result.Goal.GoalType)
	assert.Equal(t, "Lose 5kg", result.Goal.Target)
	assert.Equal(t, "2 months", result.Goal.Timeframe)
	assert.Equal(t, []string{"dumbbells"}, result.Goal.AvailableEquipment)
	assert.Equal(t, []string{"monday", "thursday"}, result.Goal.WorkoutDays)
	assert.Equal(t, 60, result.Goal.WorkoutDuration)
}

func TestNormalizer_Normalize_optionalFieldsBackfilled(t *testing.T) {
	completerClient := &completerMock{
		response: `{"goal_type": "strength", "target": "Bench 100kg", "timeframe": "6 months"}`,
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, "strength", result.Goal.GoalType)
	assert.Equal(t, "Bench 100kg", result.Goal.Target)
	assert.Equal(t, []string{"bodyweight"}, result.Goal.AvailableEquipment)
	assert.Equal(t, []string{"monday", "wednesday", "friday"}, result.Goal.WorkoutDays)
	assert.Equal(t, 45, result.Goal.WorkoutDuration)
}

func TestNormalizer_Normalize_fencedOutput(t *testing.T) {
	completerClient := &completerMock{
		response: "```json\n{\"goal_type\": \"endurance\", \"target\": \"Run a 10k\", \"timeframe\": \"3 months\"}\n```",
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, "endurance", result.Goal.GoalType)
	assert.Equal(t, "Run a 10k", result.Goal.Target)
}

func TestNormalizer_Normalize_unknownGoalTypeReplaced(t *testing.T) {
	completerClient := &completerMock{
		response: `{"goal_type": "get_swole", "target": "Get swole", "timeframe": "1 year"}`,
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, string(GoalTypeGeneralFitness), result.Goal.GoalType)
	assert.Equal(t, "Get swole", result.Goal.Target)
}

func TestNormalizer_Normalize_providerError(t *testing.T) {
	completerClient := &completerMock{
		err: errors.New("provider down"),
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, "provider call failed", result.DegradedReason)
	assert.Equal(t, DefaultStructuredGoal(), result.Goal)
}

func TestNormalizer_Normalize_unparsableOutput(t *testing.T) {
	completerClient := &completerMock{
		response: "sure, here is your plan: lose weight and be happy",
	}
	normalizer := NewNormalizer(completerClient)

	result, err := normalizer.Normalize(context.Background(), userTranscript())
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, "provider output not valid JSON", result.DegradedReason)
	assert.Equal(t, DefaultStructuredGoal(), result.Goal)
	assert.Equal(t, completerClient.response, result.Raw)
}

func TestNormalizer_Normalize_noUserMessage(t *testing.T) {
	completerClient := &completerMock{}
	normalizer := NewNormalizer(completerClient)

	for _, transcript := range [][]llm.Message{
		nil,
		{},
		{{Role: "assistant", Content: "hello, what is your goal?"}},
		{{Role: "user", Content: "   "}},
	} {
		_, err := normalizer.Normalize(context.Background(), transcript)
		require.ErrorIs(t, err, ErrNoUserMessage)
	}

	assert.Zero(t, completerClient.calls)
}
