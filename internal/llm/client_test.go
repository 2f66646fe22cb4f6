package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_complete_noAPIKey(t *testing.T) {
	client := NewClient(NewClientParams{
		Model: "test-model",
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewClient_timeoutDefault(t *testing.T) {
	client := NewClient(NewClientParams{
		APIKey: "test-key",
		Model:  "test-model",
	})
	assert.Equal(t, time.Minute, client.timeout)

	client = NewClient(NewClientParams{
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 10 * time.Second,
	})
	assert.Equal(t, 10*time.Second, client.timeout)
}
