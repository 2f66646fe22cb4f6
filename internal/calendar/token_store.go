package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
)

var ErrSessionNotFound = errors.New("calendar session not found or already claimed")

const (
	sessionKeyPrefix = "fitcoach-calendar-session||"
	sessionTTL       = 2 * time.Minute
)

// TokenStore parks freshly exchanged credentials under a short-lived opaque
// session reference. The reference travels through the browser redirect
// instead of the tokens themselves, and a claim is one-shot: the first read
// deletes the entry.
type TokenStore struct {
	redisClient *redis.Client
}

func NewTokenStore(redisClient *redis.Client) *TokenStore {
	return &TokenStore{
		redisClient: redisClient,
	}
}

// Store saves the credentials and returns the session reference to put in
// the redirect URL.
func (s *TokenStore) Store(ctx context.Context, creds Credentials) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.tokenStore.store")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	credsJson, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	sessionRef := uuid.NewString()
	if err := s.redisClient.Set(
		ctx,
		sessionKeyPrefix+sessionRef,
		string(credsJson),
		sessionTTL,
	).Err(); err != nil {
		return "", fmt.Errorf("store credentials: %w", err)
	}

	return sessionRef, nil
}

// Claim returns the credentials for a session reference and burns the entry.
// A second claim with the same reference fails with ErrSessionNotFound.
func (s *TokenStore) Claim(ctx context.Context, sessionRef string) (_ *Credentials, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.tokenStore.claim")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	credsJson, err := s.redisClient.GetDel(ctx, sessionKeyPrefix+sessionRef).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("claim credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(credsJson), &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}

	return &creds, nil
}
