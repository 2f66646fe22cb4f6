package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitcoachapp/backend/internal/auth"
	"github.com/fitcoachapp/backend/internal/calendar"
	"github.com/fitcoachapp/backend/internal/config"
	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestServer(t *testing.T) *Server {
	t.Helper()

	rdb, _ := redismock.NewClientMock()
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	metricsManager := metrics.NewTestManager()

	return &Server{
		config: &config.Config{
			LoginRateLimitAllowedPerMin: 5,
			LlmRateLimitAllowedPerMin:   10,
			FrontendURL:                 "http://localhost:3000",
			CalendarTimezone:            "UTC",
		},
		versionInfo: "test-version",
		llmClient: llm.NewClient(llm.NewClientParams{
			APIKey: "test-key",
			Model:  "test-model",
		}),
		calendarAdapter: calendar.NewAdapter(calendar.NewAdapterParams{
			ClientID:     "test-client-id",
			ClientSecret: "test-client-secret",
			RedirectURI:  "http://localhost:8080/calendar/callback",
		}, metricsManager),
		redisClient:  rdb,
		authService:  auth.NewAuthService(&auth.Admin{}, time.Hour, rdb),
		loginChecker: auth.NewLoginChecker(time.Hour, rdb),

		metricsManager: metricsManager,
	}
}

func TestLlmAPIKeyFor(t *testing.T) {
	// no alternate provider, primary key in use
	assert.Equal(t, "primary-key", llmAPIKeyFor("", "primary-key", ""))
	assert.Equal(t, "primary-key", llmAPIKeyFor("", "primary-key", "alt-key"))

	// alternate provider configured, its own key in use
	assert.Equal(t, "alt-key", llmAPIKeyFor("https://llm.alt.example.com", "primary-key", "alt-key"))

	// alternate provider configured but its key missing, fall back to primary
	assert.Equal(t, "primary-key", llmAPIKeyFor("https://llm.alt.example.com", "primary-key", ""))
}

func TestServer_routerSetup(t *testing.T) {
	server := getTestServer(t)

	router, err := server.routerSetup()
	require.NoError(t, err)
	require.NotNil(t, router)

	// one named route per handler is enough to know they all got wired
	for _, routeName := range []string{
		"root", "version", "login", "logout",
		"normalize-goal", "new-goal", "active-goal",
		"generate-plan", "new-workout-plan", "new-meal-plan",
		"calendar-auth", "calendar-callback", "calendar-sync",
		"upsert-profile", "get-profile",
		"unknown",
	} {
		assert.NotNil(t, router.Get(routeName), routeName)
	}
}

func TestServer_routerSetup_rootReachable(t *testing.T) {
	server := getTestServer(t)

	router, err := server.routerSetup()
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "test")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "I'm OK, thanks ;)", rr.Body.String())
}

func TestServer_routerSetup_unauthorizedWithoutToken(t *testing.T) {
	server := getTestServer(t)

	router, err := server.routerSetup()
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "/goals/user/user-1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "test")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
