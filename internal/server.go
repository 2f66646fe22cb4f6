package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fitcoachapp/backend/internal/auth"
	"github.com/fitcoachapp/backend/internal/calendar"
	"github.com/fitcoachapp/backend/internal/config"
	"github.com/fitcoachapp/backend/internal/db"
	"github.com/fitcoachapp/backend/internal/goals"
	"github.com/fitcoachapp/backend/internal/llm"
	"github.com/fitcoachapp/backend/internal/middleware"
	"github.com/fitcoachapp/backend/internal/misc"
	"github.com/fitcoachapp/backend/internal/plans"
	"github.com/fitcoachapp/backend/internal/profiles"
	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	clientAppSecret   string // sent by the app with every request
	versionInfo       string

	config          *config.Config
	dbPool          *pgxpool.Pool
	llmClient       *llm.Client
	calendarAdapter *calendar.Adapter

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	LlmAPIKey               string
	LlmAltAPIKey            string
	GoogleClientID          string
	GoogleClientSecret      string
	ClientAppSecret         string
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	DBUser                  string
	DBPassword              string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		DBUser:         params.DBUser,
		DBPassword:     params.DBPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("fitcoach", "backend", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})
	rdb.AddHook(redisotel.NewTracingHook())

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewAuthService(&auth.Admin{
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fitcoach-backend")
	if err != nil {
		return nil, err
	}

	llmClient := llm.NewClient(llm.NewClientParams{
		APIKey:  llmAPIKeyFor(params.Config.LlmAltProviderURL, params.LlmAPIKey, params.LlmAltAPIKey),
		BaseURL: params.Config.LlmAltProviderURL,
		Model:   params.Config.LlmModel,
		Timeout: time.Duration(params.Config.LlmRequestTimeout) * time.Second,
	})

	calendarAdapter := calendar.NewAdapter(calendar.NewAdapterParams{
		ClientID:     params.GoogleClientID,
		ClientSecret: params.GoogleClientSecret,
		RedirectURI:  params.Config.CalendarRedirectURI,
		Timeout:      time.Duration(params.Config.CalendarRequestTimeout) * time.Second,
	}, metricsManager)

	return &Server{
		config:          params.Config,
		dbPool:          dbPool,
		clientAppSecret: params.ClientAppSecret,
		versionInfo:     params.VersionInfo,
		llmClient:       llmClient,
		calendarAdapter: calendarAdapter,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

// llmAPIKeyFor picks the key matching the provider in use, the alternate
// provider comes with its own key.
func llmAPIKeyFor(altProviderURL, apiKey, altAPIKey string) string {
	if altProviderURL != "" && altAPIKey != "" {
		return altAPIKey
	}
	return apiKey
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)

	miscHandler := misc.NewHandler(s.versionInfo, s.authService)
	miscHandler.SetupRoutes(
		r, reqRateLimiter,
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	)

	goalsHandler := goals.NewHandler(
		goals.NewRepo(s.dbPool),
		goals.NewNormalizer(s.llmClient),
		goals.NewActiveGoalCache(),
		s.metricsManager,
	)
	goalsHandler.SetupRoutes(r, reqRateLimiter, s.config.LlmRateLimitAllowedPerMin)

	plansHandler := plans.NewHandler(
		plans.NewGenerator(
			s.llmClient,
			s.config.PlanTemperature,
			int64(s.config.PlanMaxTokens),
		),
		plans.NewWorkoutRepo(s.dbPool),
		plans.NewMealRepo(s.dbPool),
		s.metricsManager,
	)
	plansHandler.SetupRoutes(r, reqRateLimiter, s.config.LlmRateLimitAllowedPerMin)

	calendarHandler := calendar.NewHandler(
		s.calendarAdapter,
		calendar.NewTokenStore(s.redisClient),
		s.config.FrontendURL,
		s.config.CalendarTimezone,
		uuid.NewString,
	)
	calendarHandler.SetupRoutes(r)

	profilesHandler := profiles.NewHandler(profiles.NewRepo(s.dbPool))
	profilesHandler.SetupRoutes(r)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.clientAppSecret,
		s.loginChecker,
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
