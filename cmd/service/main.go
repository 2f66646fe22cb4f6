package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/fitcoachapp/backend/internal"
	"github.com/fitcoachapp/backend/internal/config"
	"github.com/fitcoachapp/backend/internal/logging"
	"github.com/fitcoachapp/backend/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development | ddev | dockerdev ]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "main-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	llmAPIKey := os.Getenv("FITCOACH_LLM_API_KEY")
	if llmAPIKey == "" {
		log.Errorf("llm API key not set, use FITCOACH_LLM_API_KEY env var to set it")
	}
	llmAltAPIKey := os.Getenv("FITCOACH_LLM_ALT_API_KEY")
	if cfg.LlmAltProviderURL != "" && llmAltAPIKey == "" {
		log.Errorf("llm alternate provider configured, but its key not set, use FITCOACH_LLM_ALT_API_KEY env var to set it")
	}

	googleClientID := os.Getenv("FITCOACH_GOOGLE_CLIENT_ID")
	if googleClientID == "" {
		log.Errorf("google client id not set. use FITCOACH_GOOGLE_CLIENT_ID")
	}
	googleClientSecret := os.Getenv("FITCOACH_GOOGLE_CLIENT_SECRET")
	if googleClientSecret == "" {
		log.Errorf("google client secret not set. use FITCOACH_GOOGLE_CLIENT_SECRET")
	}

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	adminUsername := os.Getenv("FITCOACH_ADMIN_USERNAME")
	adminPasswordHash := os.Getenv("FITCOACH_ADMIN_PASSWORD_HASH")
	if adminUsername == "" || adminPasswordHash == "" {
		log.Errorf("admin username and password not set. use FITCOACH_ADMIN_USERNAME and FITCOACH_ADMIN_PASSWORD_HASH")
		adminUsername = "todo"
		adminPasswordHash = "$$2a$$14$$gPDY7P8qGduPi.OKoPKzM.N/MTyZpP.q2tmbprdHH.1jyw7fK3KfW"
	}

	clientAppSecret := os.Getenv("FITCOACH_APP_SECRET")
	if clientAppSecret == "" {
		log.Errorf("client app secret not set. use FITCOACH_APP_SECRET")
	}

	dbUser := os.Getenv("FITCOACH_DB_USER")
	dbPassword := os.Getenv("FITCOACH_DB_PASSWORD")
	if dbPassword == "" {
		log.Errorf("db password not set. use FITCOACH_DB_PASSWORD")
	}

	redisPassword := os.Getenv("FITCOACH_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use FITCOACH_REDIS_PASS")
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			LlmAPIKey:               llmAPIKey,
			LlmAltAPIKey:            llmAltAPIKey,
			GoogleClientID:          googleClientID,
			GoogleClientSecret:      googleClientSecret,
			ClientAppSecret:         clientAppSecret,
			VersionInfo:             versionInfo,
			AdminUsername:           adminUsername,
			AdminPasswordHash:       adminPasswordHash,
			DBUser:                  dbUser,
			DBPassword:              dbPassword,
			RedisPassword:           redisPassword,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	// go to sleep 🥱
	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
