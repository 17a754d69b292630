package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/quietreach/reach-cli/internal/adapters/platform/linkedin"
	statusadapter "github.com/quietreach/reach-cli/internal/adapters/render/status"
	redisrepo "github.com/quietreach/reach-cli/internal/adapters/repo/redis"
	tomlrepo "github.com/quietreach/reach-cli/internal/adapters/repo/toml"
	chainstore "github.com/quietreach/reach-cli/internal/adapters/secrets/chain"
	"github.com/quietreach/reach-cli/internal/application"
	"github.com/quietreach/reach-cli/internal/config"
	"github.com/quietreach/reach-cli/internal/logging"
	"github.com/quietreach/reach-cli/internal/ports"
)

type app struct {
	cfg            config.Config
	log            zerolog.Logger
	sessions       *application.SessionService
	limiter        *application.RateLimiter
	dispatcher     *application.Dispatcher
	status         *application.StatusService
	statusRenderer func([]application.SessionStatus, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
	closeStore     func() error
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	clock := ports.SystemClock{}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(filepath.Join(homeDir, ".reach", "secrets"))
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	var (
		sessionRepo ports.SessionRepository
		rateRepo    ports.RateStateRepository
		closeStore  func() error
	)
	switch cfg.Storage.Backend {
	case "redis":
		store, err := redisrepo.NewStore(context.Background(), cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("wire redis store: %w", err)
		}
		sessionRepo = store.Sessions(clock)
		rateRepo = store.RateState()
		closeStore = store.Close
	default:
		sessionRepo, err = tomlrepo.NewSessionRepository(viper.New())
		if err != nil {
			return nil, fmt.Errorf("wire session repository: %w", err)
		}
		rateRepo, err = tomlrepo.NewRateStateRepository(viper.New())
		if err != nil {
			return nil, fmt.Errorf("wire rate state repository: %w", err)
		}
	}

	platform := &linkedin.Client{
		API:            linkedin.DefaultAPI(cfg.Platform.BaseURL),
		HTTPClient:     http.DefaultClient,
		Secrets:        secretStore,
		Clock:          clock,
		RequestTimeout: cfg.Platform.RequestTimeout,
		SessionTTL:     cfg.Platform.SessionTTL,
	}

	sessions := application.NewSessionService(sessionRepo, secretStore, platform, clock, cfg.Sessions.RefreshMargin)

	limiter := application.NewRateLimiter(application.RateLimiterConfig{
		Window:   cfg.Limits.Window,
		Capacity: cfg.Limits.MaxPerWindow,
	}, rateRepo, clock)
	if err := limiter.Hydrate(context.Background()); err != nil {
		return nil, fmt.Errorf("hydrate rate limiter: %w", err)
	}

	executor := application.NewExecutor(sessions, limiter, platform, application.ExecutorConfig{
		MaxRetries:  cfg.Executor.MaxRetries,
		BaseBackoff: cfg.Executor.BaseBackoff,
		MaxBackoff:  cfg.Executor.MaxBackoff,
	}, clock, log)

	return &app{
		cfg:            cfg,
		log:            log,
		sessions:       sessions,
		limiter:        limiter,
		dispatcher:     application.NewDispatcher(executor, clock, log),
		status:         application.NewStatusService(sessionRepo, limiter),
		statusRenderer: statusadapter.Render,
		now:            time.Now,
		closeStore:     closeStore,
	}, nil
}

// shutdown drains in-flight work and persists limiter state. Safe to call
// after any command, including ones that never touched the dispatcher.
func (a *app) shutdown(ctx context.Context) error {
	a.dispatcher.Close()

	if err := a.limiter.Flush(ctx); err != nil {
		return fmt.Errorf("flush rate state: %w", err)
	}

	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}

	return nil
}
