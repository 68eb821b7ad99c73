package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cicada-project/cleo/db"
	"github.com/cicada-project/cleo/internal/config"
	"github.com/cicada-project/cleo/internal/gemini"
	"github.com/cicada-project/cleo/internal/observability"
	"github.com/cicada-project/cleo/internal/orchestrator"
	"github.com/cicada-project/cleo/internal/retrieval"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = observability.Setup(ctx, cfg.Datadog)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	a.Gemini = gemini.NewClient(gemini.Config{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
	}, logger)

	store, err := retrieval.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Retriever = retrieval.New(a.Gemini, store, cfg.EmbedDimension, logger)

	orch, err := orchestrator.New(&streamerAdapter{client: a.Gemini}, a.Retriever, logger)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orch

	return a, nil
}

// streamerAdapter narrows *gemini.Client to the orchestrator's Streamer
// interface. Needed because Go interface satisfaction is invariant in the
// return type: the client returns *gemini.Stream, not orchestrator.Stream.
type streamerAdapter struct {
	client *gemini.Client
}

func (s *streamerAdapter) StreamGenerate(ctx context.Context, contents []gemini.Content, tools []gemini.Tool) (orchestrator.Stream, error) {
	return s.client.StreamGenerate(ctx, contents, tools)
}

// provideDBPool runs migrations and creates a tuned pgx connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
