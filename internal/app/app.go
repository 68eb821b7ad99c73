// Package app constructs and wires the application's components.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cicada-project/cleo/internal/config"
	"github.com/cicada-project/cleo/internal/gemini"
	"github.com/cicada-project/cleo/internal/orchestrator"
	"github.com/cicada-project/cleo/internal/retrieval"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DBPool       *pgxpool.Pool
	Gemini       *gemini.Client
	Retriever    *retrieval.Retriever
	Orchestrator *orchestrator.Orchestrator

	otelCleanup func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
