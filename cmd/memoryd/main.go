// memoryd is the conversational memory service's process entrypoint:
// it wires the database, LLM mediator, domain engines, background job
// workers, and the HTTP tool-dispatch server together and runs until
// signalled to shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memhub/memoryd/pkg/api"
	"github.com/memhub/memoryd/pkg/audit"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/database"
	"github.com/memhub/memoryd/pkg/decisionstate"
	"github.com/memhub/memoryd/pkg/distill"
	"github.com/memhub/memoryd/pkg/jobs"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/memory"
	"github.com/memhub/memoryd/pkg/plans"
	"github.com/memhub/memoryd/pkg/retention"
	"github.com/memhub/memoryd/pkg/retrieval"
	"github.com/memhub/memoryd/pkg/shared"
	"github.com/memhub/memoryd/pkg/store"
	"github.com/memhub/memoryd/pkg/turns"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DatabaseURL), database.VectorIndexOptions{
		IndexType:          cfg.Vector.IndexType,
		IVFFlatLists:       cfg.Vector.IVFFlatLists,
		HNSWM:              cfg.Vector.HNSWM,
		HNSWEfConstruction: cfg.Vector.HNSWEfConstruction,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database, migrations and indexes applied")

	st := store.New(dbClient.DB())

	mediator, err := llmmediator.New(cfg.LLM)
	if err != nil {
		slog.Error("failed to construct llm mediator", "error", err)
		os.Exit(1)
	}

	turnsEngine := turns.NewEngine(st, mediator, *cfg)
	plansService := plans.NewService(st)
	memoryEngine := memory.NewEngine(st, mediator, cfg.Dedup)
	distillEngine := distill.NewEngine(turnsEngine, mediator, memoryEngine)
	retrievalEngine := retrieval.NewEngine(st, mediator, cfg.LLM.EnableRerank)
	auditEngine := audit.NewEngine(st, mediator)
	decisionStateEngine := decisionstate.NewEngine(st)
	sharedEngine := shared.NewEngine(st, cfg.SharedHMACSecret, cfg.SharedDefaultExpiresMin)
	retentionEngine := retention.NewEngine(st, cfg.Retention)

	registry := jobs.NewRegistry()
	registry.Register(store.JobTypeEmbedTurn, turnsEngine.EmbedTurnHandler)
	registry.Register(store.JobTypeDistillTurn, distillEngine.DistillTurnHandler)
	registry.Register(store.JobTypeRetentionCleanup, retentionEngine.CleanupHandler)

	jobEngine := jobs.NewEngine(st, registry, cfg.Jobs)
	jobEngine.Start(ctx)
	defer jobEngine.Stop()

	go retention.RunScheduler(ctx, st, time.Duration(cfg.Retention.CleanupIntervalS)*time.Second)

	server := api.NewServer(api.Deps{
		DBClient:       dbClient,
		JobEngine:      jobEngine,
		Turns:          turnsEngine,
		Plans:          plansService,
		Distill:        distillEngine,
		Retrieval:      retrievalEngine,
		Audit:          auditEngine,
		Memory:         memoryEngine,
		DecisionState:  decisionStateEngine,
		Shared:         sharedEngine,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}
}
