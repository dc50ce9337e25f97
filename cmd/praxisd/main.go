// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// praxisd runs the agent execution service: the HTTP API, the autonomous
// task scheduler, and the daily credit refill loop.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/capability"
	"github.com/praxislabs/praxis/pkg/config"
	"github.com/praxislabs/praxis/pkg/engine"
	"github.com/praxislabs/praxis/pkg/gateway"
	"github.com/praxislabs/praxis/pkg/ledger"
	"github.com/praxislabs/praxis/pkg/llm"
	"github.com/praxislabs/praxis/pkg/memory"
	ollamaembed "github.com/praxislabs/praxis/pkg/memory/ollama"
	"github.com/praxislabs/praxis/pkg/memory/qdrant"
	"github.com/praxislabs/praxis/pkg/resilience"
	"github.com/praxislabs/praxis/pkg/scheduler"
	"github.com/praxislabs/praxis/pkg/server"
	"github.com/praxislabs/praxis/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("praxisd.fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdownTelemetry, err := telemetry.InitWithConfig("praxis", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("praxisd.telemetry.shutdown_failed", "error", err)
		}
	}()

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.Store.Path, err)
	}
	defer db.Close()

	memStore, err := memory.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}
	creditLedger, err := ledger.NewSQLiteLedger(db)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	audit, err := gateway.NewSQLiteAuditLog(db)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}
	agentStore, err := agents.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init agent store: %w", err)
	}
	taskStore, err := scheduler.NewSQLiteTaskStore(db)
	if err != nil {
		return fmt.Errorf("init task store: %w", err)
	}

	if cfg.Server.AgentManifest != "" {
		if err := seedAgents(ctx, agentStore, cfg.Server.AgentManifest); err != nil {
			return fmt.Errorf("seed agents: %w", err)
		}
	}

	registry := capability.NewRegistry()
	for _, serverCfg := range cfg.MCP {
		names, closeServer, err := importMCPServer(ctx, registry, serverCfg)
		if err != nil {
			return fmt.Errorf("import mcp server %q: %w", serverCfg.Command, err)
		}
		defer closeServer()
		slog.Info("praxisd.mcp.imported",
			"command", serverCfg.Command,
			"category", serverCfg.Category,
			"capabilities", names)
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return err
	}

	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(cfg.Gateway.MaxAttempts).
		WithInitialDelay(cfg.Gateway.InitialDelay)
	gw := gateway.New(registry, creditLedger, audit,
		gateway.WithRetry(retry),
		gateway.WithInvocationTimeout(cfg.Gateway.InvocationTimeout))

	messagePrice, err := decimal.NewFromString(cfg.Ledger.MessagePrice)
	if err != nil {
		return fmt.Errorf("parse ledger.message_price %q: %w", cfg.Ledger.MessagePrice, err)
	}
	engineOpts := []engine.Option{}
	if cfg.Recall.Enabled {
		recaller, err := buildRecaller(cfg.Recall)
		if err != nil {
			return fmt.Errorf("init recall: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithRecaller(recaller))
	}
	eng := engine.New(agentStore, provider, memStore, gw, creditLedger, engine.Config{
		MaxSteps:          cfg.Engine.MaxSteps,
		TokenBudget:       cfg.Engine.TokenBudget,
		ModelTimeout:      cfg.Engine.ModelTimeout,
		RejectBusyThreads: cfg.Engine.RejectBusyThreads,
		MessagePrice:      messagePrice,
	}, engineOpts...)

	sched := scheduler.New(taskStore, agentStore, eng)
	sched.Start(cfg.Scheduler.TickInterval)
	defer sched.Stop()

	dailyRefill, err := decimal.NewFromString(cfg.Ledger.DailyRefill)
	if err != nil {
		return fmt.Errorf("parse ledger.daily_refill %q: %w", cfg.Ledger.DailyRefill, err)
	}
	if dailyRefill.IsPositive() {
		go refillLoop(ctx, creditLedger, agentStore, dailyRefill)
	}

	api := server.New(eng, agentStore, taskStore, sched, creditLedger,
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("praxisd.listening", "addr", cfg.Server.Addr, "version", version)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		slog.Info("praxisd.shutdown.begin")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		slog.Info("praxisd.shutdown.done")
	}
	return nil
}

// seedAgents loads operator-authored manifests into the store. A path may be
// a single file or a directory of YAML files.
func seedAgents(ctx context.Context, store agents.Store, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		defs, err := agents.LoadManifestDir(path)
		if err != nil {
			return err
		}
		for _, agent := range defs {
			if err := store.Put(ctx, agent); err != nil {
				return err
			}
			slog.Info("praxisd.agent.seeded", "agent_id", agent.ID)
		}
		return nil
	}
	agent, err := agents.LoadManifest(path)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, agent); err != nil {
		return err
	}
	slog.Info("praxisd.agent.seeded", "agent_id", agent.ID)
	return nil
}

func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return llm.NewOllama(cfg.BaseURL), nil
	case "mock":
		return &llm.MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func buildRecaller(cfg config.RecallConfig) (*memory.Recaller, error) {
	vectors, err := qdrant.New(cfg.QdrantAddr)
	if err != nil {
		return nil, err
	}
	embedder := ollamaembed.NewEmbedder(cfg.EmbedderURL, cfg.EmbedderModel)
	return memory.NewRecaller(embedder, vectors, cfg.Collection, cfg.TopK), nil
}

func importMCPServer(ctx context.Context, registry *capability.Registry, cfg config.MCPServerConfig) ([]string, func(), error) {
	cost := decimal.Zero
	if cfg.NominalCost != "" {
		parsed, err := decimal.NewFromString(cfg.NominalCost)
		if err != nil {
			return nil, nil, fmt.Errorf("parse nominal_cost %q: %w", cfg.NominalCost, err)
		}
		cost = parsed
	}
	client, err := capability.ConnectStdio(ctx, cfg.Command, cfg.Args...)
	if err != nil {
		return nil, nil, err
	}
	names, err := capability.RegisterMCPServer(ctx, registry, cfg.Category, client, cost)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeServer := func() {
		if err := client.Close(); err != nil {
			slog.Error("praxisd.mcp.close_failed", "command", cfg.Command, "error", err)
		}
	}
	return names, closeServer, nil
}

// refillLoop credits every agent's account once per UTC day. Refill is
// idempotent per period, so the hourly cadence only covers process restarts
// and the day rollover.
func refillLoop(ctx context.Context, l ledger.Ledger, store agents.Store, amount decimal.Decimal) {
	refillAll(ctx, l, store, amount)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refillAll(ctx, l, store, amount)
		}
	}
}

func refillAll(ctx context.Context, l ledger.Ledger, store agents.Store, amount decimal.Decimal) {
	list, err := store.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "praxisd.refill.list_failed", "error", err)
		return
	}
	periodKey := time.Now().UTC().Format("2006-01-02")
	for _, agent := range list {
		if err := l.Refill(ctx, agent.ID, amount, periodKey); err != nil {
			slog.ErrorContext(ctx, "praxisd.refill.failed",
				"agent_id", agent.ID, "period", periodKey, "error", err)
		}
	}
}
