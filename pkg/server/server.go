// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the execution engine, agent registry, task
// scheduler, and credit ledger over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/ledger"
	"github.com/praxislabs/praxis/pkg/scheduler"
)

// TurnRunner executes turns. Satisfied by the execution engine.
type TurnRunner interface {
	RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error)
	RunTurnStream(ctx context.Context, req core.TurnRequest, onDelta func(delta string)) (*core.TurnResult, error)
}

// TaskTrigger fires a task outside its schedule. Satisfied by the scheduler.
type TaskTrigger interface {
	Trigger(ctx context.Context, taskID string) error
}

// Server wires the HTTP API to the runtime components.
type Server struct {
	engine  TurnRunner
	agents  agents.Store
	tasks   scheduler.Store
	trigger TaskTrigger
	ledger  ledger.Ledger
	origins []string
}

// Option customizes the server.
type Option func(*Server)

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// New builds a server. trigger may be nil when no scheduler runs.
func New(engine TurnRunner, agentStore agents.Store, tasks scheduler.Store, trigger TaskTrigger, l ledger.Ledger, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		agents:  agentStore,
		tasks:   tasks,
		trigger: trigger,
		ledger:  l,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handlePutAgent)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", s.handleGetAgent)
				r.Put("/", s.handlePutAgent)
				r.Delete("/", s.handleDeleteAgent)
				r.Post("/turns", s.handleTurn)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handlePutTask)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/", s.handlePutTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/trigger", s.handleTriggerTask)
			})
		})

		r.Route("/ledger/{account}", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Get("/entries", s.handleEntries)
			r.Post("/refill", s.handleRefill)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "praxis",
	})
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()))
	})
}
