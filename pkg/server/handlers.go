// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/scheduler"
)

// turnRequest is the wire form of one inbound turn.
type turnRequest struct {
	ChatKey          string `json:"chat_key"`
	CallerID         string `json:"caller_id"`
	Channel          string `json:"channel"`
	Content          string `json:"content"`
	EntrypointPrompt string `json:"entrypoint_prompt,omitempty"`
	Stream           bool   `json:"stream,omitempty"`
}

type turnResponse struct {
	TurnID          string           `json:"turn_id"`
	Content         string           `json:"content"`
	Steps           int              `json:"steps"`
	Interrupted     bool             `json:"interrupted,omitempty"`
	MaxStepsReached bool             `json:"max_steps_reached,omitempty"`
	Capabilities    []capabilityCall `json:"capabilities,omitempty"`
}

type capabilityCall struct {
	Name     string `json:"name"`
	Cost     string `json:"cost"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var body turnRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Content == "" {
		writeError(w, errors.New(errors.CodeInvalidInput, "content is required", nil))
		return
	}
	if body.CallerID == "" {
		writeError(w, errors.New(errors.CodeInvalidInput, "caller_id is required", nil))
		return
	}

	req := core.TurnRequest{
		AgentID:          chi.URLParam(r, "agentID"),
		ChatKey:          body.ChatKey,
		Caller:           core.Caller{ID: body.CallerID, Channel: body.Channel},
		Content:          body.Content,
		EntrypointPrompt: body.EntrypointPrompt,
		Stream:           body.Stream,
	}

	if body.Stream {
		s.streamTurn(w, r, req)
		return
	}

	result, err := s.engine.RunTurn(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(result))
}

// streamTurn delivers content deltas as SSE events, then a final "result"
// event with the full turn outcome.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, req core.TurnRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming not supported", nil))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	result, err := s.engine.RunTurnStream(r.Context(), req, func(delta string) {
		writeSSE(w, flusher, "delta", map[string]string{"content": delta})
	})
	if err != nil {
		var typed *errors.Error
		code, msg := string(errors.CodeInternal), "internal error"
		if asTyped(err, &typed) {
			code, msg = string(typed.Code), typed.Message
		}
		writeSSE(w, flusher, "error", errorBody{Code: code, Message: msg})
		return
	}
	writeSSE(w, flusher, "result", toTurnResponse(result))
}

func toTurnResponse(result *core.TurnResult) turnResponse {
	resp := turnResponse{
		TurnID:          result.TurnID,
		Content:         result.Content,
		Steps:           result.Steps,
		Interrupted:     result.Interrupted,
		MaxStepsReached: result.MaxStepsReached,
	}
	for _, call := range result.CapabilityCalls {
		resp.Capabilities = append(resp.Capabilities, capabilityCall{
			Name:     call.Name,
			Cost:     call.Cost.String(),
			Attempts: call.Attempts,
			Error:    call.Err,
		})
	}
	return resp
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.agents.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handlePutAgent(w http.ResponseWriter, r *http.Request) {
	var agent core.Agent
	if err := decodeBody(r, &agent); err != nil {
		writeError(w, err)
		return
	}
	if id := chi.URLParam(r, "agentID"); id != "" {
		agent.ID = id
	}
	if err := agents.Validate(&agent); err != nil {
		writeError(w, errors.New(errors.CodeInvalidInput, err.Error(), nil))
		return
	}
	if err := s.agents.Put(r.Context(), &agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Delete(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handlePutTask(w http.ResponseWriter, r *http.Request) {
	var task scheduler.Task
	if err := decodeBody(r, &task); err != nil {
		writeError(w, err)
		return
	}
	if id := chi.URLParam(r, "taskID"); id != "" {
		task.ID = id
	}
	if err := task.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.tasks.Put(r.Context(), &task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, errors.New(errors.CodeInternal, "scheduler not running", nil))
		return
	}
	if err := s.trigger.Trigger(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fired"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balance, err := s.ledger.Balance(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := s.ledger.Available(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":   account,
		"balance":   balance.String(),
		"available": available.String(),
	})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, errors.New(errors.CodeInvalidInput, "limit must be a positive integer", nil))
			return
		}
		limit = parsed
	}
	entries, err := s.ledger.Entries(r.Context(), chi.URLParam(r, "account"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type refillRequest struct {
	Amount    string `json:"amount"`
	PeriodKey string `json:"period_key"`
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	var body refillRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("amount must be a positive decimal, got %q", body.Amount), nil))
		return
	}
	if body.PeriodKey == "" {
		writeError(w, errors.New(errors.CodeInvalidInput, "period_key is required", nil))
		return
	}
	account := chi.URLParam(r, "account")
	if err := s.ledger.Refill(r.Context(), account, amount, body.PeriodKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}
