// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine runs agent turns: it assembles the persona and history,
// drives the model's plan/act/observe loop through the capability gateway,
// and commits the turn's entries to memory in one atomic batch.
package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxislabs/praxis/pkg/agents"
	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/gateway"
	"github.com/praxislabs/praxis/pkg/ledger"
	"github.com/praxislabs/praxis/pkg/llm"
	"github.com/praxislabs/praxis/pkg/memory"
	"github.com/praxislabs/praxis/pkg/resilience"
	"github.com/praxislabs/praxis/pkg/telemetry"
)

// Config bounds turn execution.
type Config struct {
	// MaxSteps caps model calls per turn. A turn that still wants more
	// capability calls at the cap is cut off with a partial result.
	MaxSteps int

	// TokenBudget bounds the history window assembled into the prompt.
	TokenBudget int

	// ModelTimeout bounds a single model call.
	ModelTimeout time.Duration

	// RejectBusyThreads fails a turn immediately when its thread is busy
	// instead of queueing behind the running turn.
	RejectBusyThreads bool

	// MessagePrice is the flat credit charge per turn for model usage.
	// Zero disables turn charging.
	MessagePrice decimal.Decimal
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:     8,
		TokenBudget:  4096,
		ModelTimeout: 60 * time.Second,
	}
}

// Engine executes turns for all agents in the process.
type Engine struct {
	agents   agents.Store
	provider llm.Provider
	memory   memory.Store
	gateway  *gateway.Gateway
	ledger   ledger.Ledger
	recaller *memory.Recaller

	cfg    Config
	locks  *threadLocks
	tracer trace.Tracer
}

// Option customizes engine construction.
type Option func(*Engine)

// WithRecaller enables semantic recall of prior conversations.
func WithRecaller(r *memory.Recaller) Option {
	return func(e *Engine) { e.recaller = r }
}

func New(store agents.Store, provider llm.Provider, mem memory.Store, gw *gateway.Gateway, l ledger.Ledger, cfg Config, opts ...Option) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultConfig().TokenBudget
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultConfig().ModelTimeout
	}
	e := &Engine{
		agents:   store,
		provider: provider,
		memory:   mem,
		gateway:  gw,
		ledger:   l,
		cfg:      cfg,
		locks:    newThreadLocks(),
		tracer:   otel.Tracer("praxis/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTurn executes one turn to completion and returns the final result.
func (e *Engine) RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	return e.run(ctx, req, nil)
}

// RunTurnStream executes one turn, forwarding content deltas of model output
// to onDelta as they arrive. If the provider cannot stream, the turn runs
// normally and the final content is delivered as a single delta.
func (e *Engine) RunTurnStream(ctx context.Context, req core.TurnRequest, onDelta func(delta string)) (*core.TurnResult, error) {
	if onDelta == nil {
		return e.run(ctx, req, nil)
	}
	return e.run(ctx, req, onDelta)
}

func (e *Engine) run(ctx context.Context, req core.TurnRequest, onDelta func(string)) (*core.TurnResult, error) {
	agent, err := e.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	ctx, turnID := core.EnsureTurnID(ctx)
	ctx = core.WithCaller(ctx, req.Caller)
	ctx, span := e.tracer.Start(ctx, "engine.turn")
	defer span.End()

	chatKey := req.ChatKey
	if chatKey == "" {
		chatKey = "default"
	}
	threadKey := core.ThreadKey(agent, chatKey, req.Caller)

	span.SetAttributes(telemetry.TurnAttributes(agent.ID, turnID, threadKey, req.Caller.Channel, e.cfg.MaxSteps)...)

	release, err := e.locks.acquire(ctx, threadKey, e.cfg.RejectBusyThreads)
	if err != nil {
		return nil, err
	}
	defer release()

	slog.InfoContext(ctx, "engine.turn.start",
		"agent_id", agent.ID,
		"turn_id", turnID,
		"thread_key", threadKey,
		"caller_id", req.Caller.ID,
		"autonomous", req.Task != nil,
	)

	// Charge for model usage up front so an exhausted account never reaches
	// the provider.
	var turnReservation *ledger.Reservation
	if e.ledger != nil && e.cfg.MessagePrice.IsPositive() {
		turnReservation, err = e.ledger.Reserve(ctx, agent.ID, turnID, "", e.cfg.MessagePrice)
		if err != nil {
			return nil, err
		}
	}

	result, err := e.loop(ctx, agent, req, turnID, threadKey, onDelta)

	if turnReservation != nil {
		if err != nil && !result.committed {
			if refundErr := e.ledger.Refund(ctx, turnReservation.ID, "turn aborted"); refundErr != nil {
				slog.ErrorContext(ctx, "engine.turn.refund_failed", "turn_id", turnID, "error", refundErr)
			}
		} else {
			if finErr := e.ledger.Finalize(ctx, turnReservation.ID, e.cfg.MessagePrice); finErr != nil {
				slog.ErrorContext(ctx, "engine.turn.finalize_failed", "turn_id", turnID, "error", finErr)
			}
		}
	}

	if err != nil {
		slog.ErrorContext(ctx, "engine.turn.error",
			"agent_id", agent.ID, "turn_id", turnID, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "engine.turn.done",
		"agent_id", agent.ID,
		"turn_id", turnID,
		"steps", result.turn.Steps,
		"capability_calls", len(result.turn.CapabilityCalls),
		"interrupted", result.turn.Interrupted,
		"max_steps_reached", result.turn.MaxStepsReached,
	)
	return result.turn, nil
}

// loopResult carries the turn outcome plus whether memory was committed,
// which decides settlement of the turn charge.
type loopResult struct {
	turn      *core.TurnResult
	committed bool
}

func (e *Engine) loop(ctx context.Context, agent *core.Agent, req core.TurnRequest, turnID, threadKey string, onDelta func(string)) (loopResult, error) {
	var recalled []string
	if e.recaller != nil {
		notes, err := e.recaller.Recall(ctx, agent.ID, req.Content)
		if err != nil {
			slog.WarnContext(ctx, "engine.recall.failed", "agent_id", agent.ID, "error", err)
		} else {
			recalled = notes
		}
	}
	systemPrompt := composeSystemPrompt(agent, req, recalled)

	history, err := e.memory.Load(ctx, threadKey, e.cfg.TokenBudget)
	if err != nil {
		return loopResult{}, errors.New(errors.CodeEngineFault, "failed to load thread history", err).
			WithContext("thread_key", threadKey)
	}

	userEntry := memory.TurnEntry{
		TurnID:  turnID,
		Role:    memory.RoleUser,
		Content: req.Content,
	}
	userEntry.EnsureTokens()
	if req.Task != nil {
		userEntry.Metadata = map[string]string{
			memory.MetaTaskID:   req.Task.TaskID,
			memory.MetaTaskName: req.Task.Name,
			memory.MetaSchedule: req.Task.Schedule,
		}
	}

	window := memory.TrimToBudget(append(history, userEntry), e.cfg.TokenBudget)

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, historyMessages(window)...)

	tools := e.gateway.VisibleTools(agent, req.Caller)

	turn := &core.TurnResult{TurnID: turnID}
	pending := []memory.TurnEntry{userEntry}

	for step := 1; step <= e.cfg.MaxSteps; step++ {
		turn.Steps = step

		resp, interruptedContent, err := e.modelCall(ctx, llm.ChatRequest{
			Model:       agent.Model,
			Messages:    messages,
			Tools:       tools,
			Temperature: agent.Temperature,
		}, onDelta)
		if err != nil {
			if interruptedContent != "" || stderrors.Is(err, context.Canceled) {
				// The caller went away mid-stream. Persist what the model
				// already said so the thread shows the interrupted turn.
				return e.commitInterrupted(agent, threadKey, turnID, pending, interruptedContent, turn)
			}
			return loopResult{}, errors.New(errors.CodeEngineFault, "model call failed", err).
				WithContext("agent_id", agent.ID).
				WithContext("step", step)
		}

		turn.PromptTokens += resp.Usage.PromptTokens
		turn.CompletionTokens += resp.Usage.CompletionTokens

		if len(resp.ToolCalls) == 0 {
			// FINAL: commit the whole turn in one batch.
			turn.Content = resp.Content
			assistant := memory.TurnEntry{TurnID: turnID, Role: memory.RoleAssistant, Content: resp.Content}
			assistant.EnsureTokens()
			pending = append(pending, assistant)
			if err := e.memory.AppendBatch(ctx, threadKey, pending); err != nil {
				return loopResult{}, errors.New(errors.CodeEngineFault, "failed to commit turn history", err).
					WithContext("thread_key", threadKey)
			}
			e.rememberExchange(ctx, agent.ID, req.Content, resp.Content)
			return loopResult{turn: turn, committed: true}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			observation, record := e.invokeCapability(ctx, agent, req.Caller, turnID, call)
			turn.CapabilityCalls = append(turn.CapabilityCalls, record)

			obsEntry := memory.TurnEntry{
				TurnID:  turnID,
				Role:    memory.RoleObservation,
				Content: observation,
				Metadata: map[string]string{
					metaToolCallID: call.ID,
					metaCapability: call.Function.Name,
				},
			}
			obsEntry.EnsureTokens()
			pending = append(pending, obsEntry)

			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    observation,
				ToolCallID: call.ID,
			})
		}
	}

	// Step budget exhausted with the model still asking for capabilities.
	// Commit the partial turn so the observations aren't lost.
	notice := "I stopped before finishing: the step limit for this request was reached."
	turn.Content = notice
	turn.MaxStepsReached = true
	assistant := memory.TurnEntry{
		TurnID:   turnID,
		Role:     memory.RoleAssistant,
		Content:  notice,
		Metadata: map[string]string{"max_steps_reached": "true"},
	}
	assistant.EnsureTokens()
	pending = append(pending, assistant)
	if err := e.memory.AppendBatch(ctx, threadKey, pending); err != nil {
		return loopResult{}, errors.New(errors.CodeEngineFault, "failed to commit turn history", err).
			WithContext("thread_key", threadKey)
	}
	return loopResult{turn: turn, committed: true}, nil
}

// modelCall invokes the provider once, streaming when requested and
// supported. On a cancellation mid-stream it returns the partial content
// accumulated so far together with the error.
func (e *Engine) modelCall(ctx context.Context, req llm.ChatRequest, onDelta func(string)) (*llm.ChatResponse, string, error) {
	streamer, canStream := e.provider.(llm.StreamingProvider)
	if onDelta == nil || !canStream {
		var resp *llm.ChatResponse
		err := resilience.WithTimeout(ctx, e.cfg.ModelTimeout, func(ctx context.Context) error {
			var chatErr error
			resp, chatErr = e.provider.Chat(ctx, req)
			return chatErr
		})
		if err != nil {
			return nil, "", err
		}
		if onDelta != nil && len(resp.ToolCalls) == 0 && resp.Content != "" {
			onDelta(resp.Content)
		}
		return resp, "", nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	chunks, err := streamer.ChatStream(callCtx, req)
	if err != nil {
		return nil, "", err
	}

	resp := &llm.ChatResponse{}
	for {
		select {
		case <-ctx.Done():
			return nil, resp.Content, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return resp, "", nil
			}
			if chunk.Error != nil {
				return nil, resp.Content, chunk.Error
			}
			if chunk.Content != "" {
				resp.Content += chunk.Content
				// Tool-call turns are not streamed to the caller; only the
				// final answer is.
				if len(resp.ToolCalls) == 0 && len(chunk.ToolCalls) == 0 {
					onDelta(chunk.Content)
				}
			}
			if len(chunk.ToolCalls) > 0 {
				resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
			}
			if chunk.Done {
				resp.Usage = chunk.Usage
				return resp, "", nil
			}
		}
	}
}

// invokeCapability routes one tool call through the gateway and renders the
// observation the model will see. Invocation failures become observations,
// not turn failures; the model decides how to proceed.
func (e *Engine) invokeCapability(ctx context.Context, agent *core.Agent, caller core.Caller, turnID string, call llm.ToolCall) (string, core.CapabilityCallRecord) {
	name := call.Function.Name

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			slog.WarnContext(ctx, "engine.capability.bad_args",
				"agent_id", agent.ID, "capability", name, "error", err)
			return "error: arguments were not valid JSON: " + err.Error(),
				core.CapabilityCallRecord{Name: name, Err: "invalid arguments JSON"}
		}
	}

	res, err := e.gateway.Invoke(ctx, gateway.Invocation{
		Agent:  agent,
		Caller: caller,
		TurnID: turnID,
		Name:   name,
		Args:   args,
	})
	if err != nil {
		return "error: " + err.Error(), core.CapabilityCallRecord{Name: name, Err: err.Error()}
	}
	return res.Output, res.Record
}

func (e *Engine) commitInterrupted(agent *core.Agent, threadKey, turnID string, pending []memory.TurnEntry, partial string, turn *core.TurnResult) (loopResult, error) {
	// The request context is gone; use a short detached context for the
	// flush.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turn.Content = partial
	turn.Interrupted = true
	assistant := memory.TurnEntry{
		TurnID:   turnID,
		Role:     memory.RoleAssistant,
		Content:  partial,
		Metadata: map[string]string{memory.MetaInterrupted: "true"},
	}
	assistant.EnsureTokens()
	pending = append(pending, assistant)

	if err := e.memory.AppendBatch(flushCtx, threadKey, pending); err != nil {
		slog.Error("engine.turn.interrupt_flush_failed",
			"agent_id", agent.ID, "turn_id", turnID, "error", err)
		return loopResult{turn: turn}, errors.New(errors.CodeEngineFault, "failed to flush interrupted turn", err)
	}
	return loopResult{turn: turn, committed: true}, nil
}

func (e *Engine) rememberExchange(ctx context.Context, agentID, question, answer string) {
	if e.recaller == nil || answer == "" {
		return
	}
	note := question
	if note != "" {
		note += " -> "
	}
	note += answer
	if err := e.recaller.Remember(ctx, agentID, note); err != nil {
		slog.WarnContext(ctx, "engine.remember.failed", "agent_id", agentID, "error", err)
	}
}
