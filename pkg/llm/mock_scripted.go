package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence
// of responses. Useful for testing multi-step loops: a response may carry
// tool calls, which sends the engine through its capability path before the
// next scripted response is consumed.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []ChatResponse
	Err       error
	// CallCount tracks how many times Chat has been called.
	CallCount int
	// Requests records every request received, for assertions on prompt
	// composition and tool visibility.
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a ScriptedMockProvider from plain text
// answers. Use AddToolCallResponse to interleave tool-call steps.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	p := &ScriptedMockProvider{}
	for _, r := range responses {
		p.Responses = append(p.Responses, ChatResponse{Content: r})
	}
	return p
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]

	if resp.Usage.TotalTokens == 0 {
		resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	}
	return &resp, nil
}

// ChatStream implements StreamingProvider by emitting the next scripted
// response as single-rune chunks.
func (s *ScriptedMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := s.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, len(resp.Content)+1)
	go func() {
		defer close(chunks)
		for _, r := range resp.Content {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err()}
				return
			case chunks <- StreamChunk{Content: string(r)}:
			}
		}
		chunks <- StreamChunk{Done: true, ToolCalls: resp.ToolCalls, Usage: resp.Usage}
	}()
	return chunks, nil
}

// AddResponse appends a plain text response to the queue.
func (s *ScriptedMockProvider) AddResponse(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{Content: content})
}

// AddToolCallResponse appends a response requesting a single tool call.
func (s *ScriptedMockProvider) AddToolCallResponse(id, name, arguments string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: arguments},
		}},
	})
}

var _ StreamingProvider = (*ScriptedMockProvider)(nil)
