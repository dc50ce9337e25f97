package llm

import (
	"context"
	"fmt"
)

// MockProvider is a canned-answer Provider for tests and for running the
// daemon without a model backend (provider "mock" in the config). Every
// call returns Response with usage derived from the request, so ledger
// settlement and memory accounting see plausible numbers instead of zeros.
type MockProvider struct {
	Response string
	Err      error
	// ChatFunc, when set, replaces the canned behavior entirely.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Usage: mockUsage(req, m.Response)}, nil
}

// mockUsage sizes usage the same way turn memory sizes entries, roughly one
// token per four characters, with a floor of one token per message so empty
// requests still register as charged work.
func mockUsage(req ChatRequest, response string) Usage {
	prompt := 0
	for _, msg := range req.Messages {
		n := len(msg.Content) / 4
		if n == 0 {
			n = 1
		}
		prompt += n
	}
	completion := len(response) / 4
	if completion == 0 {
		completion = 1
	}
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// FailingMockProvider fails every call. Used to exercise the engine's
// reserve-then-refund path.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock provider: configured to fail")
	}
	return nil, f.Err
}

var (
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*FailingMockProvider)(nil)
)
