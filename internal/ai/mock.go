package ai

import (
	"context"
	"sync"
)

// MockClient is a test double that replays canned responses in order.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	calls     []string
	err       error
}

// NewMockClient creates a mock that cycles through the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// SetError makes every Complete call fail.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the prompts seen so far.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Model returns a fixed identifier.
func (m *MockClient) Model() string { return "mock" }

// Complete records the prompt and returns the next canned response.
func (m *MockClient) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.calls = append(m.calls, prompt)
	if len(m.responses) == 0 {
		return "", nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}
