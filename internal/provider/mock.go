package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a test double for model backends.
// It returns pre-configured responses in order, tracking all prompts.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	errors    []error
	prompts   []string
	callIndex int
	healthy   bool
}

// NewMockProvider creates a mock with queued responses.
// Each Generate() call pops the next response/error pair.
func NewMockProvider(responses []string, errors []error) *MockProvider {
	return &MockProvider{
		responses: responses,
		errors:    errors,
		healthy:   true,
	}
}

// NewMockProviderSimple creates a mock that returns a single text response
func NewMockProviderSimple(content string) *MockProvider {
	return NewMockProvider([]string{content}, []error{nil})
}

func (m *MockProvider) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if m.callIndex >= len(m.responses) {
		return "", fmt.Errorf("mock provider: no more responses (call #%d)", m.callIndex)
	}

	resp := m.responses[m.callIndex]
	var err error
	if m.callIndex < len(m.errors) {
		err = m.errors[m.callIndex]
	}
	m.callIndex++

	return resp, err
}

func (m *MockProvider) CheckHealth(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MockProvider) Name() string {
	return "mock"
}

// SetHealthy controls what CheckHealth reports
func (m *MockProvider) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Prompts returns every prompt sent to this mock
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// CallCount returns how many times Generate was called
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Reset clears call history and resets the response index
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.callIndex = 0
}
