package mock

import (
	"context"
	"sync/atomic"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns "answer: " followed by the prompt.
	GenerateFunc func(ctx context.Context, system, prompt string) (string, error)

	callCount atomic.Int64
}

// NewMockGenerator creates a mock generator with default echo behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns the result of GenerateFunc or echoes the prompt.
func (m *MockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.callCount.Add(1)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt)
	}
	return "answer: " + prompt, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom function.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.GenerateFunc = nil
}
