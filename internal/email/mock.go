package email

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is the in-memory substitute used outside production.  It
// satisfies Provider exactly like a real provider; the scripting and
// inspection hooks live on the separate TestControls interface so production
// code never capability-sniffs for them.
type MockProvider struct {
	mu     sync.Mutex
	sent   []Message
	script []error // errors returned by upcoming Send calls, in order
}

// TestControls is implemented only by MockProvider.  Tests obtain it with an
// explicit type assertion at the test boundary.
type TestControls interface {
	FailNext(err error)
	Sent() []Message
	Reset()
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Name() string { return "mock" }

// Send records the message and returns the next scripted error, if any.
func (m *MockProvider) Send(ctx context.Context, msg Message) (ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return ProviderResult{}, &SendError{Kind: KindTimeout, Msg: err.Error()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) > 0 {
		err := m.script[0]
		m.script = m.script[1:]
		if err != nil {
			return ProviderResult{}, err
		}
	}
	m.sent = append(m.sent, msg)
	return ProviderResult{MessageID: uuid.NewString(), TrackingHonored: msg.Tracking}, nil
}

// FailNext queues an error for the next Send call.  Call it repeatedly to
// script a failure sequence; queue a nil to interleave a success.
func (m *MockProvider) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, err)
}

// Sent returns a copy of every message accepted so far.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset clears recorded messages and any unconsumed script.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.script = nil
}
