// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
)

// MockSession is a test implementation of the API client's session hook.
type MockSession struct {
	mu          sync.Mutex
	token       string
	invalidated []string
}

// NewMockSession creates a session holding token. An empty token gets a
// random one.
func NewMockSession(token string) *MockSession {
	if token == "" {
		token = uuid.NewString()
	}
	return &MockSession{token: token}
}

// Token returns the current bearer token.
func (m *MockSession) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Invalidate drops the token and records reason.
func (m *MockSession) Invalidate(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.invalidated = append(m.invalidated, reason)
}

// Reasons returns the invalidation reasons in order.
func (m *MockSession) Reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invalidated...)
}

// StaticIdentity always reports the same user.
type StaticIdentity struct {
	U *domain.User
}

// User returns the configured user.
func (s StaticIdentity) User() *domain.User {
	return s.U
}

// EventRecorder captures events published on a bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

// RecordEvents subscribes a new recorder to bus for the lifetime of t.
func RecordEvents(t testing.TB, bus *events.Bus) *EventRecorder {
	t.Helper()
	r := &EventRecorder{}
	t.Cleanup(bus.Subscribe(r.handle))
	return r
}

func (r *EventRecorder) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns everything recorded so far.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []events.EventType {
	var out []events.EventType
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

// Reasons returns the recorded event reasons in order.
func (r *EventRecorder) Reasons() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Reason)
	}
	return out
}

// SignedToken returns an HS256 JWT for subject that expires at exp.
func SignedToken(t testing.TB, subject string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}
