// Package notify delivers user-facing notices (save failures, completions)
// over registered channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Notice kinds.
const (
	KindToast      = "toast"
	KindCompletion = "completion"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice is a message for the user of a session.
type Notice struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	UnitKey   string `json:"unitKey,omitempty"`
	Kind      string `json:"kind"`
	Level     string `json:"level"`
	Text      string `json:"text"`
}

// Channel is implemented by each delivery mechanism.
type Channel interface {
	Send(ctx context.Context, n Notice) error
}

// Gateway routes notices to registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates an empty notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notify channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Channels returns the registered channel names in order.
func (g *Gateway) Channels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Send dispatches a notice to one channel.
func (g *Gateway) Send(ctx context.Context, channel string, n Notice) error {
	g.mu.RLock()
	ch, ok := g.channels[channel]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown channel: %s", channel)
	}
	return ch.Send(ctx, n)
}

// Broadcast dispatches a notice to every channel and joins the failures.
func (g *Gateway) Broadcast(ctx context.Context, n Notice) error {
	var errs []error
	for _, name := range g.Channels() {
		if err := g.Send(ctx, name, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu   sync.Mutex
	Sent []Notice
	Err  error
}

func (m *MockChannel) Send(_ context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, n)
	return nil
}

// Notices returns a copy of the sent notices.
func (m *MockChannel) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Sent)
}
