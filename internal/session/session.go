// Package session opens and drives tracker instances on behalf of clients.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-tracker/internal/events"
	"github.com/p-n-ai/pai-tracker/internal/notify"
	"github.com/p-n-ai/pai-tracker/internal/platform/metrics"
	"github.com/p-n-ai/pai-tracker/internal/progress"
	"github.com/p-n-ai/pai-tracker/internal/realtime"
	"github.com/p-n-ai/pai-tracker/internal/store"
	"github.com/p-n-ai/pai-tracker/internal/unit"
)

var (
	// ErrSessionNotFound is returned for an unknown or closed session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnitNotFound is returned when neither the store nor the catalog
	// has the requested unit.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrWrongKind is returned for an action the session's unit kind does
	// not support.
	ErrWrongKind = errors.New("action not supported for unit kind")
)

const eventTimeout = 5 * time.Second

// Tracker is the part every progress tracker shares.
type Tracker interface {
	Kind() unit.Kind
	Key() string
	Snapshot() progress.Snapshot
	Close()
}

// Catalog supplies authored units when the store has none.
type Catalog interface {
	Lookup(kind unit.Kind, ref unit.Ref) (unit.Unit, bool)
}

// Options wires a Manager. Gateway and Persister are required; the rest
// may be nil.
type Options struct {
	Gateway   store.Gateway
	Persister progress.Persister
	Catalog   Catalog
	Events    events.Logger
	Metrics   *metrics.Metrics
	Bus       realtime.Bus
	Notifier  *notify.Gateway
	Scheduler progress.Scheduler

	CompletionDelay     time.Duration
	QuizCompletionDelay time.Duration
	DefaultPassingScore int

	// OnClosed runs after a session has been torn down.
	OnClosed func(sessionID string)
}

// Session is one open tracker.
type Session struct {
	ID       string
	Ref      unit.Ref
	Kind     unit.Kind
	OpenedAt time.Time

	tracker Tracker
}

// View is the client representation of a session.
type View struct {
	ID       string            `json:"id"`
	Kind     unit.Kind         `json:"kind"`
	Ref      unit.Ref          `json:"ref"`
	OpenedAt time.Time         `json:"openedAt"`
	Snapshot progress.Snapshot `json:"snapshot"`
}

func (s *Session) view() View {
	return View{ID: s.ID, Kind: s.Kind, Ref: s.Ref, OpenedAt: s.OpenedAt, Snapshot: s.tracker.Snapshot()}
}

// Manager owns the open sessions.
type Manager struct {
	opts     Options
	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewManager creates a session manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("session manager: gateway is required")
	}
	if opts.Persister == nil {
		return nil, fmt.Errorf("session manager: persister is required")
	}
	if opts.Events == nil {
		opts.Events = events.NopLogger{}
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
	}, nil
}

// Open loads the unit at ref and starts a tracker for it.
func (m *Manager) Open(ctx context.Context, kind unit.Kind, ref unit.Ref) (View, error) {
	if kind == unit.KindQuiz && ref.UserID == "" {
		return View{}, &progress.ValidationError{Op: "open session", Reason: "userId is required for quizzes"}
	}

	u, err := m.load(ctx, kind, ref)
	if err != nil {
		return View{}, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		Ref:      ref,
		Kind:     kind,
		OpenedAt: time.Now(),
	}
	opts := progress.Options{
		Ref:        ref,
		OnComplete: func() { m.completed(s) },
		Persister:  m.opts.Persister,
		Scheduler:  m.opts.Scheduler,
		Observer:   func(ev progress.Event) { m.observe(s, ev) },
	}

	switch kind {
	case unit.KindCourse:
		opts.Delay = m.opts.CompletionDelay
		s.tracker, err = progress.NewCourse(u, opts)
	case unit.KindProject:
		opts.Delay = m.opts.CompletionDelay
		s.tracker, err = progress.NewProject(u, opts)
	case unit.KindConcept:
		opts.Delay = m.opts.CompletionDelay
		s.tracker, err = progress.NewConcept(u, opts)
	case unit.KindQuiz:
		if u.PassingScore == nil {
			u.PassingScore = unit.Score(m.opts.DefaultPassingScore)
		}
		opts.Delay = m.opts.QuizCompletionDelay
		s.tracker, err = progress.NewQuiz(u, opts)
	default:
		err = fmt.Errorf("open session: %w: %q", ErrWrongKind, kind)
	}
	if err != nil {
		return View{}, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.SessionsOpen.Inc()
	}
	m.record(s, "session_opened", nil)
	slog.Info("session opened",
		"session_id", s.ID,
		"kind", kind,
		"key", s.tracker.Key(),
		"user_id", ref.UserID,
	)
	return s.view(), nil
}

func (m *Manager) load(ctx context.Context, kind unit.Kind, ref unit.Ref) (unit.Unit, error) {
	key := ref.DocumentKey(kind)
	u, err := m.opts.Gateway.LoadUnit(ctx, key)
	switch {
	case err == nil:
		if err := unit.ValidateSchema(u); err != nil {
			return unit.Unit{}, fmt.Errorf("stored unit %s: %w", key, err)
		}
		return u, nil
	case !errors.Is(err, store.ErrNotFound):
		return unit.Unit{}, fmt.Errorf("load unit %s: %w", key, err)
	}

	if m.opts.Catalog != nil {
		if u, ok := m.opts.Catalog.Lookup(kind, ref); ok {
			return u, nil
		}
	}
	return unit.Unit{}, fmt.Errorf("%w: %s", ErrUnitNotFound, key)
}

// Get returns the current view of a session.
func (m *Manager) Get(id string) (View, error) {
	s, err := m.get(id)
	if err != nil {
		return View{}, err
	}
	return s.view(), nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close tears a session down, cancelling a pending completion callback.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrSessionNotFound)
	}

	s.tracker.Close()
	if m.opts.Metrics != nil {
		m.opts.Metrics.SessionsOpen.Dec()
	}
	m.record(s, "session_closed", nil)
	if m.opts.OnClosed != nil {
		m.opts.OnClosed(id)
	}
	slog.Info("session closed", "session_id", id)
	return nil
}

// Shutdown closes every session and waits for background event writes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}
