// Package progress implements the completion state machines of the four
// learning-unit variants.
//
// Every mutation updates the in-memory state first and then hands the full
// unit to a Persister, which must not block. Persistence outcomes never
// feed back into the state machine.
package progress

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

const (
	// CompletionDelay is the wait before a finished course, project or
	// concept set fires its completion callback.
	CompletionDelay = 1500 * time.Millisecond
	// QuizCompletionDelay is the wait before a passed quiz fires its
	// completion callback.
	QuizCompletionDelay = 3000 * time.Millisecond
)

// State is the completion state of a unit.
type State int

const (
	StateActive State = iota
	StateCompleting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Persister receives the state to write after each mutation.
type Persister interface {
	SaveUnit(u unit.Unit)
	SaveQuizResult(r unit.QuizResult)
}

// NopPersister drops every write.
type NopPersister struct{}

func (NopPersister) SaveUnit(unit.Unit)             {}
func (NopPersister) SaveQuizResult(unit.QuizResult) {}

// Options configures a tracker. Zero values select the defaults.
type Options struct {
	// Ref supplies the user a quiz result is recorded for.
	Ref        unit.Ref
	OnComplete func()
	Persister  Persister
	Scheduler  Scheduler
	Observer   Observer
	// Delay overrides the variant's completion delay.
	Delay time.Duration
	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults(delay time.Duration) Options {
	if o.Persister == nil {
		o.Persister = NopPersister{}
	}
	if o.Scheduler == nil {
		o.Scheduler = RealScheduler{}
	}
	if o.Delay <= 0 {
		o.Delay = delay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Item is the capability set the generic tracker needs from a sub-item.
type Item[T any] interface {
	ItemID() string
	IsCompleted() bool
	MarkComplete() T
}

// ItemTracker is the shared state machine behind courses, projects and
// concept sets: Active(cursor) -> Completing -> Completed.
type ItemTracker[T Item[T]] struct {
	mu       sync.Mutex
	base     unit.Unit
	items    []T
	assemble func(unit.Unit, []T) unit.Unit
	cursor   int
	state    State
	stop     func() bool
	closed   bool
	out      outbox
	opts     Options
}

func newItemTracker[T Item[T]](u unit.Unit, kind unit.Kind, items []T, assemble func(unit.Unit, []T) unit.Unit, opts Options) (*ItemTracker[T], error) {
	if u.Kind != kind {
		return nil, fmt.Errorf("new %s tracker: got %q unit", kind, u.Kind)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	t := &ItemTracker[T]{
		base:     u,
		items:    slices.Clone(items),
		assemble: assemble,
		opts:     opts.withDefaults(CompletionDelay),
	}
	// A unit stored as finished reopens in its terminal view without
	// firing the callback again.
	if AllCompleted(t.items) {
		t.state = StateCompleted
	} else {
		t.cursor = FirstIncomplete(t.items)
	}
	return t, nil
}

// Kind returns the unit variant.
func (t *ItemTracker[T]) Kind() unit.Kind {
	return t.base.Kind
}

// Key returns the document key the unit persists under.
func (t *ItemTracker[T]) Key() string {
	return t.base.Key()
}

// Current returns the item under the cursor.
func (t *ItemTracker[T]) Current() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[t.cursor]
}

// State returns the completion state.
func (t *ItemTracker[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cursor returns the index of the displayed item.
func (t *ItemTracker[T]) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Items returns a copy of the items.
func (t *ItemTracker[T]) Items() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.items)
}

// Snapshot returns the externally visible state.
func (t *ItemTracker[T]) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Previous moves the cursor back one item. It does nothing at the first item.
func (t *ItemTracker[T]) Previous() error {
	return t.move(func(c int) int { return c - 1 })
}

// Next moves the cursor forward one item. It does nothing at the last item.
func (t *ItemTracker[T]) Next() error {
	return t.move(func(c int) int { return c + 1 })
}

// Goto moves the cursor to index i.
func (t *ItemTracker[T]) Goto(i int) error {
	t.mu.Lock()
	n := len(t.items)
	t.mu.Unlock()
	if i < 0 || i >= n {
		return invalid("goto", "index %d out of range [0,%d)", i, n)
	}
	return t.move(func(int) int { return i })
}

func (t *ItemTracker[T]) move(next func(int) int) error {
	t.mu.Lock()
	if err := t.checkActiveLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	c := min(max(next(t.cursor), 0), len(t.items)-1)
	if c == t.cursor {
		t.mu.Unlock()
		return nil
	}
	t.cursor = c
	t.emitUnlock(nil, t.eventLocked(EventCursorMoved, ""))
	return nil
}

// complete marks the item completed after applying mutate, persists the
// unit and re-evaluates completion. An error from mutate aborts the action.
func (t *ItemTracker[T]) complete(op, id string, mutate func(T) (T, error)) error {
	t.mu.Lock()
	if err := t.checkActiveLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	idx := slices.IndexFunc(t.items, func(it T) bool { return it.ItemID() == id })
	if idx < 0 {
		t.mu.Unlock()
		return invalid(op, "unknown item %q", id)
	}

	item := t.items[idx]
	if mutate != nil {
		var err error
		if item, err = mutate(item); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	t.items[idx] = item.MarkComplete()
	t.opts.Persister.SaveUnit(t.unitLocked())

	done := AllCompleted(t.items)
	if done {
		t.state = StateCompleting
		t.stop = t.opts.Scheduler.AfterFunc(t.opts.Delay, t.finish)
	} else {
		t.cursor = FirstIncomplete(t.items)
	}
	events := []Event{t.eventLocked(EventItemCompleted, id)}
	if done {
		events = append(events, t.eventLocked(EventUnitCompleting, ""))
	}
	t.emitUnlock(nil, events...)
	return nil
}

func (t *ItemTracker[T]) finish() {
	t.mu.Lock()
	if t.closed || t.state != StateCompleting {
		t.mu.Unlock()
		return
	}
	t.state = StateCompleted
	t.stop = nil
	t.emitUnlock(t.opts.OnComplete, t.eventLocked(EventUnitCompleted, ""))
}

// Close tears the tracker down and cancels a pending completion callback.
func (t *ItemTracker[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func (t *ItemTracker[T]) checkActiveLocked() error {
	if t.closed {
		return ErrClosed
	}
	if t.state != StateActive {
		return ErrUnitCompleted
	}
	return nil
}

func (t *ItemTracker[T]) unitLocked() unit.Unit {
	return t.assemble(t.base, slices.Clone(t.items))
}

func (t *ItemTracker[T]) snapshotLocked() Snapshot {
	return Snapshot{
		Kind:     t.base.Kind,
		Key:      t.base.Key(),
		State:    t.state,
		Cursor:   t.cursor,
		Progress: Percent(CompletedCount(t.items), len(t.items)),
		Unit:     t.unitLocked(),
	}
}

func (t *ItemTracker[T]) eventLocked(typ EventType, itemID string) Event {
	return Event{
		Type:     typ,
		ItemID:   itemID,
		Snapshot: t.snapshotLocked(),
		At:       t.opts.Now(),
	}
}

// emitUnlock releases t.mu and delivers events, then after, in order.
func (t *ItemTracker[T]) emitUnlock(after func(), events ...Event) {
	t.out.release(&t.mu, t.opts.Observer, after, events...)
}
