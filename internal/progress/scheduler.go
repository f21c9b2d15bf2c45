package progress

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs f once after d. The returned function cancels the call and
// reports whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ManualScheduler is a virtual-clock Scheduler for tests. Timers fire only
// from Advance, on the caller's goroutine.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	pending []*manualTimer
}

type manualTimer struct {
	at   time.Duration
	f    func()
	done bool
}

// NewManualScheduler creates a scheduler whose clock starts at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{at: s.now + d, f: f}
	s.pending = append(s.pending, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.done {
			return false
		}
		t.done = true
		return true
	}
}

// Advance moves the clock forward and fires every timer that became due.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	var rest []*manualTimer
	for _, t := range s.pending {
		switch {
		case t.done:
		case t.at <= s.now:
			t.done = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.done {
			n++
		}
	}
	return n
}
