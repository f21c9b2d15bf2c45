package store

import (
	"context"
	"sync"
	"time"
)

// DefaultWriteTimeout bounds a single background write.
const DefaultWriteTimeout = 10 * time.Second

// WriteFunc performs one write. It receives a context carrying the write
// timeout.
type WriteFunc func(ctx context.Context) error

// Writer runs writes in the background with at most one write in flight
// per key. Writes submitted for a busy key replace each other, so only the
// latest pending one runs once the current write returns.
type Writer struct {
	timeout time.Duration
	onError func(key string, err error)

	mu    sync.Mutex
	slots map[string]*slot
	wg    sync.WaitGroup
}

type slot struct {
	next WriteFunc
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	Timeout time.Duration
	// OnError is called from the writing goroutine for each failed write.
	OnError func(key string, err error)
}

// NewWriter creates a Writer.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWriteTimeout
	}
	return &Writer{
		timeout: opts.Timeout,
		onError: opts.OnError,
		slots:   make(map[string]*slot),
	}
}

// Submit schedules fn for key and returns immediately.
func (w *Writer) Submit(key string, fn WriteFunc) {
	w.mu.Lock()
	if s, ok := w.slots[key]; ok {
		s.next = fn
		w.mu.Unlock()
		return
	}
	w.slots[key] = &slot{}
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(key, fn)
}

func (w *Writer) run(key string, fn WriteFunc) {
	defer w.wg.Done()
	for fn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := fn(ctx)
		cancel()
		if err != nil && w.onError != nil {
			w.onError(key, err)
		}

		w.mu.Lock()
		s := w.slots[key]
		fn, s.next = s.next, nil
		if fn == nil {
			delete(w.slots, key)
		}
		w.mu.Unlock()
	}
}

// Pending returns the number of keys with a write in flight.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.slots)
}

// Flush waits until every submitted write has finished or ctx is done.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
