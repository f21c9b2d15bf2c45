package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-tracker/internal/store"
	"github.com/p-n-ai/pai-tracker/internal/unit"
)

func TestWriter_CoalescesToLatest(t *testing.T) {
	w := store.NewWriter(store.WriterOptions{})

	var mu sync.Mutex
	var ran []int
	release := make(chan struct{})
	started := make(chan struct{})

	write := func(n int) store.WriteFunc {
		return func(context.Context) error {
			if n == 1 {
				close(started)
				<-release
			}
			mu.Lock()
			ran = append(ran, n)
			mu.Unlock()
			return nil
		}
	}

	w.Submit("k", write(1))
	<-started
	w.Submit("k", write(2))
	w.Submit("k", write(3))
	close(release)

	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 3 {
		t.Errorf("ran = %v, want [1 3]", ran)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", w.Pending())
	}
}

func TestWriter_KeysAreIndependent(t *testing.T) {
	w := store.NewWriter(store.WriterOptions{})
	release := make(chan struct{})
	done := make(chan struct{})

	w.Submit("slow", func(context.Context) error {
		<-release
		return nil
	})
	w.Submit("fast", func(context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write on another key blocked behind a slow key")
	}
	close(release)
	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestWriter_ReportsErrorsAndTimeout(t *testing.T) {
	var mu sync.Mutex
	var got []error
	w := store.NewWriter(store.WriterOptions{
		Timeout: 20 * time.Millisecond,
		OnError: func(key string, err error) {
			mu.Lock()
			got = append(got, err)
			mu.Unlock()
		},
	})

	w.Submit("k", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], context.DeadlineExceeded) {
		t.Errorf("reported errors = %v, want one DeadlineExceeded", got)
	}
}

func TestWriter_FlushHonoursContext(t *testing.T) {
	w := store.NewWriter(store.WriterOptions{Timeout: time.Minute})
	release := make(chan struct{})
	defer close(release)
	w.Submit("k", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() error = %v, want DeadlineExceeded", err)
	}
}

func TestAsync_WritesThroughGateway(t *testing.T) {
	ctx := t.Context()
	mem := store.NewMemoryStore()
	w := store.NewWriter(store.WriterOptions{})
	async := store.NewAsync(mem, w)

	u := course(true, false)
	async.SaveUnit(u)
	async.SaveQuizResult(unit.QuizResult{ID: "r1", RoadmapID: "rm", Score: 90})
	async.SaveQuizResult(unit.QuizResult{ID: "r2", RoadmapID: "rm", Score: 40})

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := mem.LoadUnit(ctx, u.Key())
	if err != nil {
		t.Fatalf("LoadUnit() error = %v", err)
	}
	if !got.Modules[0].Completed {
		t.Error("unit write not applied")
	}
	results, _ := mem.ListQuizResults(ctx, "rm")
	if len(results) != 2 {
		t.Errorf("results = %d, want 2 (results must not coalesce)", len(results))
	}
}
