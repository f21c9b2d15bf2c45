package progress

import "sync"

// outbox delivers observer events in the order they were produced without
// running observers under the tracker lock. The first goroutine to release
// events drains the queue; concurrent callers only append to it.
type outbox struct {
	pending  []func()
	draining bool
}

// release appends events, and after if non-nil, to the queue, unlocks mu and
// drains the queue unless another goroutine already is. mu must be held.
func (o *outbox) release(mu *sync.Mutex, observer Observer, after func(), events ...Event) {
	if observer != nil {
		for _, ev := range events {
			o.pending = append(o.pending, func() { observer(ev) })
		}
	}
	if after != nil {
		o.pending = append(o.pending, after)
	}
	if o.draining || len(o.pending) == 0 {
		mu.Unlock()
		return
	}

	o.draining = true
	for len(o.pending) > 0 {
		batch := o.pending
		o.pending = nil
		mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		mu.Lock()
	}
	o.draining = false
	mu.Unlock()
}
