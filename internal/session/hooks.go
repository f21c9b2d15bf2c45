package session

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/p-n-ai/pai-tracker/internal/events"
	"github.com/p-n-ai/pai-tracker/internal/notify"
	"github.com/p-n-ai/pai-tracker/internal/progress"
	"github.com/p-n-ai/pai-tracker/internal/realtime"
	"github.com/p-n-ai/pai-tracker/internal/store"
)

// Text of the non-blocking notice shown when a background write fails.
const persistFailedText = "Your progress could not be saved. Keep going; we will retry with your next step."

func (m *Manager) observe(s *Session, ev progress.Event) {
	if met := m.opts.Metrics; met != nil {
		switch ev.Type {
		case progress.EventItemCompleted:
			met.ItemsCompleted.WithLabelValues(string(s.Kind)).Inc()
		case progress.EventQuizScored:
			passed := ev.Snapshot.Quiz != nil && ev.Snapshot.Quiz.Result != nil && ev.Snapshot.Quiz.Result.Passed
			met.QuizzesScored.WithLabelValues(strconv.FormatBool(passed)).Inc()
		case progress.EventUnitCompleted:
			met.UnitsCompleted.WithLabelValues(string(s.Kind)).Inc()
		}
	}

	data := map[string]any{
		"state":    ev.Snapshot.State,
		"cursor":   ev.Snapshot.Cursor,
		"progress": ev.Snapshot.Progress,
	}
	if ev.ItemID != "" {
		data["item_id"] = ev.ItemID
	}
	if q := ev.Snapshot.Quiz; q != nil && q.Result != nil && ev.Type == progress.EventQuizScored {
		data["score"] = q.Result.Score
		data["passed"] = q.Result.Passed
		data["attempt"] = q.Attempt
	}
	m.record(s, string(ev.Type), data)

	if m.opts.Bus != nil {
		msg, err := realtime.NewMessage(s.ID, string(ev.Type), ev)
		if err != nil {
			slog.Error("encode realtime event failed", "session_id", s.ID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := m.opts.Bus.Publish(ctx, msg); err != nil {
			slog.Warn("realtime publish failed", "session_id", s.ID, "event", ev.Type, "error", err)
		}
	}
}

func (m *Manager) completed(s *Session) {
	slog.Info("unit completed",
		"session_id", s.ID,
		"kind", s.Kind,
		"key", s.tracker.Key(),
		"user_id", s.Ref.UserID,
	)
	m.notify(notify.Notice{
		SessionID: s.ID,
		UserID:    s.Ref.UserID,
		UnitKey:   s.tracker.Key(),
		Kind:      notify.KindCompletion,
		Level:     notify.LevelInfo,
		Text:      "Completed " + s.tracker.Snapshot().Unit.Title,
	})
}

// PersistFailed reports a failed background write to the sessions whose
// state it carried. It is meant as the store.Writer error hook.
func (m *Manager) PersistFailed(key string, err error) {
	slog.Error("progress write failed", "key", key, "error", err)
	if m.opts.Metrics != nil {
		m.opts.Metrics.PersistFailures.Inc()
	}

	for _, s := range m.sessionsForWrite(key) {
		m.record(s, "persist_failed", map[string]any{"error": err.Error()})
		m.notify(notify.Notice{
			SessionID: s.ID,
			UserID:    s.Ref.UserID,
			UnitKey:   s.tracker.Key(),
			Kind:      notify.KindToast,
			Level:     notify.LevelError,
			Text:      persistFailedText,
		})
	}
}

func (m *Manager) sessionsForWrite(key string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.tracker.Key() == key {
			out = append(out, s)
			continue
		}
		if q, ok := s.tracker.(*progress.QuizTracker); ok {
			if r, ok := q.Result(); ok && store.ResultWriteKey(r) == key {
				out = append(out, s)
			}
		}
	}
	return out
}

// record writes an analytics event in the background.
func (m *Manager) record(s *Session, eventType string, data map[string]any) {
	ev := events.Event{
		SessionID: s.ID,
		UnitKey:   s.Ref.DocumentKey(s.Kind),
		UserID:    s.Ref.UserID,
		EventType: eventType,
		Data:      data,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := m.opts.Events.LogEvent(ctx, ev); err != nil {
			slog.Warn("event log failed", "type", eventType, "session_id", s.ID, "error", err)
		}
	}()
}

func (m *Manager) notify(n notify.Notice) {
	if m.opts.Notifier == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := m.opts.Notifier.Broadcast(ctx, n); err != nil {
			slog.Warn("notice delivery failed", "kind", n.Kind, "session_id", n.SessionID, "error", err)
		}
	}()
}
