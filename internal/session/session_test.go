package session_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/p-n-ai/pai-tracker/internal/events"
	"github.com/p-n-ai/pai-tracker/internal/notify"
	"github.com/p-n-ai/pai-tracker/internal/platform/metrics"
	"github.com/p-n-ai/pai-tracker/internal/progress"
	"github.com/p-n-ai/pai-tracker/internal/session"
	"github.com/p-n-ai/pai-tracker/internal/store"
	"github.com/p-n-ai/pai-tracker/internal/unit"
)

type fakeCatalog map[string]unit.Unit

func (c fakeCatalog) Lookup(kind unit.Kind, ref unit.Ref) (unit.Unit, bool) {
	u, ok := c[ref.DocumentKey(kind)]
	return u, ok
}

type harness struct {
	mgr     *session.Manager
	mem     *store.MemoryStore
	writer  *store.Writer
	sched   *progress.ManualScheduler
	events  *events.MemoryLogger
	metrics *metrics.Metrics
	notices *notify.MockChannel
	closed  []string
}

func newHarness(t *testing.T, catalog fakeCatalog) *harness {
	t.Helper()
	h := &harness{
		mem:     store.NewMemoryStore(),
		sched:   progress.NewManualScheduler(),
		events:  events.NewMemoryLogger(),
		metrics: metrics.New(),
		notices: &notify.MockChannel{},
	}
	h.writer = store.NewWriter(store.WriterOptions{})
	notifier := notify.NewGateway()
	notifier.Register("mock", h.notices)

	mgr, err := session.NewManager(session.Options{
		Gateway:             h.mem,
		Persister:           store.NewAsync(h.mem, h.writer),
		Catalog:             catalog,
		Events:              h.events,
		Metrics:             h.metrics,
		Notifier:            notifier,
		Scheduler:           h.sched,
		DefaultPassingScore: 50,
		OnClosed:            func(id string) { h.closed = append(h.closed, id) },
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h.mgr = mgr
	return h
}

// settle waits for background writes, events and notices.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	if err := h.writer.Flush(t.Context()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := h.mgr.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func goCourse() unit.Unit {
	return unit.Unit{Kind: unit.KindCourse, RoadmapID: "go", NodeID: "vars", Title: "Variables",
		Modules: []unit.Module{{ID: "m1", Title: "Declare"}, {ID: "m2", Title: "Assign"}}}
}

func goQuiz() unit.Unit {
	return unit.Unit{Kind: unit.KindQuiz, RoadmapID: "go", NodeID: "vars", Title: "Variables quiz",
		Questions: []unit.Question{
			{ID: "q1", Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 0},
			{ID: "q2", Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 1},
		}}
}

func catalogOf(units ...unit.Unit) fakeCatalog {
	c := fakeCatalog{}
	for _, u := range units {
		c[u.Key()] = u
	}
	return c
}

func TestManager_CourseFromCatalogToCompletion(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	ref := unit.Ref{RoadmapID: "go", NodeID: "vars", UserID: "u1"}

	view, err := h.mgr.Open(t.Context(), unit.KindCourse, ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if view.ID == "" || view.Snapshot.Key != "go_vars_course" {
		t.Fatalf("view = %+v", view)
	}

	if _, err := h.mgr.CompleteItem(view.ID, "m1"); err != nil {
		t.Fatalf("CompleteItem(m1) error = %v", err)
	}
	got, err := h.mgr.CompleteItem(view.ID, "m2")
	if err != nil {
		t.Fatalf("CompleteItem(m2) error = %v", err)
	}
	if got.Snapshot.State != progress.StateCompleting {
		t.Errorf("state = %v, want completing", got.Snapshot.State)
	}

	h.sched.Advance(progress.CompletionDelay)
	if v, _ := h.mgr.Get(view.ID); v.Snapshot.State != progress.StateCompleted {
		t.Errorf("state = %v, want completed", v.Snapshot.State)
	}
	if err := h.writer.Flush(t.Context()); err != nil {
		t.Fatal(err)
	}

	stored, err := h.mem.LoadUnit(t.Context(), "go_vars_course")
	if err != nil {
		t.Fatalf("LoadUnit() error = %v", err)
	}
	if !stored.Modules[0].Completed || !stored.Modules[1].Completed {
		t.Errorf("stored modules = %+v", stored.Modules)
	}

	h.settle(t)
	if got := testutil.ToFloat64(h.metrics.ItemsCompleted.WithLabelValues("course")); got != 2 {
		t.Errorf("items completed metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(h.metrics.UnitsCompleted.WithLabelValues("course")); got != 1 {
		t.Errorf("units completed metric = %v, want 1", got)
	}

	notices := h.notices.Notices()
	if len(notices) != 1 || notices[0].Kind != notify.KindCompletion || notices[0].Text != "Completed Variables" {
		t.Errorf("notices = %+v", notices)
	}

	types := map[string]int{}
	for _, ev := range h.events.Events() {
		types[ev.EventType]++
	}
	if types["session_opened"] != 1 || types["item_completed"] != 2 || types["unit_completed"] != 1 {
		t.Errorf("event counts = %v", types)
	}
}

func TestManager_PrefersStoredDocument(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	stored := goCourse()
	stored.Modules[0].Completed = true
	if err := h.mem.SaveUnit(t.Context(), stored.Key(), stored); err != nil {
		t.Fatal(err)
	}

	view, err := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if view.Snapshot.Cursor != 1 || view.Snapshot.Progress != 50 {
		t.Errorf("snapshot cursor %d progress %d, want 1 and 50", view.Snapshot.Cursor, view.Snapshot.Progress)
	}
	h.settle(t)
}

func TestManager_UnitNotFound(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.mgr.Open(t.Context(), unit.KindConcept, unit.Ref{RoadmapID: "go", NodeID: "nope"})
	if !errors.Is(err, session.ErrUnitNotFound) {
		t.Fatalf("Open() error = %v, want ErrUnitNotFound", err)
	}
}

func TestManager_QuizDefaultsAndUser(t *testing.T) {
	h := newHarness(t, catalogOf(goQuiz()))
	ref := unit.Ref{RoadmapID: "go", NodeID: "vars"}

	_, err := h.mgr.Open(t.Context(), unit.KindQuiz, ref)
	if !progress.IsValidation(err) {
		t.Fatalf("Open() without user error = %v, want ValidationError", err)
	}

	ref.UserID = "u1"
	view, err := h.mgr.Open(t.Context(), unit.KindQuiz, ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if view.Snapshot.Unit.PassMark() != 50 {
		t.Errorf("PassingScore = %d, want default 50", view.Snapshot.Unit.PassMark())
	}

	if _, err := h.mgr.Navigate(view.ID, session.DirNext, 0); !progress.IsValidation(err) {
		t.Errorf("Navigate(next) without answer error = %v, want ValidationError", err)
	}
	if _, err := h.mgr.SelectAnswer(view.ID, 0, 0); err != nil {
		t.Fatalf("SelectAnswer() error = %v", err)
	}
	if _, err := h.mgr.RevealExplanation(view.ID); err != nil {
		t.Fatalf("RevealExplanation() error = %v", err)
	}
	if _, err := h.mgr.Advance(view.ID); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	_, _ = h.mgr.SelectAnswer(view.ID, 1, 0)
	got, err := h.mgr.Advance(view.ID)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	res := got.Snapshot.Quiz.Result
	if res == nil || res.Score != 50 || !res.Passed {
		t.Fatalf("result = %+v, want 50 passed", res)
	}

	h.sched.Advance(progress.QuizCompletionDelay)
	h.settle(t)

	results, _ := h.mem.ListQuizResults(t.Context(), "go")
	if len(results) != 1 || results[0].UserID != "u1" || results[0].Key != "go_vars_u1" {
		t.Errorf("stored results = %+v", results)
	}
	if got := testutil.ToFloat64(h.metrics.QuizzesScored.WithLabelValues("true")); got != 1 {
		t.Errorf("quizzes scored metric = %v, want 1", got)
	}
}

func TestManager_QuizKeepsExplicitZeroPassingScore(t *testing.T) {
	quiz := goQuiz()
	quiz.PassingScore = unit.Score(0)
	h := newHarness(t, catalogOf(quiz))

	view, err := h.mgr.Open(t.Context(), unit.KindQuiz, unit.Ref{RoadmapID: "go", NodeID: "vars", UserID: "u1"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if p := view.Snapshot.Unit.PassingScore; p == nil || *p != 0 {
		t.Fatalf("PassingScore = %v, want explicit 0", p)
	}

	_, _ = h.mgr.SelectAnswer(view.ID, 0, 1)
	_, _ = h.mgr.Advance(view.ID)
	_, _ = h.mgr.SelectAnswer(view.ID, 1, 0)
	got, err := h.mgr.Advance(view.ID)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	res := got.Snapshot.Quiz.Result
	if res == nil || res.Score != 0 || !res.Passed {
		t.Fatalf("result = %+v, want 0 passed", res)
	}
	h.sched.Advance(progress.QuizCompletionDelay)
	h.settle(t)
}

func TestManager_WrongKind(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	view, _ := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars"})

	checks := []struct {
		name string
		call func() error
	}{
		{"submit", func() error { _, err := h.mgr.Submit(view.ID, "m1", "text"); return err }},
		{"answer", func() error { _, err := h.mgr.SelectAnswer(view.ID, 0, 0); return err }},
		{"retake", func() error { _, err := h.mgr.Retake(view.ID); return err }},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, session.ErrWrongKind) {
				t.Errorf("error = %v, want ErrWrongKind", err)
			}
		})
	}
	h.settle(t)
}

func TestManager_NavigateCourse(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	view, _ := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars"})

	got, err := h.mgr.Navigate(view.ID, session.DirGoto, 1)
	if err != nil {
		t.Fatalf("Navigate(goto 1) error = %v", err)
	}
	if got.Snapshot.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", got.Snapshot.Cursor)
	}
	got, _ = h.mgr.Navigate(view.ID, session.DirPrevious, 0)
	if got.Snapshot.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", got.Snapshot.Cursor)
	}
	if _, err := h.mgr.Navigate(view.ID, session.DirGoto, 9); !progress.IsValidation(err) {
		t.Errorf("Navigate(goto 9) error = %v, want ValidationError", err)
	}
	h.settle(t)
}

func TestManager_CloseCancelsCompletion(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	view, _ := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars"})
	_, _ = h.mgr.CompleteItem(view.ID, "m1")
	_, _ = h.mgr.CompleteItem(view.ID, "m2")

	if err := h.mgr.Close(view.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	h.sched.Advance(progress.CompletionDelay)
	h.settle(t)

	if len(h.notices.Notices()) != 0 {
		t.Error("completion notice sent after Close")
	}
	if _, err := h.mgr.Get(view.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() after Close error = %v, want ErrSessionNotFound", err)
	}
	if err := h.mgr.Close(view.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("second Close() error = %v, want ErrSessionNotFound", err)
	}
	if len(h.closed) != 1 || h.closed[0] != view.ID {
		t.Errorf("OnClosed calls = %v", h.closed)
	}
	if got := testutil.ToFloat64(h.metrics.SessionsOpen); got != 0 {
		t.Errorf("sessions open = %v, want 0", got)
	}
}

func TestManager_PersistFailedNotifiesSession(t *testing.T) {
	h := newHarness(t, catalogOf(goCourse()))
	view, _ := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars", UserID: "u1"})
	other, _ := h.mgr.Open(t.Context(), unit.KindCourse, unit.Ref{RoadmapID: "go", NodeID: "vars", UserID: "u2"})

	h.mgr.PersistFailed("go_vars_course", errors.New("connection refused"))
	h.mgr.PersistFailed("unrelated_key", errors.New("boom"))

	// Local state is untouched by the failure.
	got, err := h.mgr.CompleteItem(view.ID, "m1")
	if err != nil {
		t.Fatalf("CompleteItem() error = %v", err)
	}
	if got.Snapshot.Progress != 50 {
		t.Errorf("progress = %d, want 50", got.Snapshot.Progress)
	}

	h.settle(t)
	toasts := map[string]bool{}
	for _, n := range h.notices.Notices() {
		if n.Kind == notify.KindToast && n.Level == notify.LevelError {
			toasts[n.SessionID] = true
		}
	}
	if !toasts[view.ID] || !toasts[other.ID] || len(toasts) != 2 {
		t.Errorf("toasts = %v, want both sessions on the failed key", toasts)
	}
	if got := testutil.ToFloat64(h.metrics.PersistFailures); got != 2 {
		t.Errorf("persist failures = %v, want 2", got)
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    session.Direction
		wantErr bool
	}{
		{"next", session.DirNext, false},
		{" Previous ", session.DirPrevious, false},
		{"GOTO", session.DirGoto, false},
		{"sideways", "", true},
	}
	for _, tt := range tests {
		got, err := session.ParseDirection(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, %v", tt.in, got, err)
		}
	}
}
