package progress

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// QuizPhase is the phase of a quiz attempt.
type QuizPhase int

const (
	PhaseInProgress QuizPhase = iota
	PhaseScored
)

func (p QuizPhase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseScored:
		return "scored"
	default:
		return "unknown"
	}
}

func (p QuizPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// QuizTracker runs a quiz one question at a time: InProgress(current,
// answers) -> Scored(score, passed). Only a passing score schedules the
// completion callback.
type QuizTracker struct {
	mu              sync.Mutex
	quiz            unit.Unit
	ref             unit.Ref
	current         int
	answers         map[int]int
	showExplanation bool
	phase           QuizPhase
	state           State
	result          *unit.QuizResult
	attempt         int
	stop            func() bool
	closed          bool
	out             outbox
	opts            Options
}

// NewQuiz creates a tracker for a quiz unit. opts.Ref must name the user
// the result is recorded for.
func NewQuiz(u unit.Unit, opts Options) (*QuizTracker, error) {
	if u.Kind != unit.KindQuiz {
		return nil, fmt.Errorf("new quiz tracker: got %q unit", u.Kind)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if opts.Ref.UserID == "" {
		return nil, fmt.Errorf("new quiz tracker: user id is required")
	}

	ref := u.Ref()
	ref.UserID = opts.Ref.UserID
	return &QuizTracker{
		quiz:    u,
		ref:     ref,
		answers: make(map[int]int),
		attempt: 1,
		opts:    opts.withDefaults(QuizCompletionDelay),
	}, nil
}

// Kind returns unit.KindQuiz.
func (q *QuizTracker) Kind() unit.Kind {
	return unit.KindQuiz
}

// Key returns the question bank document key.
func (q *QuizTracker) Key() string {
	return q.quiz.Key()
}

// ResultKey returns the key the result record is written under.
func (q *QuizTracker) ResultKey() string {
	return q.ref.ResultKey()
}

// Phase returns the attempt phase.
func (q *QuizTracker) Phase() QuizPhase {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.phase
}

// State returns the completion state.
func (q *QuizTracker) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Current returns the index of the displayed question.
func (q *QuizTracker) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Result returns the scored result, if any.
func (q *QuizTracker) Result() (unit.QuizResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.result == nil {
		return unit.QuizResult{}, false
	}
	return *q.result, true
}

// Snapshot returns the externally visible state.
func (q *QuizTracker) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// SelectAnswer records option as the answer to question, replacing an
// earlier answer. It hides the explanation panel.
func (q *QuizTracker) SelectAnswer(question, option int) error {
	q.mu.Lock()
	if err := q.checkInProgressLocked(); err != nil {
		q.mu.Unlock()
		return err
	}
	if question < 0 || question >= len(q.quiz.Questions) {
		q.mu.Unlock()
		return invalid("select answer", "question %d out of range", question)
	}
	if option < 0 || option >= len(q.quiz.Questions[question].Options) {
		q.mu.Unlock()
		return invalid("select answer", "option %d out of range for question %d", option, question)
	}
	q.answers[question] = option
	q.showExplanation = false
	q.emitUnlock(nil, q.eventLocked(EventAnswerSelected))
	return nil
}

// RevealExplanation shows the explanation of the current question once it
// has been answered.
func (q *QuizTracker) RevealExplanation() error {
	q.mu.Lock()
	if err := q.checkInProgressLocked(); err != nil {
		q.mu.Unlock()
		return err
	}
	if _, ok := q.answers[q.current]; !ok {
		q.mu.Unlock()
		return invalid("reveal explanation", "question %d has no answer", q.current)
	}
	q.showExplanation = true
	q.emitUnlock(nil, q.eventLocked(EventExplanation))
	return nil
}

// Advance moves to the next question, or scores the attempt on the last
// one. The current question must be answered.
func (q *QuizTracker) Advance() error {
	q.mu.Lock()
	if err := q.checkInProgressLocked(); err != nil {
		q.mu.Unlock()
		return err
	}
	if _, ok := q.answers[q.current]; !ok {
		q.mu.Unlock()
		return invalid("advance", "question %d has no answer", q.current)
	}

	var events []Event
	if q.current < len(q.quiz.Questions)-1 {
		q.current++
		q.showExplanation = false
		events = append(events, q.eventLocked(EventCursorMoved))
	} else {
		events = q.scoreLocked()
	}
	q.emitUnlock(nil, events...)
	return nil
}

// Previous moves back one question, keeping all answers.
func (q *QuizTracker) Previous() error {
	q.mu.Lock()
	if err := q.checkInProgressLocked(); err != nil {
		q.mu.Unlock()
		return err
	}
	if q.current == 0 {
		q.mu.Unlock()
		return nil
	}
	q.current--
	q.showExplanation = false
	q.emitUnlock(nil, q.eventLocked(EventCursorMoved))
	return nil
}

// Retake starts a new attempt after a failed one.
func (q *QuizTracker) Retake() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.phase != PhaseScored || q.result == nil || q.result.Passed {
		q.mu.Unlock()
		return ErrWrongPhase
	}
	q.phase = PhaseInProgress
	q.current = 0
	q.answers = make(map[int]int)
	q.showExplanation = false
	q.result = nil
	q.attempt++
	q.emitUnlock(nil, q.eventLocked(EventQuizRetake))
	return nil
}

// Close tears the tracker down and cancels a pending completion callback.
func (q *QuizTracker) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.stop != nil {
		q.stop()
		q.stop = nil
	}
}

func (q *QuizTracker) scoreLocked() []Event {
	// Empty quizzes are rejected at construction, so Score cannot fail here.
	raw, _ := Score(q.quiz.Questions, q.answers)
	passed := raw >= float64(q.quiz.PassMark())

	result := unit.QuizResult{
		ID:          q.opts.NewID(),
		Key:         q.ref.ResultKey(),
		RoadmapID:   q.ref.RoadmapID,
		NodeID:      q.ref.NodeID,
		UserID:      q.ref.UserID,
		Score:       int(math.Round(raw)),
		RawScore:    raw,
		Answers:     maps.Clone(q.answers),
		Passed:      passed,
		CompletedAt: q.opts.Now(),
	}
	q.result = &result
	q.phase = PhaseScored
	q.showExplanation = false
	q.opts.Persister.SaveQuizResult(result)

	if passed {
		q.state = StateCompleting
		q.stop = q.opts.Scheduler.AfterFunc(q.opts.Delay, q.finish)
	}
	events := []Event{q.eventLocked(EventQuizScored)}
	if passed {
		events = append(events, q.eventLocked(EventUnitCompleting))
	}
	return events
}

func (q *QuizTracker) finish() {
	q.mu.Lock()
	if q.closed || q.state != StateCompleting {
		q.mu.Unlock()
		return
	}
	q.state = StateCompleted
	q.stop = nil
	q.emitUnlock(q.opts.OnComplete, q.eventLocked(EventUnitCompleted))
}

func (q *QuizTracker) checkInProgressLocked() error {
	if q.closed {
		return ErrClosed
	}
	if q.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	return nil
}

func (q *QuizTracker) snapshotLocked() Snapshot {
	view := &QuizView{
		Phase:           q.phase,
		Questions:       q.questionsLocked(),
		Answers:         maps.Clone(q.answers),
		ShowExplanation: q.showExplanation,
		Attempt:         q.attempt,
	}
	if q.result != nil {
		r := *q.result
		view.Result = &r
	}
	u := q.quiz
	u.Questions = nil
	return Snapshot{
		Kind:     unit.KindQuiz,
		Key:      q.quiz.Key(),
		State:    q.state,
		Cursor:   q.current,
		Progress: Percent(len(q.answers), len(q.quiz.Questions)),
		Unit:     u,
		Quiz:     view,
	}
}

func (q *QuizTracker) questionsLocked() []QuestionView {
	passed := q.result != nil && q.result.Passed
	views := make([]QuestionView, len(q.quiz.Questions))
	for i, qu := range q.quiz.Questions {
		views[i] = QuestionView{ID: qu.ID, Question: qu.Question, Options: slices.Clone(qu.Options)}
		if passed || (i == q.current && q.showExplanation) {
			views[i].Explanation = qu.Explanation
		}
		if passed {
			views[i].CorrectAnswer = &qu.CorrectAnswer
		}
	}
	return views
}

func (q *QuizTracker) eventLocked(typ EventType) Event {
	return Event{
		Type:     typ,
		Snapshot: q.snapshotLocked(),
		At:       q.opts.Now(),
	}
}

// emitUnlock releases q.mu and delivers events, then after, in order.
func (q *QuizTracker) emitUnlock(after func(), events ...Event) {
	q.out.release(&q.mu, q.opts.Observer, after, events...)
}
