package progress

import (
	"time"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// EventType names a tracker transition.
type EventType string

const (
	EventItemCompleted  EventType = "item_completed"
	EventCursorMoved    EventType = "cursor_moved"
	EventUnitCompleting EventType = "unit_completing"
	EventUnitCompleted  EventType = "unit_completed"
	EventAnswerSelected EventType = "answer_selected"
	EventExplanation    EventType = "explanation_shown"
	EventQuizScored     EventType = "quiz_scored"
	EventQuizRetake     EventType = "quiz_retake"
)

// Event describes a transition together with the state it produced.
type Event struct {
	Type     EventType `json:"type"`
	ItemID   string    `json:"itemId,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
	At       time.Time `json:"at"`
}

// Observer is called after each transition, outside the tracker lock.
type Observer func(Event)

// Snapshot is the externally visible state of a tracker.
type Snapshot struct {
	Kind     unit.Kind `json:"kind"`
	Key      string    `json:"key"`
	State    State     `json:"state"`
	Cursor   int       `json:"cursor"`
	Progress int       `json:"progress"`
	Unit     unit.Unit `json:"unit"`
	Quiz     *QuizView `json:"quiz,omitempty"`
}

// QuizView carries the quiz-only part of a snapshot. The snapshot's Unit
// holds no questions for a quiz; Questions replaces them.
type QuizView struct {
	Phase           QuizPhase        `json:"phase"`
	Questions       []QuestionView   `json:"questions"`
	Answers         map[int]int      `json:"answers"`
	ShowExplanation bool             `json:"showExplanation"`
	Attempt         int              `json:"attempt"`
	Result          *unit.QuizResult `json:"result,omitempty"`
}

// QuestionView is a quiz question as a learner may see it. Explanation is
// set for the current question once revealed, CorrectAnswer and every
// explanation only after a passing score.
type QuestionView struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	Explanation   string   `json:"explanation,omitempty"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}
