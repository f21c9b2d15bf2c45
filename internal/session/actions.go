package session

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-tracker/internal/progress"
	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// Direction selects a navigation move.
type Direction string

const (
	DirPrevious Direction = "previous"
	DirNext     Direction = "next"
	DirGoto     Direction = "goto"
)

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirPrevious, DirNext, DirGoto:
		return d, nil
	default:
		return "", &progress.ValidationError{Op: "navigate", Reason: fmt.Sprintf("unknown direction %q", s)}
	}
}

type navigator interface {
	Previous() error
	Next() error
	Goto(i int) error
}

// CompleteItem completes a course module, project task or concept.
func (m *Manager) CompleteItem(id, itemID string) (View, error) {
	return m.act(id, func(s *Session) error {
		switch t := s.tracker.(type) {
		case *progress.CourseTracker:
			return t.CompleteModule(itemID)
		case *progress.ProjectTracker:
			return t.MarkComplete(itemID)
		case *progress.ConceptTracker:
			return t.MarkUnderstood(itemID)
		}
		return wrongKind("complete item", s.Kind)
	})
}

// Submit records a project task submission.
func (m *Manager) Submit(id, itemID, text string) (View, error) {
	return m.act(id, func(s *Session) error {
		t, ok := s.tracker.(*progress.ProjectTracker)
		if !ok {
			return wrongKind("submit", s.Kind)
		}
		return t.Submit(itemID, text)
	})
}

// Navigate moves the cursor. On a quiz, next advances and goto is not
// supported.
func (m *Manager) Navigate(id string, dir Direction, index int) (View, error) {
	return m.act(id, func(s *Session) error {
		if q, ok := s.tracker.(*progress.QuizTracker); ok {
			switch dir {
			case DirPrevious:
				return q.Previous()
			case DirNext:
				return q.Advance()
			}
			return wrongKind("goto", s.Kind)
		}

		nav, ok := s.tracker.(navigator)
		if !ok {
			return wrongKind("navigate", s.Kind)
		}
		switch dir {
		case DirPrevious:
			return nav.Previous()
		case DirNext:
			return nav.Next()
		case DirGoto:
			return nav.Goto(index)
		}
		return &progress.ValidationError{Op: "navigate", Reason: fmt.Sprintf("unknown direction %q", dir)}
	})
}

// SelectAnswer records a quiz answer.
func (m *Manager) SelectAnswer(id string, question, option int) (View, error) {
	return m.quiz(id, "select answer", func(q *progress.QuizTracker) error {
		return q.SelectAnswer(question, option)
	})
}

// Advance moves a quiz to the next question or scores it.
func (m *Manager) Advance(id string) (View, error) {
	return m.quiz(id, "advance", (*progress.QuizTracker).Advance)
}

// RevealExplanation shows the explanation of the current quiz question.
func (m *Manager) RevealExplanation(id string) (View, error) {
	return m.quiz(id, "reveal explanation", (*progress.QuizTracker).RevealExplanation)
}

// Retake starts a new attempt of a failed quiz.
func (m *Manager) Retake(id string) (View, error) {
	return m.quiz(id, "retake", (*progress.QuizTracker).Retake)
}

func (m *Manager) quiz(id, op string, fn func(*progress.QuizTracker) error) (View, error) {
	return m.act(id, func(s *Session) error {
		q, ok := s.tracker.(*progress.QuizTracker)
		if !ok {
			return wrongKind(op, s.Kind)
		}
		return fn(q)
	})
}

func (m *Manager) act(id string, fn func(*Session) error) (View, error) {
	s, err := m.get(id)
	if err != nil {
		return View{}, err
	}
	if err := fn(s); err != nil {
		return View{}, err
	}
	return s.view(), nil
}

func wrongKind(op string, kind unit.Kind) error {
	return fmt.Errorf("%s: %w: %s", op, ErrWrongKind, kind)
}

// Ensure the variant trackers satisfy the shared interface.
var (
	_ Tracker   = (*progress.CourseTracker)(nil)
	_ Tracker   = (*progress.QuizTracker)(nil)
	_ Tracker   = (*progress.ProjectTracker)(nil)
	_ Tracker   = (*progress.ConceptTracker)(nil)
	_ navigator = (*progress.CourseTracker)(nil)
)
