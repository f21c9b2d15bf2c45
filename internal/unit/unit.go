// Package unit defines the learning units tracked for completion: courses,
// quizzes, projects and concept sets.
package unit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the unit variants.
type Kind string

const (
	KindCourse  Kind = "course"
	KindQuiz    Kind = "quiz"
	KindProject Kind = "project"
	KindConcept Kind = "concept"
)

// ErrEmptyUnit is returned for a unit whose item list is empty.
var ErrEmptyUnit = errors.New("unit has no items")

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCourse, KindQuiz, KindProject, KindConcept:
		return k, nil
	default:
		return "", fmt.Errorf("unknown unit kind %q", s)
	}
}

// Ref identifies where a unit lives. It is opaque to the trackers and only
// used to compute persistence keys.
type Ref struct {
	RoadmapID string `json:"roadmapId" yaml:"roadmapId"`
	NodeID    string `json:"nodeId" yaml:"nodeId"`
	UserID    string `json:"userId,omitempty" yaml:"userId,omitempty"`
}

// DocumentKey returns the key of the unit document for the given kind.
func (r Ref) DocumentKey(k Kind) string {
	return r.RoadmapID + "_" + r.NodeID + "_" + string(k)
}

// ResultKey returns the key quiz results are recorded under.
func (r Ref) ResultKey() string {
	return r.RoadmapID + "_" + r.NodeID + "_" + r.UserID
}

// Module is a course sub-item.
type Module struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Content   string `json:"content" yaml:"content"`
	VideoURL  string `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	Completed bool   `json:"completed" yaml:"completed"`
}

func (m Module) ItemID() string       { return m.ID }
func (m Module) IsCompleted() bool    { return m.Completed }
func (m Module) MarkComplete() Module { m.Completed = true; return m }

// Question is a quiz sub-item. Options are addressed by index.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
}

// Task is a project sub-item.
type Task struct {
	ID             string `json:"id" yaml:"id"`
	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description" yaml:"description"`
	Completed      bool   `json:"completed" yaml:"completed"`
	SubmissionText string `json:"submissionText,omitempty" yaml:"submissionText,omitempty"`
}

func (t Task) ItemID() string     { return t.ID }
func (t Task) IsCompleted() bool  { return t.Completed }
func (t Task) MarkComplete() Task { t.Completed = true; return t }

// Concept is a concept-set sub-item.
type Concept struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Example     string `json:"example,omitempty" yaml:"example,omitempty"`
	Completed   bool   `json:"completed" yaml:"completed"`
}

func (c Concept) ItemID() string        { return c.ID }
func (c Concept) IsCompleted() bool     { return c.Completed }
func (c Concept) MarkComplete() Concept { c.Completed = true; return c }

// Unit is a tagged union over the four variants. Exactly one item list,
// the one matching Kind, is populated.
type Unit struct {
	Kind         Kind       `json:"kind" yaml:"kind"`
	RoadmapID    string     `json:"roadmapId" yaml:"roadmapId"`
	NodeID       string     `json:"nodeId" yaml:"nodeId"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	PassingScore *int       `json:"passingScore,omitempty" yaml:"passingScore,omitempty"`
	Modules      []Module   `json:"modules,omitempty" yaml:"modules,omitempty"`
	Questions    []Question `json:"questions,omitempty" yaml:"questions,omitempty"`
	Tasks        []Task     `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Concepts     []Concept  `json:"concepts,omitempty" yaml:"concepts,omitempty"`
}

// Score returns a pointer to v for use as a PassingScore.
func Score(v int) *int { return &v }

// PassMark returns the quiz passing score, or 0 when none is set.
func (u Unit) PassMark() int {
	if u.PassingScore == nil {
		return 0
	}
	return *u.PassingScore
}

// Key returns the unit's document key.
func (u Unit) Key() string {
	return u.Ref().DocumentKey(u.Kind)
}

// Ref returns the unit's location without a user.
func (u Unit) Ref() Ref {
	return Ref{RoadmapID: u.RoadmapID, NodeID: u.NodeID}
}

// Len returns the number of items of the unit's kind.
func (u Unit) Len() int {
	switch u.Kind {
	case KindCourse:
		return len(u.Modules)
	case KindQuiz:
		return len(u.Questions)
	case KindProject:
		return len(u.Tasks)
	case KindConcept:
		return len(u.Concepts)
	}
	return 0
}

// Validate checks the invariants the trackers rely on.
func (u Unit) Validate() error {
	if _, err := ParseKind(string(u.Kind)); err != nil {
		return err
	}
	if u.RoadmapID == "" || u.NodeID == "" {
		return fmt.Errorf("%s unit: roadmapId and nodeId are required", u.Kind)
	}
	if u.Len() == 0 {
		return fmt.Errorf("%s unit %s: %w", u.Kind, u.Key(), ErrEmptyUnit)
	}

	var foreign int
	switch u.Kind {
	case KindCourse:
		foreign = len(u.Questions) + len(u.Tasks) + len(u.Concepts)
	case KindQuiz:
		foreign = len(u.Modules) + len(u.Tasks) + len(u.Concepts)
	case KindProject:
		foreign = len(u.Modules) + len(u.Questions) + len(u.Concepts)
	case KindConcept:
		foreign = len(u.Modules) + len(u.Questions) + len(u.Tasks)
	}
	if foreign > 0 {
		return fmt.Errorf("%s unit %s carries items of another kind", u.Kind, u.Key())
	}

	if u.Kind == KindQuiz {
		if p := u.PassingScore; p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("quiz %s: passingScore %d out of range", u.Key(), *p)
		}
		for i, q := range u.Questions {
			if len(q.Options) == 0 {
				return fmt.Errorf("quiz %s: question %d has no options", u.Key(), i)
			}
			if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
				return fmt.Errorf("quiz %s: question %d correctAnswer out of range", u.Key(), i)
			}
		}
	}

	seen := make(map[string]bool, u.Len())
	for _, id := range u.itemIDs() {
		if id == "" {
			return fmt.Errorf("%s unit %s: item id is required", u.Kind, u.Key())
		}
		if seen[id] {
			return fmt.Errorf("%s unit %s: duplicate item id %q", u.Kind, u.Key(), id)
		}
		seen[id] = true
	}
	return nil
}

func (u Unit) itemIDs() []string {
	var ids []string
	switch u.Kind {
	case KindCourse:
		for _, m := range u.Modules {
			ids = append(ids, m.ID)
		}
	case KindQuiz:
		for _, q := range u.Questions {
			ids = append(ids, q.ID)
		}
	case KindProject:
		for _, t := range u.Tasks {
			ids = append(ids, t.ID)
		}
	case KindConcept:
		for _, c := range u.Concepts {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// QuizResult is the record written when a quiz attempt is scored. It is
// stored apart from the question bank document.
type QuizResult struct {
	ID          string      `json:"id"`
	Key         string      `json:"key"`
	RoadmapID   string      `json:"roadmapId"`
	NodeID      string      `json:"nodeId"`
	UserID      string      `json:"userId"`
	Score       int         `json:"score"`
	RawScore    float64     `json:"rawScore"`
	Answers     map[int]int `json:"answers"`
	Passed      bool        `json:"passed"`
	CompletedAt time.Time   `json:"completedAt"`
}
