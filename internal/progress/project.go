package progress

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// ProjectTracker tracks task completion of a project. A task completes
// either through a text submission or directly.
type ProjectTracker struct {
	*ItemTracker[unit.Task]
}

// NewProject creates a tracker for a project unit.
func NewProject(u unit.Unit, opts Options) (*ProjectTracker, error) {
	t, err := newItemTracker(u, unit.KindProject, u.Tasks, func(base unit.Unit, items []unit.Task) unit.Unit {
		base.Tasks = items
		return base
	}, opts)
	if err != nil {
		return nil, err
	}
	return &ProjectTracker{ItemTracker: t}, nil
}

// NormalizeSubmission trims and NFC-normalizes submission text.
func NormalizeSubmission(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// CanSubmit reports whether text would be accepted by Submit.
func CanSubmit(text string) bool {
	return NormalizeSubmission(text) != ""
}

// Submit records the submission text and completes the task. Blank text is
// rejected without touching state.
func (p *ProjectTracker) Submit(id, text string) error {
	text = NormalizeSubmission(text)
	if text == "" {
		return invalid("submit", "submission text is empty")
	}
	return p.complete("submit", id, func(t unit.Task) (unit.Task, error) {
		if t.Completed {
			return t, invalid("submit", "task %q is already completed", id)
		}
		t.SubmissionText = text
		return t, nil
	})
}

// MarkComplete completes the task without a submission.
func (p *ProjectTracker) MarkComplete(id string) error {
	return p.complete("mark complete", id, nil)
}
