package progress

import "github.com/p-n-ai/pai-tracker/internal/unit"

// CourseTracker tracks module completion of a course.
type CourseTracker struct {
	*ItemTracker[unit.Module]
}

// NewCourse creates a tracker for a course unit.
func NewCourse(u unit.Unit, opts Options) (*CourseTracker, error) {
	t, err := newItemTracker(u, unit.KindCourse, u.Modules, func(base unit.Unit, items []unit.Module) unit.Unit {
		base.Modules = items
		return base
	}, opts)
	if err != nil {
		return nil, err
	}
	return &CourseTracker{ItemTracker: t}, nil
}

// CompleteModule marks the module completed.
func (c *CourseTracker) CompleteModule(id string) error {
	return c.complete("complete module", id, nil)
}
