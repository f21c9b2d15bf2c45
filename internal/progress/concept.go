package progress

import "github.com/p-n-ai/pai-tracker/internal/unit"

// ConceptTracker tracks which concepts of a set were understood.
type ConceptTracker struct {
	*ItemTracker[unit.Concept]
}

// NewConcept creates a tracker for a concept unit.
func NewConcept(u unit.Unit, opts Options) (*ConceptTracker, error) {
	t, err := newItemTracker(u, unit.KindConcept, u.Concepts, func(base unit.Unit, items []unit.Concept) unit.Unit {
		base.Concepts = items
		return base
	}, opts)
	if err != nil {
		return nil, err
	}
	return &ConceptTracker{ItemTracker: t}, nil
}

// MarkUnderstood marks the concept completed.
func (c *ConceptTracker) MarkUnderstood(id string) error {
	return c.complete("mark understood", id, nil)
}
