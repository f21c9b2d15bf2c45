// Package store persists unit documents and quiz results behind a
// merge-write gateway.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// ErrNotFound is returned when no document exists under a key.
var ErrNotFound = errors.New("document not found")

// Gateway is the persistence boundary of the trackers. SaveUnit merges the
// top-level fields of u into the stored document; fields absent from u are
// kept.
type Gateway interface {
	SaveUnit(ctx context.Context, key string, u unit.Unit) error
	SaveQuizResult(ctx context.Context, r unit.QuizResult) error
	LoadUnit(ctx context.Context, key string) (unit.Unit, error)
	ListQuizResults(ctx context.Context, roadmapID string) ([]unit.QuizResult, error)
}

// MemoryStore is an in-memory Gateway.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]json.RawMessage
	results []unit.QuizResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]json.RawMessage),
	}
}

func (s *MemoryStore) SaveUnit(_ context.Context, key string, u unit.Unit) error {
	fields, err := documentFields(u)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[key]
	if !ok {
		doc = make(map[string]json.RawMessage, len(fields))
		s.docs[key] = doc
	}
	maps.Copy(doc, fields)
	return nil
}

func (s *MemoryStore) SaveQuizResult(_ context.Context, r unit.QuizResult) error {
	if r.ID == "" {
		return fmt.Errorf("quiz result id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.Answers = maps.Clone(r.Answers)
	s.results = append(s.results, r)
	return nil
}

func (s *MemoryStore) LoadUnit(_ context.Context, key string) (unit.Unit, error) {
	s.mu.RLock()
	doc, ok := s.docs[key]
	var raw []byte
	var err error
	if ok {
		raw, err = json.Marshal(doc)
	}
	s.mu.RUnlock()

	if !ok {
		return unit.Unit{}, fmt.Errorf("load unit %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return unit.Unit{}, fmt.Errorf("encode document %s: %w", key, err)
	}
	var u unit.Unit
	if err := json.Unmarshal(raw, &u); err != nil {
		return unit.Unit{}, fmt.Errorf("decode document %s: %w", key, err)
	}
	return u, nil
}

func (s *MemoryStore) ListQuizResults(_ context.Context, roadmapID string) ([]unit.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []unit.QuizResult
	for _, r := range s.results {
		if r.RoadmapID == roadmapID {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b unit.QuizResult) int {
		return a.CompletedAt.Compare(b.CompletedAt)
	})
	return out, nil
}

// documentFields splits a unit into its top-level JSON fields, the unit of
// merge for every Gateway.
func documentFields(u unit.Unit) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode unit %s: %w", u.Key(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("split unit %s: %w", u.Key(), err)
	}
	return fields, nil
}
