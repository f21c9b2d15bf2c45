package store

import (
	"context"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// Async adapts a Gateway to the non-blocking persister the trackers call
// on every mutation. Unit writes coalesce per document key; every quiz
// result is written as its own record.
type Async struct {
	gw Gateway
	w  *Writer
}

// NewAsync creates an Async persister writing to gw through w.
func NewAsync(gw Gateway, w *Writer) *Async {
	return &Async{gw: gw, w: w}
}

func (a *Async) SaveUnit(u unit.Unit) {
	key := u.Key()
	a.w.Submit(key, func(ctx context.Context) error {
		return a.gw.SaveUnit(ctx, key, u)
	})
}

func (a *Async) SaveQuizResult(r unit.QuizResult) {
	a.w.Submit(ResultWriteKey(r), func(ctx context.Context) error {
		return a.gw.SaveQuizResult(ctx, r)
	})
}

// ResultWriteKey is the Writer key a quiz result is submitted under.
func ResultWriteKey(r unit.QuizResult) string {
	return "result/" + r.ID
}
