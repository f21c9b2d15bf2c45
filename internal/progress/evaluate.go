package progress

import (
	"math"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

type completable interface {
	IsCompleted() bool
}

// AllCompleted reports whether every item is completed. An empty list is
// never complete.
func AllCompleted[T completable](items []T) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !it.IsCompleted() {
			return false
		}
	}
	return true
}

// FirstIncomplete returns the lowest index of an incomplete item, or -1.
func FirstIncomplete[T completable](items []T) int {
	for i, it := range items {
		if !it.IsCompleted() {
			return i
		}
	}
	return -1
}

// CompletedCount returns the number of completed items.
func CompletedCount[T completable](items []T) int {
	n := 0
	for _, it := range items {
		if it.IsCompleted() {
			n++
		}
	}
	return n
}

// Percent returns done/total as a whole percentage. total must be positive.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// Score returns 100 * correct / total for the given answers, unrounded.
// Unanswered questions count as incorrect.
func Score(questions []unit.Question, answers map[int]int) (float64, error) {
	if len(questions) == 0 {
		return 0, unit.ErrEmptyUnit
	}
	correct := 0
	for i, q := range questions {
		if a, ok := answers[i]; ok && a == q.CorrectAnswer {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(questions)), nil
}
