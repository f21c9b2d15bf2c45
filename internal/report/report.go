// Package report exports quiz results as spreadsheets.
package report

import (
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultsHeader = []any{"Result ID", "User", "Node", "Score", "Raw score", "Passed", "Completed at", "Answers"}

var summaryHeader = []any{"Node", "Attempts", "Passed", "Pass rate %", "Average score", "Best score"}

// QuizResults builds a workbook with one row per result and a per-node
// summary sheet.
func QuizResults(roadmapID string, results []unit.QuizResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Quiz results " + roadmapID,
		Creator: "pai-tracker",
	}); err != nil {
		return nil, fmt.Errorf("set properties: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, resultsSheet, 1, resultsHeader); err != nil {
		return nil, err
	}
	for i, r := range results {
		row := []any{
			r.ID,
			r.UserID,
			r.NodeID,
			r.Score,
			math.Round(r.RawScore*100) / 100,
			yesNo(r.Passed),
			r.CompletedAt.UTC().Format(time.RFC3339),
			formatAnswers(r.Answers),
		}
		if err := writeRow(f, resultsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := writeRow(f, summarySheet, 1, summaryHeader); err != nil {
		return nil, err
	}
	for i, s := range summarize(results) {
		row := []any{s.node, s.attempts, s.passed, s.passRate(), s.average(), s.best}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return nil, err
		}
	}

	for _, sheet := range []string{resultsSheet, summarySheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return nil, fmt.Errorf("style header of %s: %w", sheet, err)
		}
		if err := f.SetColWidth(sheet, "A", "H", 18); err != nil {
			return nil, fmt.Errorf("size columns of %s: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteQuizResults streams the workbook built by QuizResults to w.
func WriteQuizResults(w io.Writer, roadmapID string, results []unit.QuizResult) error {
	f, err := QuizResults(roadmapID, results)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

type nodeSummary struct {
	node     string
	attempts int
	passed   int
	total    int
	best     int
}

func (s nodeSummary) passRate() int {
	return int(math.Round(100 * float64(s.passed) / float64(s.attempts)))
}

func (s nodeSummary) average() float64 {
	return math.Round(100*float64(s.total)/float64(s.attempts)) / 100
}

func summarize(results []unit.QuizResult) []nodeSummary {
	byNode := make(map[string]*nodeSummary)
	for _, r := range results {
		s, ok := byNode[r.NodeID]
		if !ok {
			s = &nodeSummary{node: r.NodeID}
			byNode[r.NodeID] = s
		}
		s.attempts++
		s.total += r.Score
		s.best = max(s.best, r.Score)
		if r.Passed {
			s.passed++
		}
	}

	out := make([]nodeSummary, 0, len(byNode))
	for _, node := range slices.Sorted(maps.Keys(byNode)) {
		out = append(out, *byNode[node])
	}
	return out
}

func formatAnswers(answers map[int]int) string {
	parts := make([]string, 0, len(answers))
	for _, q := range slices.Sorted(maps.Keys(answers)) {
		parts = append(parts, strconv.Itoa(q+1)+":"+strconv.Itoa(answers[q]))
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
