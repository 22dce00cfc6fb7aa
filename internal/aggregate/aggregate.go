// Package aggregate computes read-only projections over a draft's topics and
// score matrix. Nothing here is persisted.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/pavelanni/gradebook/internal/model"
)

// AtRiskThreshold is the ratio of earned to possible points below which a
// student with at least one score is flagged.
const AtRiskThreshold = 0.75

// Class describes how many of the current topics a student has scores for.
type Class string

const (
	Complete Class = "complete"
	Partial  Class = "partial"
	Unscored Class = "unscored"
)

// StatusFilter selects students in Filter.
type StatusFilter string

const (
	FilterAll        StatusFilter = "all"
	FilterComplete   StatusFilter = "complete"
	FilterIncomplete StatusFilter = "incomplete"
	FilterAtRisk     StatusFilter = "at-risk"
)

// ParseStatusFilter validates a filter name. Empty means FilterAll.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterComplete, FilterIncomplete, FilterAtRisk:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Query narrows a roster.
type Query struct {
	Search string
	Status StatusFilter
}

// Summary counts students per class for the editor header.
type Summary struct {
	Students int `json:"students"`
	Complete int `json:"complete"`
	Partial  int `json:"partial"`
	Unscored int `json:"unscored"`
	AtRisk   int `json:"at_risk"`
}

// Scored returns the number of current topics that have a cell for lrn.
func Scored(topics []model.Topic, scores model.ScoreMatrix, lrn string) int {
	row := scores[lrn]
	n := 0
	for _, t := range topics {
		if _, ok := row[t.ID]; ok {
			n++
		}
	}
	return n
}

// Completeness classifies a student against the current topic list.
func Completeness(topics []model.Topic, scores model.ScoreMatrix, lrn string) Class {
	n := Scored(topics, scores, lrn)
	switch {
	case n == 0:
		return Unscored
	case n == len(topics):
		return Complete
	default:
		return Partial
	}
}

// Ratio returns earned over possible points using each cell's max score at
// entry. ok is false when the student has no scored topics.
func Ratio(topics []model.Topic, scores model.ScoreMatrix, lrn string) (ratio float64, ok bool) {
	row := scores[lrn]
	var earned, possible int
	for _, t := range topics {
		cell, found := row[t.ID]
		if !found {
			continue
		}
		earned += cell.Score
		possible += cell.MaxScore
	}
	if possible <= 0 {
		return 0, false
	}
	return float64(earned) / float64(possible), true
}

// AtRisk reports whether a student with at least one score falls below
// AtRiskThreshold. Students without scores are never at risk.
func AtRisk(topics []model.Topic, scores model.ScoreMatrix, lrn string) bool {
	r, ok := Ratio(topics, scores, lrn)
	return ok && r < AtRiskThreshold
}

// Filter returns the students matching q, in roster order.
func Filter(students []model.Student, topics []model.Topic, scores model.ScoreMatrix, q Query) []model.Student {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.Student, 0, len(students))
	for _, s := range students {
		if search != "" && !matches(s, search) {
			continue
		}
		switch q.Status {
		case FilterComplete:
			if Completeness(topics, scores, s.LRN) != Complete {
				continue
			}
		case FilterIncomplete:
			if Completeness(topics, scores, s.LRN) == Complete {
				continue
			}
		case FilterAtRisk:
			if !AtRisk(topics, scores, s.LRN) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func matches(s model.Student, search string) bool {
	if strings.Contains(strings.ToLower(s.LRN), search) {
		return true
	}
	name := strings.ToLower(s.FirstName + " " + s.LastName)
	if strings.Contains(name, search) {
		return true
	}
	return strings.Contains(strings.ToLower(s.LastName+", "+s.FirstName), search)
}

// Summarize counts the roster per class.
func Summarize(students []model.Student, topics []model.Topic, scores model.ScoreMatrix) Summary {
	sum := Summary{Students: len(students)}
	for _, s := range students {
		switch Completeness(topics, scores, s.LRN) {
		case Complete:
			sum.Complete++
		case Partial:
			sum.Partial++
		default:
			sum.Unscored++
		}
		if AtRisk(topics, scores, s.LRN) {
			sum.AtRisk++
		}
	}
	return sum
}
