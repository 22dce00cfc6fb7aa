// Package analysis creates analysis documents for finalized drafts and,
// when an insight generator is configured, attaches narrative insights.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/gradebook/internal/aggregate"
	"github.com/pavelanni/gradebook/internal/llm"
	"github.com/pavelanni/gradebook/internal/llm/prompts"
	"github.com/pavelanni/gradebook/internal/model"
)

// Store is the persistence the service needs.
type Store interface {
	GetDraft(ctx context.Context, id string) (model.Draft, error)
	CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error)
	SetAnalysisInsights(ctx context.Context, id int64, insights string) error
}

// Insighter generates insights for class data.
type Insighter interface {
	Insights(ctx context.Context, data prompts.InsightData) (*llm.Insights, error)
}

// Service creates analysis documents.
type Service struct {
	store     Store
	insighter Insighter
}

// New returns a service. insighter may be nil.
func New(store Store, insighter Insighter) *Service {
	return &Service{store: store, insighter: insighter}
}

// CreateAnalysisDocument creates or returns the document of a finalized
// draft. Insight generation failures are logged and do not fail the call;
// the document stays unprocessed.
func (s *Service) CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	doc, err := s.store.CreateAnalysisDocument(ctx, draftID)
	if err != nil {
		return doc, err
	}
	slog.Info("analysis document ready", "draft", draftID, "document", doc.ID)
	if s.insighter == nil || doc.Processed {
		return doc, nil
	}

	insights, err := s.generate(ctx, draftID)
	if err != nil {
		slog.Warn("insight generation failed", "draft", draftID, "document", doc.ID, "error", err)
		return doc, nil
	}
	if err := s.store.SetAnalysisInsights(ctx, doc.ID, insights); err != nil {
		slog.Warn("store insights failed", "document", doc.ID, "error", err)
		return doc, nil
	}
	doc.Insights = insights
	doc.Processed = true
	return doc, nil
}

func (s *Service) generate(ctx context.Context, draftID string) (string, error) {
	d, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return "", err
	}
	result, err := s.insighter.Insights(ctx, InsightData(d))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode insights: %w", err)
	}
	return string(b), nil
}

// InsightData summarizes a draft's roster and scores for the insight prompt.
// Only students in the roster snapshot are counted.
func InsightData(d model.Draft) prompts.InsightData {
	c := d.Content
	students := make([]model.Student, 0, len(c.Students))
	for _, m := range c.Students {
		students = append(students, model.Student{LRN: m.StudentID, FirstName: m.FirstName, LastName: m.LastName})
	}
	sum := aggregate.Summarize(students, c.Topics, c.Scores)

	data := prompts.InsightData{
		Title:            d.Title,
		PostTestMaxScore: c.PostTestMaxScore,
		Students:         sum.Students,
		Complete:         sum.Complete,
		AtRisk:           sum.AtRisk,
		Topics:           make([]prompts.TopicStat, 0, len(c.Topics)),
	}
	for _, t := range c.Topics {
		stat := prompts.TopicStat{Name: t.Name, MaxScore: t.MaxScore}
		var total float64
		for _, st := range students {
			cell, ok := c.Scores[st.LRN][t.ID]
			if !ok || cell.MaxScore <= 0 {
				continue
			}
			stat.Scored++
			total += float64(cell.Score) / float64(cell.MaxScore)
		}
		if stat.Scored > 0 {
			stat.MeanPercent = math.Round(total/float64(stat.Scored)*1000) / 10
		}
		data.Topics = append(data.Topics, stat)
	}
	return data
}
