package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pavelanni/gradebook/internal/model"
)

// ExportDrafts builds export-ready summaries of the given drafts, or of all
// drafts when ids is empty.
func (s *Store) ExportDrafts(ctx context.Context, ids ...string) ([]model.DraftSummary, error) {
	var drafts []model.Draft
	if len(ids) == 0 {
		all, err := s.ListDrafts(ctx, model.DraftFilter{})
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		drafts = all
	} else {
		for _, id := range ids {
			d, err := s.GetDraft(ctx, id)
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, d)
		}
	}

	names, err := s.referenceNames(ctx)
	if err != nil {
		return nil, err
	}

	var summaries []model.DraftSummary
	for _, d := range drafts {
		sum := Summarize(d, names)
		doc, err := s.GetAnalysisDocumentForDraft(ctx, d.ID)
		switch {
		case err == nil:
			sum.AnalysisDocument = &doc.ID
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("analysis document for %s: %w", d.ID, err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// ReferenceNames resolves subject, quarter and section ids to names.
type ReferenceNames struct {
	Subjects map[int64]string
	Quarters map[int64]string
	Sections map[int64]string
}

func (s *Store) referenceNames(ctx context.Context) (ReferenceNames, error) {
	names := ReferenceNames{
		Subjects: map[int64]string{},
		Quarters: map[int64]string{},
		Sections: map[int64]string{},
	}
	for table, m := range map[string]map[int64]string{
		"subjects": names.Subjects,
		"quarters": names.Quarters,
		"sections": names.Sections,
	} {
		rows, err := s.listNamed(ctx, table)
		if err != nil {
			return names, fmt.Errorf("list %s: %w", table, err)
		}
		for _, r := range rows {
			m[r.ID] = r.Name
		}
	}
	return names, nil
}

// Summarize flattens a draft into rows ordered by topic sequence. Students
// of the roster snapshot come first in roster order; scores kept for
// students no longer in the roster are listed as orphans by LRN.
func Summarize(d model.Draft, names ReferenceNames) model.DraftSummary {
	topics := slices.Clone(d.Content.Topics)
	for i := range topics {
		topics[i].Sequence = i + 1
	}

	row := func(lrn string) model.StudentRow {
		r := model.StudentRow{StudentID: lrn, Scores: make([]*int, len(topics))}
		cells := d.Content.Scores[lrn]
		for i, t := range topics {
			if c, ok := cells[t.ID]; ok {
				v := c.Score
				r.Scores[i] = &v
			}
		}
		return r
	}

	sum := model.DraftSummary{
		ID:               d.ID,
		Title:            d.Title,
		Subject:          names.Subjects[d.SubjectID],
		Quarter:          names.Quarters[d.QuarterID],
		Section:          names.Sections[d.SectionID],
		Status:           d.Status,
		PostTestMaxScore: d.Content.PostTestMaxScore,
		Topics:           topics,
		Rows:             []model.StudentRow{},
		UpdatedAt:        d.UpdatedAt,
	}

	inRoster := make(map[string]bool, len(d.Content.Students))
	for _, st := range d.Content.Students {
		inRoster[st.StudentID] = true
		r := row(st.StudentID)
		r.FirstName = st.FirstName
		r.LastName = st.LastName
		sum.Rows = append(sum.Rows, r)
	}

	var orphans []string
	for lrn := range d.Content.Scores {
		if !inRoster[lrn] {
			orphans = append(orphans, lrn)
		}
	}
	slices.Sort(orphans)
	for _, lrn := range orphans {
		sum.Orphans = append(sum.Orphans, row(lrn))
	}
	return sum
}
