// Package local serves editing sessions from the embedded SQLite store.
package local

import (
	"context"

	"github.com/pavelanni/gradebook/internal/analysis"
	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/store"
)

// Backend implements the session draft and roster services on a Store.
type Backend struct {
	store    *store.Store
	analysis *analysis.Service
}

// New returns a backend. A nil analysis service creates bare documents.
func New(st *store.Store, an *analysis.Service) *Backend {
	if an == nil {
		an = analysis.New(st, nil)
	}
	return &Backend{store: st, analysis: an}
}

func (b *Backend) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	return b.store.GetDraft(ctx, id)
}

func (b *Backend) UpdateDraft(ctx context.Context, id string, patch model.DraftPatch) (model.Draft, error) {
	return b.store.UpdateDraft(ctx, id, patch)
}

func (b *Backend) CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	return b.analysis.CreateAnalysisDocument(ctx, draftID)
}

func (b *Backend) GetAnalysisDocumentForDraft(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	return b.store.GetAnalysisDocumentForDraft(ctx, draftID)
}

func (b *Backend) GetSection(ctx context.Context, id int64) (model.Section, error) {
	return b.store.GetSection(ctx, id)
}

// GetStudents returns the roster of a section.
func (b *Backend) GetStudents(ctx context.Context, sectionID int64) ([]model.Student, error) {
	return b.store.ListStudents(ctx, sectionID)
}
