package session

import (
	"context"

	"github.com/pavelanni/gradebook/internal/model"
)

// DraftService persists drafts and creates analysis documents.
type DraftService interface {
	GetDraft(ctx context.Context, id string) (model.Draft, error)
	// UpdateDraft overwrites the stored content when patch.Content is set.
	UpdateDraft(ctx context.Context, id string, patch model.DraftPatch) (model.Draft, error)
	CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error)
	GetAnalysisDocumentForDraft(ctx context.Context, draftID string) (model.AnalysisDocument, error)
}

// RosterService returns the students of a section.
type RosterService interface {
	GetSection(ctx context.Context, id int64) (model.Section, error)
	GetStudents(ctx context.Context, sectionID int64) ([]model.Student, error)
}
