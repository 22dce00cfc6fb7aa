// Package finalize implements the one-way transition of a draft into a
// finalized assessment and the hand-off to analysis document creation.
//
// The two steps are not atomic. A draft whose final persist succeeded but
// whose analysis request failed stays in PhaseFinalized until an operator
// calls RetryAnalysis; nothing is rolled back or retried automatically.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/gradebook/internal/model"
)

// Phase is the position of a draft in the finalization state machine.
type Phase string

const (
	// PhaseDraft means the draft is still editable.
	PhaseDraft Phase = "draft"
	// PhaseFinalized means the draft is locked but has no analysis document.
	PhaseFinalized Phase = "finalized_pending_analysis"
	// PhaseAnalyzed means the analysis document exists.
	PhaseAnalyzed Phase = "analyzed"
)

var (
	// ErrInvalidPostTestMax blocks finalization while the post-test max is not positive.
	ErrInvalidPostTestMax = errors.New("post-test max score must be greater than zero")
	// ErrNoTopics blocks finalization of content without topics.
	ErrNoTopics = errors.New("at least one topic is required")
	// ErrWrongPhase is returned when a step is not valid in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrPersist wraps a failure of the final persist; the draft stays editable.
	ErrPersist = errors.New("final save failed")
	// ErrAnalysis wraps a failure to create the analysis document after the
	// draft was finalized.
	ErrAnalysis = errors.New("analysis document not created")
)

// DraftUpdater performs the final full-content persist.
type DraftUpdater interface {
	UpdateDraft(ctx context.Context, id string, patch model.DraftPatch) (model.Draft, error)
}

// Analyzer creates the analysis document of a finalized draft.
type Analyzer interface {
	CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error)
}

// Result describes where a finalization attempt ended.
type Result struct {
	Phase    Phase                   `json:"phase"`
	Document *model.AnalysisDocument `json:"analysis_document,omitempty"`
}

// Transaction drives one draft through the finalization phases.
type Transaction struct {
	draftID  string
	drafts   DraftUpdater
	analyzer Analyzer

	mu    sync.Mutex
	phase Phase
	doc   *model.AnalysisDocument
}

// New returns a transaction for a draft currently in status.
func New(draftID string, status model.DraftStatus, drafts DraftUpdater, analyzer Analyzer) *Transaction {
	phase := PhaseDraft
	if status == model.StatusFinalized {
		phase = PhaseFinalized
	}
	return &Transaction{
		draftID:  draftID,
		drafts:   drafts,
		analyzer: analyzer,
		phase:    phase,
	}
}

// Restore records the analysis document of a draft that was analyzed before
// this transaction was created. It has no effect outside PhaseFinalized.
func (t *Transaction) Restore(doc model.AnalysisDocument) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseFinalized {
		return
	}
	t.doc = &doc
	t.phase = PhaseAnalyzed
}

// Phase returns the current phase.
func (t *Transaction) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Result returns the current phase and document, if any.
func (t *Transaction) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Result{Phase: t.phase, Document: t.doc}
}

// Run validates content, persists it with status finalized and then asks
// for the analysis document.
func (t *Transaction) Run(ctx context.Context, content model.Content) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseDraft {
		return t.resultLocked(), fmt.Errorf("finalize %s: %w", t.phase, ErrWrongPhase)
	}
	if content.PostTestMaxScore <= 0 {
		return t.resultLocked(), ErrInvalidPostTestMax
	}
	if len(content.Topics) == 0 {
		return t.resultLocked(), ErrNoTopics
	}

	status := model.StatusFinalized
	if _, err := t.drafts.UpdateDraft(ctx, t.draftID, model.DraftPatch{
		Status:  &status,
		Content: &content,
	}); err != nil {
		slog.Error("final save failed", "draft_id", t.draftID, "error", err)
		return t.resultLocked(), fmt.Errorf("%w: %w", ErrPersist, err)
	}
	t.phase = PhaseFinalized
	slog.Info("draft finalized", "draft_id", t.draftID)

	return t.analyzeLocked(ctx)
}

// RetryAnalysis re-requests the analysis document of a draft stuck in
// PhaseFinalized.
func (t *Transaction) RetryAnalysis(ctx context.Context) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseFinalized {
		return t.resultLocked(), fmt.Errorf("retry analysis in %s: %w", t.phase, ErrWrongPhase)
	}
	return t.analyzeLocked(ctx)
}

func (t *Transaction) analyzeLocked(ctx context.Context) (Result, error) {
	doc, err := t.analyzer.CreateAnalysisDocument(ctx, t.draftID)
	if err != nil {
		slog.Error("analysis document creation failed", "draft_id", t.draftID, "error", err)
		return t.resultLocked(), fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	t.phase = PhaseAnalyzed
	t.doc = &doc
	slog.Info("analysis document created", "draft_id", t.draftID, "analysis_document_id", doc.ID)
	return t.resultLocked(), nil
}

func (t *Transaction) resultLocked() Result {
	return Result{Phase: t.phase, Document: t.doc}
}
