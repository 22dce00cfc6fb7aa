package finalize

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/gradebook/internal/model"
)

type fakeDrafts struct {
	err     error
	patches []model.DraftPatch
	status  model.DraftStatus
}

func (f *fakeDrafts) UpdateDraft(_ context.Context, id string, patch model.DraftPatch) (model.Draft, error) {
	if f.err != nil {
		return model.Draft{}, f.err
	}
	f.patches = append(f.patches, patch)
	if patch.Status != nil {
		f.status = *patch.Status
	}
	return model.Draft{ID: id, Status: f.status}, nil
}

type fakeAnalyzer struct {
	err   error
	calls int
}

func (f *fakeAnalyzer) CreateAnalysisDocument(_ context.Context, draftID string) (model.AnalysisDocument, error) {
	f.calls++
	if f.err != nil {
		return model.AnalysisDocument{}, f.err
	}
	return model.AnalysisDocument{ID: 42, DraftID: draftID}, nil
}

func validContent() model.Content {
	return model.Content{
		Topics:           []model.Topic{{ID: "q", Name: "Quiz", MaxScore: 10}},
		PostTestMaxScore: 50,
	}
}

func TestRunSuccess(t *testing.T) {
	drafts := &fakeDrafts{status: model.StatusDraft}
	an := &fakeAnalyzer{}
	tx := New("d1", model.StatusDraft, drafts, an)

	res, err := tx.Run(context.Background(), validContent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Phase != PhaseAnalyzed || res.Document == nil || res.Document.ID != 42 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(drafts.patches) != 1 {
		t.Fatalf("expected exactly one persist, got %d", len(drafts.patches))
	}
	p := drafts.patches[0]
	if p.Status == nil || *p.Status != model.StatusFinalized || p.Content == nil {
		t.Errorf("final persist must carry status and content: %+v", p)
	}
}

// Scenario C: a zero post-test max blocks finalization before any call.
func TestRunBlockedByPostTestMax(t *testing.T) {
	drafts := &fakeDrafts{status: model.StatusDraft}
	an := &fakeAnalyzer{}
	tx := New("d1", model.StatusDraft, drafts, an)

	content := validContent()
	content.PostTestMaxScore = 0
	res, err := tx.Run(context.Background(), content)
	if !errors.Is(err, ErrInvalidPostTestMax) {
		t.Fatalf("expected ErrInvalidPostTestMax, got %v", err)
	}
	if res.Phase != PhaseDraft || tx.Phase() != PhaseDraft {
		t.Errorf("draft must stay in draft phase, got %s", res.Phase)
	}
	if len(drafts.patches) != 0 || an.calls != 0 {
		t.Error("no remote call may happen on validation failure")
	}
}

func TestRunPersistFailureKeepsDraft(t *testing.T) {
	drafts := &fakeDrafts{err: errors.New("503")}
	an := &fakeAnalyzer{}
	tx := New("d1", model.StatusDraft, drafts, an)

	res, err := tx.Run(context.Background(), validContent())
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if res.Phase != PhaseDraft {
		t.Errorf("expected draft phase, got %s", res.Phase)
	}
	if an.calls != 0 {
		t.Error("analysis must not be requested when the persist fails")
	}

	// Manual retry succeeds once the store recovers.
	drafts.err = nil
	if _, err := tx.Run(context.Background(), validContent()); err != nil {
		t.Fatalf("retry Run: %v", err)
	}
}

// Scenario D: finalized, but the analysis document could not be created.
func TestRunAnalysisFailureLeavesFinalized(t *testing.T) {
	drafts := &fakeDrafts{status: model.StatusDraft}
	an := &fakeAnalyzer{err: errors.New("analysis service down")}
	tx := New("d1", model.StatusDraft, drafts, an)

	res, err := tx.Run(context.Background(), validContent())
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis, got %v", err)
	}
	if res.Phase != PhaseFinalized || res.Document != nil {
		t.Fatalf("expected finalized without document, got %+v", res)
	}
	if drafts.status != model.StatusFinalized {
		t.Errorf("stored status should be finalized, got %s", drafts.status)
	}
	if an.calls != 1 {
		t.Errorf("analysis must not be retried automatically, got %d calls", an.calls)
	}

	if _, err := tx.Run(context.Background(), validContent()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("second Run should be rejected, got %v", err)
	}

	an.err = nil
	res, err = tx.RetryAnalysis(context.Background())
	if err != nil {
		t.Fatalf("RetryAnalysis: %v", err)
	}
	if res.Phase != PhaseAnalyzed || res.Document == nil {
		t.Errorf("expected analyzed after retry, got %+v", res)
	}
}

func TestRetryAnalysisRequiresFinalized(t *testing.T) {
	tx := New("d1", model.StatusDraft, &fakeDrafts{}, &fakeAnalyzer{})
	if _, err := tx.RetryAnalysis(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("expected ErrWrongPhase, got %v", err)
	}

	tx = New("d2", model.StatusFinalized, &fakeDrafts{}, &fakeAnalyzer{})
	if tx.Phase() != PhaseFinalized {
		t.Fatalf("finalized draft should start in %s, got %s", PhaseFinalized, tx.Phase())
	}
	if _, err := tx.RetryAnalysis(context.Background()); err != nil {
		t.Errorf("RetryAnalysis: %v", err)
	}
}

func TestRestoreAnalyzedDocument(t *testing.T) {
	an := &fakeAnalyzer{}
	tx := New("d1", model.StatusFinalized, &fakeDrafts{}, an)
	tx.Restore(model.AnalysisDocument{ID: 9, DraftID: "d1"})

	res := tx.Result()
	if res.Phase != PhaseAnalyzed || res.Document == nil || res.Document.ID != 9 {
		t.Fatalf("expected analyzed with document 9, got %+v", res)
	}
	if _, err := tx.RetryAnalysis(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("expected ErrWrongPhase, got %v", err)
	}
	if an.calls != 0 {
		t.Errorf("analyzer called %d times", an.calls)
	}

	tx = New("d2", model.StatusDraft, &fakeDrafts{}, an)
	tx.Restore(model.AnalysisDocument{ID: 10, DraftID: "d2"})
	if tx.Phase() != PhaseDraft {
		t.Errorf("an editable draft must stay in %s, got %s", PhaseDraft, tx.Phase())
	}
}
