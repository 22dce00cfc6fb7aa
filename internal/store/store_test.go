package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/gradebook/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type refs struct {
	subject, quarter, section int64
}

func seedReference(t *testing.T, s *Store) refs {
	t.Helper()
	ctx := context.Background()
	var r refs
	var err error
	if r.subject, err = s.CreateSubject(ctx, "Mathematics"); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	if r.quarter, err = s.CreateQuarter(ctx, "Q1"); err != nil {
		t.Fatalf("CreateQuarter: %v", err)
	}
	if r.section, err = s.CreateSection(ctx, "Rizal"); err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	return r
}

func createTestDraft(t *testing.T, s *Store, key, title string) model.Draft {
	t.Helper()
	r := seedReference(t, s)
	d, err := s.CreateDraft(context.Background(), key, model.DraftInput{
		Title:     title,
		SubjectID: r.subject,
		QuarterID: r.quarter,
		SectionID: r.section,
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return d
}

func sampleContent() model.Content {
	return model.Content{
		Topics: []model.Topic{
			{ID: "t1", Name: "Quiz 1", MaxScore: 10, Sequence: 1},
			{ID: "t2", Name: "Quiz 2", MaxScore: 20, Sequence: 2},
		},
		Students: []model.StudentMeta{{StudentID: "100", FirstName: "Ana", LastName: "Reyes", Section: "Rizal"}},
		Scores: model.ScoreMatrix{
			"100": {"t1": {Score: 7, StudentID: "100", MaxScore: 10, Sequence: 1}},
		},
		PostTestMaxScore: 50,
	}
}

func TestDraftCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.DraftCount(ctx)
	if err != nil {
		t.Fatalf("DraftCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 drafts, got %d", count)
	}

	d := createTestDraft(t, s, "", "  Unit Test 1  ")
	if d.ID == "" {
		t.Fatal("expected a generated draft id")
	}
	if d.Title != "Unit Test 1" {
		t.Errorf("expected trimmed title, got %q", d.Title)
	}
	if d.Status != model.StatusDraft {
		t.Errorf("expected draft status, got %s", d.Status)
	}

	got, err := s.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.Title != d.Title || got.SectionID != d.SectionID {
		t.Errorf("GetDraft mismatch: %+v", got)
	}
	if got.Content.Scores == nil || len(got.Content.Topics) != 0 {
		t.Errorf("expected empty content, got %+v", got.Content)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, d.CreatedAt)
	}

	_, err = s.GetDraft(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDraftIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createTestDraft(t, s, "key-1", "Quiz")
	again, err := s.CreateDraft(ctx, "key-1", model.DraftInput{Title: "Other", SubjectID: 1, QuarterID: 1, SectionID: 1})
	if err != nil {
		t.Fatalf("CreateDraft repeat: %v", err)
	}
	if again.ID != first.ID || again.Title != "Quiz" {
		t.Errorf("expected the original draft back, got %+v", again)
	}

	other, err := s.CreateDraft(ctx, "key-2", model.DraftInput{Title: "Quiz", SubjectID: 1, QuarterID: 1, SectionID: 1})
	if err != nil {
		t.Fatalf("CreateDraft new key: %v", err)
	}
	if other.ID == first.ID {
		t.Error("a new key must create a new draft")
	}

	n, _ := s.DraftCount(ctx)
	if n != 2 {
		t.Errorf("expected 2 drafts, got %d", n)
	}
}

func TestUpdateDraftOverwritesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := createTestDraft(t, s, "", "Quiz")

	content := sampleContent()
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Content: &content}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	// A smaller snapshot replaces, never merges.
	smaller := model.Content{
		Topics:           content.Topics[:1],
		Scores:           model.ScoreMatrix{},
		PostTestMaxScore: 40,
	}
	title := "Renamed"
	updated, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Title: &title, Content: &smaller})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("expected new title, got %q", updated.Title)
	}

	got, _ := s.GetDraft(ctx, d.ID)
	if len(got.Content.Topics) != 1 || len(got.Content.Scores) != 0 || got.Content.PostTestMaxScore != 40 {
		t.Errorf("content was merged instead of replaced: %+v", got.Content)
	}
	if got.UpdatedAt.Before(d.UpdatedAt) {
		t.Error("updated_at went backwards")
	}
}

func TestUpdateDraftIdenticalContentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := createTestDraft(t, s, "", "Quiz")

	content := sampleContent()
	for range 3 {
		if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Content: &content}); err != nil {
			t.Fatalf("UpdateDraft: %v", err)
		}
	}
	got, _ := s.GetDraft(ctx, d.ID)
	cell, ok := got.Content.Scores["100"]["t1"]
	if !ok || cell.Score != 7 || cell.MaxScore != 10 || cell.Sequence != 1 {
		t.Errorf("unexpected stored cell %+v", cell)
	}
	if len(got.Content.Topics) != 2 || got.Content.Topics[1].Sequence != 2 {
		t.Errorf("unexpected topics %+v", got.Content.Topics)
	}
}

func TestStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := createTestDraft(t, s, "", "Quiz")

	finalized := model.StatusFinalized
	content := sampleContent()
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Status: &finalized, Content: &content}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	back := model.StatusDraft
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Status: &back}); !errors.Is(err, ErrStatusTransition) {
		t.Errorf("expected ErrStatusTransition, got %v", err)
	}
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Content: &content}); !errors.Is(err, ErrDraftFinalized) {
		t.Errorf("expected ErrDraftFinalized, got %v", err)
	}
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Status: &finalized, Content: &content}); err != nil {
		t.Errorf("repeated finalization should succeed, got %v", err)
	}

	bogus := model.DraftStatus("archived")
	d2 := createTestDraft(t, s, "", "Other")
	if _, err := s.UpdateDraft(ctx, d2.ID, model.DraftPatch{Status: &bogus}); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}

func TestListDraftsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	math := createTestDraft(t, s, "", "Fractions Quiz")
	sci, err := s.CreateSubject(ctx, "Science")
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	sciDraft, err := s.CreateDraft(ctx, "", model.DraftInput{
		Title: "Cells Test", SubjectID: sci, QuarterID: math.QuarterID, SectionID: math.SectionID,
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	finalized := model.StatusFinalized
	if _, err := s.UpdateDraft(ctx, sciDraft.ID, model.DraftPatch{Status: &finalized}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	tests := []struct {
		name   string
		filter model.DraftFilter
		want   int
	}{
		{"no filter", model.DraftFilter{}, 2},
		{"search", model.DraftFilter{Search: "quiz"}, 1},
		{"subject", model.DraftFilter{SubjectID: sci}, 1},
		{"section", model.DraftFilter{SectionID: math.SectionID}, 2},
		{"status draft", model.DraftFilter{Status: model.StatusDraft}, 1},
		{"status finalized", model.DraftFilter{Status: model.StatusFinalized}, 1},
		{"no match", model.DraftFilter{QuarterID: 999}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDrafts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListDrafts: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d drafts, got %d", tt.want, len(got))
			}
		})
	}
}

func TestCreateAnalysisDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := createTestDraft(t, s, "", "Quiz")

	if _, err := s.CreateAnalysisDocument(ctx, d.ID); !errors.Is(err, ErrDraftNotFinalized) {
		t.Fatalf("expected ErrDraftNotFinalized, got %v", err)
	}
	if _, err := s.CreateAnalysisDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	finalized := model.StatusFinalized
	content := sampleContent()
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Status: &finalized, Content: &content}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	doc, err := s.CreateAnalysisDocument(ctx, d.ID)
	if err != nil {
		t.Fatalf("CreateAnalysisDocument: %v", err)
	}
	if doc.ID == 0 || doc.DraftID != d.ID || doc.Title != "Quiz" || doc.PostTestMaxScore != 50 {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.Processed {
		t.Error("new document should not be processed")
	}

	again, err := s.CreateAnalysisDocument(ctx, d.ID)
	if err != nil {
		t.Fatalf("CreateAnalysisDocument repeat: %v", err)
	}
	if again.ID != doc.ID {
		t.Errorf("expected the same document, got %d and %d", doc.ID, again.ID)
	}

	if err := s.SetAnalysisInsights(ctx, doc.ID, `{"summary":"ok"}`); err != nil {
		t.Fatalf("SetAnalysisInsights: %v", err)
	}
	got, err := s.GetAnalysisDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetAnalysisDocument: %v", err)
	}
	if !got.Processed || got.Insights == "" {
		t.Errorf("expected processed document with insights, got %+v", got)
	}
	byDraft, err := s.GetAnalysisDocumentForDraft(ctx, d.ID)
	if err != nil || byDraft.ID != doc.ID {
		t.Errorf("GetAnalysisDocumentForDraft = %+v, %v", byDraft, err)
	}
	if err := s.SetAnalysisInsights(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReferenceData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateSection(ctx, "Rizal")
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	b, err := s.CreateSection(ctx, " Rizal ")
	if err != nil {
		t.Fatalf("CreateSection repeat: %v", err)
	}
	if a != b {
		t.Errorf("expected the same section id, got %d and %d", a, b)
	}
	if _, err := s.CreateSection(ctx, ""); err == nil {
		t.Error("expected error for empty name")
	}
	other, err := s.CreateSection(ctx, "Bonifacio")
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}

	sections, err := s.ListSections(ctx)
	if err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if len(sections) != 2 || sections[0].Name != "Bonifacio" {
		t.Errorf("unexpected sections %+v", sections)
	}
	sec, err := s.GetSection(ctx, a)
	if err != nil || sec.Name != "Rizal" {
		t.Errorf("GetSection = %+v, %v", sec, err)
	}
	if _, err := s.GetSection(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	students := []model.Student{
		{LRN: "2", FirstName: "Ben", LastName: "Cruz", SectionID: a},
		{LRN: "1", FirstName: "Ana", LastName: "Reyes", SectionID: a},
	}
	for _, st := range students {
		if err := s.UpsertStudent(ctx, st); err != nil {
			t.Fatalf("UpsertStudent: %v", err)
		}
	}
	// Moving a student updates the existing row.
	if err := s.UpsertStudent(ctx, model.Student{LRN: "2", FirstName: "Ben", LastName: "Cruz", SectionID: other}); err != nil {
		t.Fatalf("UpsertStudent move: %v", err)
	}
	if err := s.UpsertStudent(ctx, model.Student{FirstName: "No", LastName: "Lrn"}); err == nil {
		t.Error("expected error for missing LRN")
	}

	roster, err := s.ListStudents(ctx, a)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(roster) != 1 || roster[0].LRN != "1" {
		t.Errorf("unexpected roster %+v", roster)
	}
	moved, err := s.ListStudents(ctx, other)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(moved) != 1 || moved[0].LRN != "2" || moved[0].SectionID != other {
		t.Errorf("unexpected roster of moved student %+v", moved)
	}
}

func TestMetadataAndImportHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetMetadata(ctx, "missing")
	if err != nil || v != "" {
		t.Fatalf("GetMetadata missing = %q, %v", v, err)
	}
	if err := s.SetMetadata(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}
	if v, _ := s.GetMetadata(ctx, "k"); v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}

	h, err := s.GetImportedFileHash(ctx, "roster.json")
	if err != nil || h != "" {
		t.Fatalf("GetImportedFileHash = %q, %v", h, err)
	}
	if err := s.SetImportedFileHash(ctx, "roster.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if h, _ := s.GetImportedFileHash(ctx, "roster.json"); h != "abc" {
		t.Errorf("expected abc, got %q", h)
	}
}

func TestExportDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := createTestDraft(t, s, "", "Quiz")

	content := sampleContent()
	// Scores for a student who left the roster are kept as an orphan row.
	content.Scores["999"] = map[string]model.ScoreCell{"t2": {Score: 15, StudentID: "999", MaxScore: 20, Sequence: 2}}
	if _, err := s.UpdateDraft(ctx, d.ID, model.DraftPatch{Content: &content}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	out, err := s.ExportDrafts(ctx)
	if err != nil {
		t.Fatalf("ExportDrafts: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(out))
	}
	sum := out[0]
	if sum.Subject != "Mathematics" || sum.Quarter != "Q1" || sum.Section != "Rizal" {
		t.Errorf("names not resolved: %+v", sum)
	}
	if len(sum.Rows) != 1 || sum.Rows[0].StudentID != "100" {
		t.Fatalf("unexpected rows %+v", sum.Rows)
	}
	row := sum.Rows[0]
	if row.Scores[0] == nil || *row.Scores[0] != 7 {
		t.Errorf("expected score 7 for topic 1, got %v", row.Scores[0])
	}
	if row.Scores[1] != nil {
		t.Error("unscored topic must export as null")
	}
	if len(sum.Orphans) != 1 || sum.Orphans[0].StudentID != "999" || *sum.Orphans[0].Scores[1] != 15 {
		t.Errorf("unexpected orphans %+v", sum.Orphans)
	}
	if sum.AnalysisDocument != nil {
		t.Error("draft has no analysis document yet")
	}

	if _, err := s.ExportDrafts(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
