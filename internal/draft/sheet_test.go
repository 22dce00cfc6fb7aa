package draft

import (
	"errors"
	"testing"

	"github.com/pavelanni/gradebook/internal/model"
)

func newTestSheet(t *testing.T, topics ...model.Topic) *Sheet {
	t.Helper()
	s := New(model.Content{Topics: topics, PostTestMaxScore: 60})
	n := 0
	s.newID = func() string {
		n++
		return "t" + string(rune('0'+n))
	}
	return s
}

func TestNewSeedsDefaultTopic(t *testing.T) {
	s := New(model.Content{})
	topics := s.Topics()
	if len(topics) != 1 {
		t.Fatalf("expected 1 seeded topic, got %d", len(topics))
	}
	if topics[0].Name != DefaultTopicName || topics[0].MaxScore != DefaultMaxScore {
		t.Errorf("unexpected seeded topic %+v", topics[0])
	}
	if s.PostTestMaxScore() != DefaultPostTestMaxScore {
		t.Errorf("expected post-test max %d, got %d", DefaultPostTestMaxScore, s.PostTestMaxScore())
	}
}

func TestAddTopic(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "quiz1", Name: "Quiz1", MaxScore: 10})

	topic, err := s.AddTopic("", 20)
	if err != nil {
		t.Fatalf("AddTopic: %v", err)
	}
	if topic.Name != "Topic 2" {
		t.Errorf("expected default name 'Topic 2', got %q", topic.Name)
	}
	if topic.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", topic.Sequence)
	}

	if _, err := s.AddTopic("Bad", 0); !errors.Is(err, ErrInvalidMaxScore) {
		t.Errorf("expected ErrInvalidMaxScore, got %v", err)
	}
	if len(s.Topics()) != 2 {
		t.Errorf("rejected add must not change the registry")
	}
}

// Scenario A: a score above the ceiling is rejected and the cell stays absent.
func TestSetScoreRejectsAboveMax(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "quiz1", Name: "Quiz1", MaxScore: 10})

	if _, err := s.SetScore("S1", "quiz1", "12"); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if _, ok := s.Score("S1", "quiz1"); ok {
		t.Fatal("cell should remain absent after rejected write")
	}

	cell, err := s.SetScore("S1", "quiz1", "7")
	if err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if cell.Score != 7 || cell.MaxScore != 10 || cell.StudentID != "S1" || cell.Sequence != 1 {
		t.Errorf("unexpected cell %+v", cell)
	}
}

func TestSetScoreKeepsPreviousValue(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "quiz1", Name: "Quiz1", MaxScore: 10})
	if _, err := s.SetScore("S1", "quiz1", "4"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"above max", "11", ErrScoreOutOfRange},
		{"negative", "-1", ErrScoreOutOfRange},
		{"not numeric", "abc", ErrNotNumeric},
		{"fraction", "3.5", ErrNotNumeric},
		{"unknown topic", "1", ErrTopicNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topicID := "quiz1"
			if tt.want == ErrTopicNotFound {
				topicID = "missing"
			}
			if _, err := s.SetScore("S1", topicID, tt.raw); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			cell, ok := s.Score("S1", "quiz1")
			if !ok || cell.Score != 4 {
				t.Errorf("expected prior score 4 to remain, got %+v (present=%v)", cell, ok)
			}
		})
	}
}

func TestZeroIsDistinctFromAbsent(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "quiz1", Name: "Quiz1", MaxScore: 10})
	if _, err := s.SetScore("S1", "quiz1", ""); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	cell, ok := s.Score("S1", "quiz1")
	if !ok || cell.Score != 0 {
		t.Errorf("expected stored zero, got %+v present=%v", cell, ok)
	}
	if _, ok := s.Score("S2", "quiz1"); ok {
		t.Error("unscored student should have no cell")
	}
}

// Scenario B: removing a topic drops its column and renumbers the rest.
func TestRemoveTopicCascades(t *testing.T) {
	s := newTestSheet(t,
		model.Topic{ID: "a", Name: "A", MaxScore: 10},
		model.Topic{ID: "b", Name: "B", MaxScore: 10},
	)
	for _, lrn := range []string{"S1", "S2", "orphan"} {
		if _, err := s.SetScore(lrn, "a", "5"); err != nil {
			t.Fatalf("SetScore a: %v", err)
		}
		if _, err := s.SetScore(lrn, "b", "6"); err != nil {
			t.Fatalf("SetScore b: %v", err)
		}
	}

	if err := s.RemoveTopic("a"); err != nil {
		t.Fatalf("RemoveTopic: %v", err)
	}
	content := s.Snapshot()
	for lrn, row := range content.Scores {
		if _, ok := row["a"]; ok {
			t.Errorf("student %s still has a cell for removed topic", lrn)
		}
		cell, ok := row["b"]
		if !ok {
			t.Errorf("student %s lost the cell of the remaining topic", lrn)
			continue
		}
		if cell.Sequence != 1 {
			t.Errorf("student %s cell test_number = %d, want 1", lrn, cell.Sequence)
		}
	}
	if len(content.Topics) != 1 || content.Topics[0].ID != "b" || content.Topics[0].Sequence != 1 {
		t.Errorf("unexpected topics after removal: %+v", content.Topics)
	}
}

func TestRemoveLastTopicIsNoop(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "only", Name: "Only", MaxScore: 10})
	if err := s.RemoveTopic("only"); !errors.Is(err, ErrLastTopic) {
		t.Fatalf("expected ErrLastTopic, got %v", err)
	}
	if len(s.Topics()) != 1 {
		t.Fatal("registry must never become empty")
	}
	if err := s.RemoveTopic("missing"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestResizeDoesNotRescaleStoredScores(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "q", Name: "Q", MaxScore: 10})
	if _, err := s.SetScore("S1", "q", "9"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if err := s.ResizeTopic("q", 5); err != nil {
		t.Fatalf("ResizeTopic: %v", err)
	}
	cell, _ := s.Score("S1", "q")
	if cell.Score != 9 || cell.MaxScore != 10 {
		t.Errorf("stored cell changed after resize: %+v", cell)
	}
	if _, err := s.SetScore("S2", "q", "9"); !errors.Is(err, ErrScoreOutOfRange) {
		t.Errorf("new ceiling should apply to future writes, got %v", err)
	}
	if err := s.ResizeTopic("q", 0); !errors.Is(err, ErrInvalidMaxScore) {
		t.Errorf("expected ErrInvalidMaxScore, got %v", err)
	}
}

func TestRenameTopic(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "q", Name: "Q", MaxScore: 10})
	if err := s.RenameTopic("q", "Fractions"); err != nil {
		t.Fatalf("RenameTopic: %v", err)
	}
	topic, ok := s.Topic("q")
	if !ok || topic.Name != "Fractions" {
		t.Errorf("expected renamed topic, got %+v", topic)
	}
	if err := s.RenameTopic("missing", "x"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestReplaceRosterKeepsScores(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "q", Name: "Q", MaxScore: 10})
	s.ReplaceRoster([]model.StudentMeta{{StudentID: "A1", Section: "A"}})
	if _, err := s.SetScore("A1", "q", "8"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	s.ReplaceRoster([]model.StudentMeta{{StudentID: "B1", Section: "B"}})
	if got := s.Roster(); len(got) != 1 || got[0].StudentID != "B1" {
		t.Errorf("unexpected roster %+v", got)
	}
	if cell, ok := s.Score("A1", "q"); !ok || cell.Score != 8 {
		t.Error("score of a student outside the roster must be preserved")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestSheet(t, model.Topic{ID: "q", Name: "Q", MaxScore: 10})
	if _, err := s.SetScore("S1", "q", "3"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	snap := s.Snapshot()
	if _, err := s.SetScore("S1", "q", "4"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if snap.Scores["S1"]["q"].Score != 3 {
		t.Error("snapshot must not observe later edits")
	}
	if snap.PostTestMaxScore != 60 {
		t.Errorf("expected post-test max 60, got %d", snap.PostTestMaxScore)
	}
}

func TestSetPostTestMaxScore(t *testing.T) {
	s := newTestSheet(t)
	if _, err := s.SetPostTestMaxScore("abc"); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", err)
	}
	if s.PostTestMaxScore() != 60 {
		t.Errorf("rejected value must not change state")
	}
	v, err := s.SetPostTestMaxScore("0")
	if err != nil || v != 0 {
		t.Errorf("zero should be accepted locally, got %d, %v", v, err)
	}
}
