package model

import (
	"time"
)

// DraftStatus represents the lifecycle state of an assessment draft.
type DraftStatus string

const (
	// StatusDraft is an editable draft.
	StatusDraft DraftStatus = "draft"
	// StatusFinalized is terminal; no further topic or score edits are allowed.
	StatusFinalized DraftStatus = "finalized"
)

// Valid reports whether s is a known status.
func (s DraftStatus) Valid() bool {
	return s == StatusDraft || s == StatusFinalized
}

// Subject is a subject taught in a quarter (e.g. Mathematics).
type Subject struct {
	ID   int64  `json:"subject_id"`
	Name string `json:"subject_name"`
}

// Quarter is a grading period.
type Quarter struct {
	ID   int64  `json:"quarter_id"`
	Name string `json:"quarter_name"`
}

// Section is a class section; students belong to exactly one section.
type Section struct {
	ID   int64  `json:"section_id"`
	Name string `json:"section_name"`
}

// Student is a roster entry keyed by LRN.
type Student struct {
	LRN        string `json:"lrn"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name"`
	SectionID  int64  `json:"section_id"`
}

// Topic is one gradable component of an assessment.
type Topic struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MaxScore int    `json:"max_score"`
	Sequence int    `json:"test_number"`
}

// ScoreCell is a single student's score on a single topic.
// MaxScore is the topic ceiling at the time the score was entered.
type ScoreCell struct {
	Score     int    `json:"score"`
	StudentID string `json:"student_id"`
	MaxScore  int    `json:"max_score"`
	Sequence  int    `json:"test_number"`
}

// ScoreMatrix maps student LRN -> topic ID -> cell. A missing entry means
// the student has not been scored on that topic.
type ScoreMatrix map[string]map[string]ScoreCell

// StudentMeta is the roster snapshot entry stored with draft content.
type StudentMeta struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Section   string `json:"section"`
}

// Content is the persisted payload of a draft.
type Content struct {
	Topics           []Topic       `json:"topics"`
	Students         []StudentMeta `json:"students"`
	Scores           ScoreMatrix   `json:"scores"`
	PostTestMaxScore int           `json:"post_test_max_score"`
}

// Clone returns a deep copy of c.
func (c Content) Clone() Content {
	out := Content{
		Topics:           append([]Topic(nil), c.Topics...),
		Students:         append([]StudentMeta(nil), c.Students...),
		Scores:           make(ScoreMatrix, len(c.Scores)),
		PostTestMaxScore: c.PostTestMaxScore,
	}
	for lrn, row := range c.Scores {
		cp := make(map[string]ScoreCell, len(row))
		for id, cell := range row {
			cp[id] = cell
		}
		out.Scores[lrn] = cp
	}
	return out
}

// Draft is an assessment record that is edited until finalized.
type Draft struct {
	ID        string      `json:"test_draft_id"`
	Title     string      `json:"title"`
	SubjectID int64       `json:"subject"`
	QuarterID int64       `json:"quarter"`
	SectionID int64       `json:"section_id"`
	Status    DraftStatus `json:"status"`
	Content   Content     `json:"test_content"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DraftInput holds the header fields needed to create a draft.
type DraftInput struct {
	Title     string `json:"title" validate:"required,max=100"`
	SubjectID int64  `json:"subject" validate:"required,gt=0"`
	QuarterID int64  `json:"quarter" validate:"required,gt=0"`
	SectionID int64  `json:"section_id" validate:"required,gt=0"`
}

// DraftPatch is a partial update of a draft. Nil fields are left untouched;
// a non-nil Content replaces the stored content entirely.
type DraftPatch struct {
	Title     *string      `json:"title,omitempty"`
	SubjectID *int64       `json:"subject,omitempty"`
	QuarterID *int64       `json:"quarter,omitempty"`
	SectionID *int64       `json:"section_id,omitempty"`
	Status    *DraftStatus `json:"status,omitempty"`
	Content   *Content     `json:"test_content,omitempty"`
}

// DraftFilter narrows ListDrafts. Zero values mean no filtering.
type DraftFilter struct {
	Search    string
	SubjectID int64
	QuarterID int64
	SectionID int64
	Status    DraftStatus
}

// AnalysisDocument is the artifact created from a finalized draft.
type AnalysisDocument struct {
	ID               int64     `json:"analysis_document_id"`
	DraftID          string    `json:"test_draft_id"`
	Title            string    `json:"analysis_doc_title"`
	SubjectID        int64     `json:"subject"`
	QuarterID        int64     `json:"quarter"`
	SectionID        int64     `json:"section_id"`
	PostTestMaxScore float64   `json:"post_test_max_score"`
	Processed        bool      `json:"status"`
	Insights         string    `json:"insights,omitempty"`
	UploadDate       time.Time `json:"upload_date"`
}

// EditorConfig holds runtime parameters of editing sessions set via CLI flags.
type EditorConfig struct {
	ScoreQuiet     time.Duration // debounce quiet period after score edits and renames
	StructureQuiet time.Duration // quiet period after structural edits
	Lang           string        // notification language (en, fil)
}
