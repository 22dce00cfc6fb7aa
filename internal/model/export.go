package model

import "time"

// DraftExport is the top-level JSON structure written by the export command.
type DraftExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	Drafts     []DraftSummary `json:"drafts"`
}

// DraftSummary holds one draft with its resolved header names for export.
type DraftSummary struct {
	ID               string       `json:"test_draft_id"`
	Title            string       `json:"title"`
	Subject          string       `json:"subject"`
	Quarter          string       `json:"quarter"`
	Section          string       `json:"section"`
	Status           DraftStatus  `json:"status"`
	PostTestMaxScore int          `json:"post_test_max_score"`
	Topics           []Topic      `json:"topics"`
	Rows             []StudentRow `json:"rows"`
	Orphans          []StudentRow `json:"orphans,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
	AnalysisDocument *int64       `json:"analysis_document_id,omitempty"`
}

// StudentRow is one student's scores ordered by topic sequence.
// A nil entry in Scores means the topic is not yet scored.
type StudentRow struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Scores    []*int `json:"scores"`
}

// RosterImport is used for loading sections and students from JSON.
type RosterImport struct {
	Section  string    `json:"section"`
	Students []Student `json:"students"`
}
