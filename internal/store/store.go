package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/gradebook/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a draft, document or reference row is missing.
	ErrNotFound = errors.New("not found")
	// ErrStatusTransition is returned when a finalized draft would go back to draft.
	ErrStatusTransition = errors.New("finalized draft cannot return to draft")
	// ErrDraftFinalized is returned when a finalized draft would be edited.
	ErrDraftFinalized = errors.New("draft is finalized")
	// ErrDraftNotFinalized is returned when analysis is requested for an editable draft.
	ErrDraftNotFinalized = errors.New("draft is not finalized")
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS quarters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS students (
		lrn TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		middle_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL,
		section_id INTEGER NOT NULL,
		FOREIGN KEY (section_id) REFERENCES sections(id)
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		quarter_id INTEGER NOT NULL,
		section_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		draft_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (draft_id) REFERENCES drafts(id)
	);

	CREATE TABLE IF NOT EXISTS analysis_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		draft_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		quarter_id INTEGER NOT NULL,
		section_id INTEGER NOT NULL,
		post_test_max_score REAL NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		insights TEXT NOT NULL DEFAULT '',
		upload_date DATETIME NOT NULL,
		FOREIGN KEY (draft_id) REFERENCES drafts(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// encodeContent marshals content with empty collections instead of nulls.
func encodeContent(c model.Content) (string, error) {
	if c.Topics == nil {
		c.Topics = []model.Topic{}
	}
	if c.Students == nil {
		c.Students = []model.StudentMeta{}
	}
	if c.Scores == nil {
		c.Scores = model.ScoreMatrix{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(b), nil
}

func decodeContent(raw string) (model.Content, error) {
	var c model.Content
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("decode content: %w", err)
	}
	if c.Scores == nil {
		c.Scores = model.ScoreMatrix{}
	}
	return c, nil
}

const draftColumns = `id, title, subject_id, quarter_id, section_id, status, content, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (model.Draft, error) {
	var (
		d   model.Draft
		raw string
	)
	if err := row.Scan(&d.ID, &d.Title, &d.SubjectID, &d.QuarterID, &d.SectionID,
		&d.Status, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	c, err := decodeContent(raw)
	if err != nil {
		return d, err
	}
	d.Content = c
	return d, nil
}

func getDraft(ctx context.Context, q queryer, id string) (model.Draft, error) {
	d, err := scanDraft(q.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return d, err
}

// CreateDraft creates an empty draft. A non-empty key makes the call
// idempotent: repeating it returns the draft first created with that key.
func (s *Store) CreateDraft(ctx context.Context, key string, in model.DraftInput) (model.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Draft{}, err
	}
	defer tx.Rollback()

	if key != "" {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT draft_id FROM idempotency_keys WHERE key = ?`, key).Scan(&existing)
		switch {
		case err == nil:
			return getDraft(ctx, tx, existing)
		case !errors.Is(err, sql.ErrNoRows):
			return model.Draft{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	now := s.now()
	d := model.Draft{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(in.Title),
		SubjectID: in.SubjectID,
		QuarterID: in.QuarterID,
		SectionID: in.SectionID,
		Status:    model.StatusDraft,
		Content:   model.Content{Topics: []model.Topic{}, Students: []model.StudentMeta{}, Scores: model.ScoreMatrix{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := encodeContent(d.Content)
	if err != nil {
		return model.Draft{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drafts (`+draftColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.SubjectID, d.QuarterID, d.SectionID, d.Status, raw, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		return model.Draft{}, fmt.Errorf("insert draft: %w", err)
	}
	if key != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO idempotency_keys (key, draft_id, created_at) VALUES (?, ?, ?)`,
			key, d.ID, now,
		); err != nil {
			return model.Draft{}, fmt.Errorf("insert idempotency key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Draft{}, err
	}
	slog.Info("created draft", "id", d.ID, "title", d.Title)
	return d, nil
}

// GetDraft returns a draft by ID.
func (s *Store) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	return getDraft(ctx, s.db, id)
}

// UpdateDraft applies patch to a draft. A non-nil Content replaces the stored
// content as a whole. Finalized drafts only accept a repeated finalization.
func (s *Store) UpdateDraft(ctx context.Context, id string, patch model.DraftPatch) (model.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Draft{}, err
	}
	defer tx.Rollback()

	d, err := getDraft(ctx, tx, id)
	if err != nil {
		return d, err
	}

	if patch.Status != nil && !patch.Status.Valid() {
		return d, fmt.Errorf("%w: invalid status %q", model.ErrInvalidInput, *patch.Status)
	}
	if d.Status == model.StatusFinalized {
		if patch.Status != nil && *patch.Status == model.StatusDraft {
			return d, ErrStatusTransition
		}
		if patch.Status == nil {
			return d, fmt.Errorf("update draft %s: %w", id, ErrDraftFinalized)
		}
	}

	if patch.Title != nil {
		d.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.SubjectID != nil {
		d.SubjectID = *patch.SubjectID
	}
	if patch.QuarterID != nil {
		d.QuarterID = *patch.QuarterID
	}
	if patch.SectionID != nil {
		d.SectionID = *patch.SectionID
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Content != nil {
		d.Content = patch.Content.Clone()
	}
	d.UpdatedAt = s.now()

	raw, err := encodeContent(d.Content)
	if err != nil {
		return d, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE drafts SET title = ?, subject_id = ?, quarter_id = ?, section_id = ?, status = ?, content = ?, updated_at = ?
		 WHERE id = ?`,
		d.Title, d.SubjectID, d.QuarterID, d.SectionID, d.Status, raw, d.UpdatedAt, id,
	); err != nil {
		return d, fmt.Errorf("update draft: %w", err)
	}
	return d, tx.Commit()
}

// ListDrafts returns drafts matching the filter, most recently updated first.
// Zero filter fields mean no filtering on that field.
func (s *Store) ListDrafts(ctx context.Context, f model.DraftFilter) ([]model.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE 1=1`
	var args []any
	if f.Search != "" {
		query += ` AND title LIKE ?`
		args = append(args, "%"+f.Search+"%")
	}
	if f.SubjectID != 0 {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.QuarterID != 0 {
		query += ` AND quarter_id = ?`
		args = append(args, f.QuarterID)
	}
	if f.SectionID != 0 {
		query += ` AND section_id = ?`
		args = append(args, f.SectionID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drafts []model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// DraftCount returns the number of drafts in the database.
func (s *Store) DraftCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts`).Scan(&count)
	return count, err
}

const analysisColumns = `id, draft_id, title, subject_id, quarter_id, section_id, post_test_max_score, processed, insights, upload_date`

func scanAnalysis(row scanner) (model.AnalysisDocument, error) {
	var doc model.AnalysisDocument
	err := row.Scan(&doc.ID, &doc.DraftID, &doc.Title, &doc.SubjectID, &doc.QuarterID, &doc.SectionID,
		&doc.PostTestMaxScore, &doc.Processed, &doc.Insights, &doc.UploadDate)
	return doc, err
}

// CreateAnalysisDocument creates the analysis document of a finalized
// draft. A draft has at most one document; asking again returns it.
func (s *Store) CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AnalysisDocument{}, err
	}
	defer tx.Rollback()

	d, err := getDraft(ctx, tx, draftID)
	if err != nil {
		return model.AnalysisDocument{}, err
	}
	if d.Status != model.StatusFinalized {
		return model.AnalysisDocument{}, fmt.Errorf("analysis for draft %s: %w", draftID, ErrDraftNotFinalized)
	}

	doc, err := scanAnalysis(tx.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_documents WHERE draft_id = ?`, draftID))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return doc, err
	}

	doc = model.AnalysisDocument{
		DraftID:          d.ID,
		Title:            d.Title,
		SubjectID:        d.SubjectID,
		QuarterID:        d.QuarterID,
		SectionID:        d.SectionID,
		PostTestMaxScore: float64(d.Content.PostTestMaxScore),
		UploadDate:       s.now(),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_documents (draft_id, title, subject_id, quarter_id, section_id, post_test_max_score, processed, insights, upload_date)
		 VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)`,
		doc.DraftID, doc.Title, doc.SubjectID, doc.QuarterID, doc.SectionID, doc.PostTestMaxScore, doc.UploadDate,
	)
	if err != nil {
		return doc, fmt.Errorf("insert analysis document: %w", err)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return doc, err
	}
	return doc, tx.Commit()
}

// GetAnalysisDocument returns a document by ID.
func (s *Store) GetAnalysisDocument(ctx context.Context, id int64) (model.AnalysisDocument, error) {
	doc, err := scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return doc, fmt.Errorf("analysis document %d: %w", id, ErrNotFound)
	}
	return doc, err
}

// GetAnalysisDocumentForDraft returns the document created from a draft.
func (s *Store) GetAnalysisDocumentForDraft(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	doc, err := scanAnalysis(s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_documents WHERE draft_id = ?`, draftID))
	if errors.Is(err, sql.ErrNoRows) {
		return doc, fmt.Errorf("analysis document for draft %s: %w", draftID, ErrNotFound)
	}
	return doc, err
}

// SetAnalysisInsights stores generated insights and marks the document processed.
func (s *Store) SetAnalysisInsights(ctx context.Context, id int64, insights string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_documents SET insights = ?, processed = 1 WHERE id = ?`, insights, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("analysis document %d: %w", id, ErrNotFound)
	}
	return nil
}
