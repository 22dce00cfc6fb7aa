// Package session ties a draft's editable sheet to its debounced
// persistence and finalization. A Session serializes local mutations; saves
// run on their own and never block editing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/gradebook/internal/aggregate"
	"github.com/pavelanni/gradebook/internal/autosave"
	"github.com/pavelanni/gradebook/internal/debounce"
	"github.com/pavelanni/gradebook/internal/draft"
	"github.com/pavelanni/gradebook/internal/finalize"
	"github.com/pavelanni/gradebook/internal/i18n"
	"github.com/pavelanni/gradebook/internal/model"
)

const (
	DefaultScoreQuiet     = 2 * time.Second
	DefaultStructureQuiet = time.Second
)

var (
	// ErrFinalized is returned for edits of a draft that left the draft phase.
	ErrFinalized = errors.New("draft is finalized")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
)

// Config holds the editor parameters plus the test seams.
type Config struct {
	model.EditorConfig
	Clock            debounce.Clock
	Now              func() time.Time
	MaxNotifications int
}

func (c Config) withDefaults() Config {
	if c.ScoreQuiet <= 0 {
		c.ScoreQuiet = DefaultScoreQuiet
	}
	if c.StructureQuiet <= 0 {
		c.StructureQuiet = DefaultStructureQuiet
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.Clock == nil {
		c.Clock = debounce.RealClock
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MaxNotifications <= 0 {
		c.MaxNotifications = defaultMaxNotifications
	}
	return c
}

// Session is one open editor of one draft.
type Session struct {
	id      string
	cfg     Config
	drafts  DraftService
	rosters RosterService
	tr      i18n.Translator
	notes   *notifications
	saver   *autosave.Controller
	log     *slog.Logger

	mu     sync.Mutex
	header model.Draft // Content is not kept current; sheet is authoritative
	sheet  *draft.Sheet
	tx     *finalize.Transaction
	closed bool
}

// Open loads a draft and starts an editing session. An editable draft with
// an empty roster snapshot gets the current roster of its section.
func Open(ctx context.Context, id string, drafts DraftService, rosters RosterService, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	d, err := drafts.GetDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}

	s := &Session{
		id:      d.ID,
		cfg:     cfg,
		drafts:  drafts,
		rosters: rosters,
		tr:      i18n.NewTranslator(cfg.Lang),
		notes:   &notifications{max: cfg.MaxNotifications, now: cfg.Now},
		log:     slog.With("draft_id", d.ID),
		header:  d,
		sheet:   draft.New(d.Content),
		tx:      finalize.New(d.ID, d.Status, drafts, drafts),
	}
	s.header.Content = model.Content{}
	s.saver = autosave.New(s.persist,
		autosave.WithClock(cfg.Clock),
		autosave.WithNow(cfg.Now),
		autosave.WithLogger(s.log),
		autosave.WithErrorHandler(func(err error) {
			// A save still in flight when the draft was finalized is rejected
			// by the backend; the final persist already carried its content.
			if s.tx.Phase() != finalize.PhaseDraft {
				s.log.Debug("stale save rejected after finalization", "error", err)
				return
			}
			s.notes.push(LevelError, s.tr.Td("SaveFailed", map[string]any{"Error": err.Error()}))
		}),
	)

	if d.Status == model.StatusFinalized {
		if doc, err := drafts.GetAnalysisDocumentForDraft(ctx, d.ID); err != nil {
			s.log.Info("finalized draft has no analysis document", "error", err)
		} else {
			s.tx.Restore(doc)
		}
	}

	if d.Status == model.StatusDraft && len(s.sheet.Roster()) == 0 {
		if students, err := s.fetchRoster(ctx, d.SectionID); err != nil {
			s.log.Warn("roster load failed", "section_id", d.SectionID, "error", err)
			s.notes.push(LevelWarning, s.tr.Td("RosterRefreshFailed", map[string]any{"Error": err.Error()}))
		} else {
			s.sheet.ReplaceRoster(students)
		}
	}
	s.log.Info("editing session opened", "status", d.Status, "topics", len(s.sheet.Topics()))
	return s, nil
}

// ID returns the draft id.
func (s *Session) ID() string { return s.id }

func (s *Session) persist(ctx context.Context, content model.Content) error {
	_, err := s.drafts.UpdateDraft(ctx, s.id, model.DraftPatch{Content: &content})
	return err
}

func (s *Session) fetchRoster(ctx context.Context, sectionID int64) ([]model.StudentMeta, error) {
	sec, err := s.rosters.GetSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	students, err := s.rosters.GetStudents(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	out := make([]model.StudentMeta, 0, len(students))
	for _, st := range students {
		out = append(out, model.StudentMeta{
			StudentID: st.LRN,
			FirstName: st.FirstName,
			LastName:  st.LastName,
			Section:   sec.Name,
		})
	}
	return out, nil
}

// editableLocked reports why the sheet cannot be mutated, if it cannot.
func (s *Session) editableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.tx.Phase() != finalize.PhaseDraft {
		s.notes.push(LevelWarning, s.tr.T("DraftLocked"))
		return ErrFinalized
	}
	return nil
}

// rejectLocked turns a validation error into a user notification.
func (s *Session) rejectLocked(err error, topicMax int) error {
	switch {
	case errors.Is(err, draft.ErrLastTopic):
		s.notes.push(LevelWarning, s.tr.T("LastTopic"))
	case errors.Is(err, draft.ErrNotNumeric):
		s.notes.push(LevelWarning, s.tr.T("NotNumeric"))
	case errors.Is(err, draft.ErrScoreOutOfRange):
		s.notes.push(LevelWarning, s.tr.Td("ScoreOutOfRange", map[string]any{"Max": topicMax}))
	}
	return err
}

func (s *Session) scheduleLocked(quiet time.Duration) {
	s.saver.Schedule(s.sheet.Snapshot(), quiet)
}

// AddTopic appends a topic. An empty name gets a default.
func (s *Session) AddTopic(name string, maxScore int) (model.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return model.Topic{}, err
	}
	t, err := s.sheet.AddTopic(name, maxScore)
	if err != nil {
		return t, s.rejectLocked(err, 0)
	}
	s.scheduleLocked(s.cfg.StructureQuiet)
	return t, nil
}

// RemoveTopic removes a topic and its score column.
func (s *Session) RemoveTopic(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if err := s.sheet.RemoveTopic(id); err != nil {
		return s.rejectLocked(err, 0)
	}
	s.scheduleLocked(s.cfg.StructureQuiet)
	return nil
}

// RenameTopic changes a topic's display name.
func (s *Session) RenameTopic(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if err := s.sheet.RenameTopic(id, name); err != nil {
		return s.rejectLocked(err, 0)
	}
	s.scheduleLocked(s.cfg.ScoreQuiet)
	return nil
}

// ResizeTopic changes a topic's max score for future entries.
func (s *Session) ResizeTopic(id string, maxScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if err := s.sheet.ResizeTopic(id, maxScore); err != nil {
		return s.rejectLocked(err, 0)
	}
	s.scheduleLocked(s.cfg.StructureQuiet)
	return nil
}

// SetScore records a student's score on a topic from raw form input.
func (s *Session) SetScore(studentID, topicID, raw string) (model.ScoreCell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return model.ScoreCell{}, err
	}
	cell, err := s.sheet.SetScore(studentID, topicID, raw)
	if err != nil {
		t, _ := s.sheet.Topic(topicID)
		return cell, s.rejectLocked(err, t.MaxScore)
	}
	s.scheduleLocked(s.cfg.ScoreQuiet)
	return cell, nil
}

// SetPostTestMaxScore records the post-test ceiling from raw form input.
func (s *Session) SetPostTestMaxScore(raw string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return 0, err
	}
	v, err := s.sheet.SetPostTestMaxScore(raw)
	if err != nil {
		return 0, s.rejectLocked(err, 0)
	}
	s.scheduleLocked(s.cfg.StructureQuiet)
	return v, nil
}

// UpdateHeader validates and immediately persists the draft header. A new
// section replaces the roster snapshot; scores are never dropped.
func (s *Session) UpdateHeader(ctx context.Context, in model.DraftInput) (model.Draft, error) {
	if err := in.Validate(); err != nil {
		return model.Draft{}, err
	}

	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return model.Draft{}, err
	}
	sectionChanged := in.SectionID != s.header.SectionID
	s.mu.Unlock()

	updated, err := s.drafts.UpdateDraft(ctx, s.id, model.DraftPatch{
		Title:     &in.Title,
		SubjectID: &in.SubjectID,
		QuarterID: &in.QuarterID,
		SectionID: &in.SectionID,
	})
	if err != nil {
		s.log.Warn("header update failed", "error", err)
		s.notes.push(LevelError, s.tr.Td("HeaderSaveFailed", map[string]any{"Error": err.Error()}))
		return model.Draft{}, err
	}

	s.mu.Lock()
	updated.Content = model.Content{}
	s.header = updated
	s.mu.Unlock()

	if sectionChanged {
		if err := s.RefreshRoster(ctx); err != nil {
			s.log.Warn("roster refresh failed", "section_id", in.SectionID, "error", err)
		}
	}
	return updated, nil
}

// RefreshRoster replaces the roster snapshot with the current students of
// the draft's section and schedules a save. Scores of students who left the
// section stay in the matrix.
func (s *Session) RefreshRoster(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	sectionID := s.header.SectionID
	s.mu.Unlock()

	students, err := s.fetchRoster(ctx, sectionID)
	if err != nil {
		s.notes.push(LevelWarning, s.tr.Td("RosterRefreshFailed", map[string]any{"Error": err.Error()}))
		return fmt.Errorf("fetch roster of section %d: %w", sectionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.sheet.ReplaceRoster(students)
	s.scheduleLocked(s.cfg.StructureQuiet)
	s.notes.push(LevelInfo, s.tr.Tp("RosterLoaded", len(students), nil))
	if n := len(orphans(s.sheet.Roster(), s.sheet.Scores())); n > 0 {
		s.notes.push(LevelWarning, s.tr.Tp("OrphanedScores", n, nil))
	}
	return nil
}

// Content returns a snapshot of the full draft content, including scores of
// students outside the current roster.
func (s *Session) Content() model.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Snapshot()
}

// SaveNow persists the current state immediately. A pending debounced save
// is left in place.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.tx.Phase() != finalize.PhaseDraft {
		s.mu.Unlock()
		return ErrFinalized
	}
	content := s.sheet.Snapshot()
	s.mu.Unlock()

	if err := s.saver.SaveNow(ctx, content); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	s.notes.push(LevelInfo, s.tr.T("DraftSaved"))
	return nil
}

// Status is the persistence and finalization state of a session.
type Status struct {
	Save     autosave.Status         `json:"save"`
	Phase    finalize.Phase          `json:"phase"`
	Document *model.AnalysisDocument `json:"analysis_document,omitempty"`
}

// Status reports the current state.
func (s *Session) Status() Status {
	res := s.tx.Result()
	return Status{Save: s.saver.Status(), Phase: res.Phase, Document: res.Document}
}

// Finalize locks the draft: it cancels any pending save, persists the full
// state with status finalized and requests the analysis document.
func (s *Session) Finalize(ctx context.Context) (finalize.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.tx.Result(), ErrClosed
	}

	if s.tx.Phase() != finalize.PhaseDraft {
		return s.tx.Result(), fmt.Errorf("finalize: %w", finalize.ErrWrongPhase)
	}
	content := s.sheet.Snapshot()
	if content.PostTestMaxScore <= 0 {
		s.notes.push(LevelWarning, s.tr.T("PostTestRequired"))
		return s.tx.Result(), finalize.ErrInvalidPostTestMax
	}

	hadPending := s.saver.Cancel()
	res, err := s.tx.Run(ctx, content)
	switch {
	case errors.Is(err, finalize.ErrPersist):
		if hadPending {
			s.saver.Schedule(content, s.cfg.StructureQuiet)
		}
		s.notes.push(LevelError, s.tr.Td("FinalizeFailed", map[string]any{"Error": err.Error()}))
	case errors.Is(err, finalize.ErrAnalysis):
		s.header.Status = model.StatusFinalized
		s.notes.push(LevelError, s.tr.Td("AnalysisFailed", map[string]any{"Error": err.Error()}))
	case err == nil:
		s.header.Status = model.StatusFinalized
		s.notes.push(LevelInfo, s.tr.Td("Finalized", map[string]any{"ID": res.Document.ID}))
	}
	return res, err
}

// RetryAnalysis re-requests the analysis document of a draft that was
// finalized without one.
func (s *Session) RetryAnalysis(ctx context.Context) (finalize.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.tx.Result(), ErrClosed
	}
	res, err := s.tx.RetryAnalysis(ctx)
	switch {
	case errors.Is(err, finalize.ErrAnalysis):
		s.notes.push(LevelError, s.tr.Td("AnalysisFailed", map[string]any{"Error": err.Error()}))
	case err == nil:
		s.notes.push(LevelInfo, s.tr.Td("Finalized", map[string]any{"ID": res.Document.ID}))
	}
	return res, err
}

// Notifications returns and clears the queued notifications.
func (s *Session) Notifications() []Notification {
	return s.notes.drain()
}

// Flush fires a pending save now and waits for in-flight saves.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Close flushes pending edits, waits for in-flight saves and stops the
// session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ferr := s.saver.Flush(ctx)
	cerr := s.saver.Close(ctx)
	s.log.Info("editing session closed")
	return errors.Join(ferr, cerr)
}

// Row is one visible student of the editor grid.
type Row struct {
	Student      model.StudentMeta          `json:"student"`
	Scores       map[string]model.ScoreCell `json:"scores"`
	Completeness aggregate.Class            `json:"completeness"`
	AtRisk       bool                       `json:"at_risk"`
}

// View is the editor grid: header, topics and the filtered roster rows.
type View struct {
	ID               string            `json:"test_draft_id"`
	Title            string            `json:"title"`
	SubjectID        int64             `json:"subject"`
	QuarterID        int64             `json:"quarter"`
	SectionID        int64             `json:"section_id"`
	Status           model.DraftStatus `json:"status"`
	Topics           []model.Topic     `json:"topics"`
	PostTestMaxScore int               `json:"post_test_max_score"`
	Rows             []Row             `json:"rows"`
	Summary          aggregate.Summary `json:"summary"`
	HiddenScored     int               `json:"hidden_scored_students"`
	Session          Status            `json:"session"`
}

// View renders the roster filtered by q. Students with scores who are not
// in the roster snapshot are counted but not rendered.
func (s *Session) View(q aggregate.Query) View {
	s.mu.Lock()
	topics := s.sheet.Topics()
	roster := s.sheet.Roster()
	scores := s.sheet.Scores()
	v := View{
		ID:               s.header.ID,
		Title:            s.header.Title,
		SubjectID:        s.header.SubjectID,
		QuarterID:        s.header.QuarterID,
		SectionID:        s.header.SectionID,
		Status:           s.header.Status,
		Topics:           topics,
		PostTestMaxScore: s.sheet.PostTestMaxScore(),
	}
	s.mu.Unlock()

	students := make([]model.Student, 0, len(roster))
	meta := make(map[string]model.StudentMeta, len(roster))
	for _, m := range roster {
		students = append(students, model.Student{LRN: m.StudentID, FirstName: m.FirstName, LastName: m.LastName})
		meta[m.StudentID] = m
	}

	v.Rows = []Row{}
	for _, st := range aggregate.Filter(students, topics, scores, q) {
		row := scores[st.LRN]
		if row == nil {
			row = map[string]model.ScoreCell{}
		}
		v.Rows = append(v.Rows, Row{
			Student:      meta[st.LRN],
			Scores:       row,
			Completeness: aggregate.Completeness(topics, scores, st.LRN),
			AtRisk:       aggregate.AtRisk(topics, scores, st.LRN),
		})
	}
	v.Summary = aggregate.Summarize(students, topics, scores)
	v.HiddenScored = len(orphans(roster, scores))
	v.Session = s.Status()
	return v
}

// orphans returns the LRNs with score cells that are not in roster.
func orphans(roster []model.StudentMeta, scores model.ScoreMatrix) []string {
	in := make(map[string]bool, len(roster))
	for _, m := range roster {
		in[m.StudentID] = true
	}
	var out []string
	for lrn, row := range scores {
		if !in[lrn] && len(row) > 0 {
			out = append(out, lrn)
		}
	}
	return out
}
