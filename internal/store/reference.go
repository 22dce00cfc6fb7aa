package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/gradebook/internal/model"
)

// ensureNamed returns the id of the row called name in table, inserting it
// if needed. table is always a package constant.
func (s *Store) ensureNamed(ctx context.Context, table, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%s name is required", strings.TrimSuffix(table, "s"))
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id)
	return id, err
}

type namedRow struct {
	ID   int64
	Name string
}

func (s *Store) listNamed(ctx context.Context, table string) ([]namedRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []namedRow
	for rows.Next() {
		var r namedRow
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateSubject returns the id of the named subject, creating it if needed.
func (s *Store) CreateSubject(ctx context.Context, name string) (int64, error) {
	return s.ensureNamed(ctx, "subjects", name)
}

// CreateQuarter returns the id of the named quarter, creating it if needed.
func (s *Store) CreateQuarter(ctx context.Context, name string) (int64, error) {
	return s.ensureNamed(ctx, "quarters", name)
}

// CreateSection returns the id of the named section, creating it if needed.
func (s *Store) CreateSection(ctx context.Context, name string) (int64, error) {
	return s.ensureNamed(ctx, "sections", name)
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.listNamed(ctx, "subjects")
	if err != nil {
		return nil, err
	}
	out := make([]model.Subject, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Subject{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// ListQuarters returns all quarters ordered by name.
func (s *Store) ListQuarters(ctx context.Context) ([]model.Quarter, error) {
	rows, err := s.listNamed(ctx, "quarters")
	if err != nil {
		return nil, err
	}
	out := make([]model.Quarter, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Quarter{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// ListSections returns all sections ordered by name.
func (s *Store) ListSections(ctx context.Context) ([]model.Section, error) {
	rows, err := s.listNamed(ctx, "sections")
	if err != nil {
		return nil, err
	}
	out := make([]model.Section, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Section{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// GetSection returns a section by ID.
func (s *Store) GetSection(ctx context.Context, id int64) (model.Section, error) {
	var sec model.Section
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM sections WHERE id = ?`, id).Scan(&sec.ID, &sec.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return sec, fmt.Errorf("section %d: %w", id, ErrNotFound)
	}
	return sec, err
}

// UpsertStudent inserts a student or updates the existing row with the same LRN.
func (s *Store) UpsertStudent(ctx context.Context, st model.Student) error {
	if strings.TrimSpace(st.LRN) == "" {
		return errors.New("student LRN is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (lrn, first_name, middle_name, last_name, section_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(lrn) DO UPDATE SET first_name = excluded.first_name,
		   middle_name = excluded.middle_name, last_name = excluded.last_name,
		   section_id = excluded.section_id`,
		st.LRN, st.FirstName, st.MiddleName, st.LastName, st.SectionID,
	)
	return err
}

// ListStudents returns the roster of a section ordered by last then first name.
func (s *Store) ListStudents(ctx context.Context, sectionID int64) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lrn, first_name, middle_name, last_name, section_id FROM students
		 WHERE section_id = ? ORDER BY last_name, first_name, lrn`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.LRN, &st.FirstName, &st.MiddleName, &st.LastName, &st.SectionID); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}
