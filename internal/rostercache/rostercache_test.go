package rostercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pavelanni/gradebook/internal/model"
)

type countingSource struct {
	students []model.Student
	err      error
	calls    int
}

func (s *countingSource) GetSection(_ context.Context, id int64) (model.Section, error) {
	s.calls++
	return model.Section{ID: id, Name: "Section A"}, s.err
}

func (s *countingSource) GetStudents(_ context.Context, _ int64) ([]model.Student, error) {
	s.calls++
	return s.students, s.err
}

func setupCache(t *testing.T, src Source) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New("redis://"+mr.Addr(), src, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetStudentsCachesRoster(t *testing.T) {
	src := &countingSource{students: []model.Student{{LRN: "100", FirstName: "Ana", LastName: "Cruz", SectionID: 1}}}
	c, mr := setupCache(t, src)
	ctx := context.Background()

	for range 3 {
		got, err := c.GetStudents(ctx, 1)
		if err != nil {
			t.Fatalf("GetStudents: %v", err)
		}
		if len(got) != 1 || got[0].LRN != "100" {
			t.Fatalf("unexpected roster %+v", got)
		}
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.GetStudents(ctx, 1); err != nil {
		t.Fatalf("GetStudents after expiry: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected reload after TTL, got %d calls", src.calls)
	}
}

func TestGetSectionCached(t *testing.T) {
	src := &countingSource{}
	c, _ := setupCache(t, src)
	ctx := context.Background()

	for range 2 {
		sec, err := c.GetSection(ctx, 7)
		if err != nil || sec.Name != "Section A" || sec.ID != 7 {
			t.Fatalf("GetSection = %+v, %v", sec, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestInvalidate(t *testing.T) {
	src := &countingSource{students: []model.Student{{LRN: "100"}}}
	c, _ := setupCache(t, src)
	ctx := context.Background()

	c.GetStudents(ctx, 1)
	if err := c.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	c.GetStudents(ctx, 1)
	if src.calls != 2 {
		t.Errorf("expected reload after invalidate, got %d calls", src.calls)
	}
}

func TestSourceErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("backend down")}
	c, mr := setupCache(t, src)

	if _, err := c.GetStudents(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if mr.Exists("gradebook:roster:1") {
		t.Error("failed lookup should not be cached")
	}
}

func TestRedisDownFallsThrough(t *testing.T) {
	src := &countingSource{students: []model.Student{{LRN: "100"}}}
	c, mr := setupCache(t, src)
	mr.Close()

	got, err := c.GetStudents(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetStudents with redis down: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("unexpected roster %+v", got)
	}
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not-a-url", &countingSource{}, 0); err == nil {
		t.Error("expected error")
	}
}
