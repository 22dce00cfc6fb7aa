// Package draft holds the editable state of an assessment draft: the ordered
// topic registry, the sparse score matrix and the roster snapshot.
//
// A Sheet is not safe for concurrent use. Callers serialize mutations.
package draft

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/gradebook/internal/model"
)

const (
	// DefaultTopicName names the topic seeded into empty content.
	DefaultTopicName = "General Topic"
	// DefaultMaxScore is the max score of seeded and newly added topics.
	DefaultMaxScore = 50
	// DefaultPostTestMaxScore is used when content carries no post-test max.
	DefaultPostTestMaxScore = 50
)

// Sheet is the in-memory topic × student score table of one draft.
type Sheet struct {
	topics      []model.Topic
	scores      model.ScoreMatrix
	roster      []model.StudentMeta
	postTestMax int
	newID       func() string
}

// New builds a sheet from persisted content. Empty content is seeded with a
// single default topic so the registry is never empty.
func New(content model.Content) *Sheet {
	c := content.Clone()
	s := &Sheet{
		topics:      c.Topics,
		scores:      c.Scores,
		roster:      c.Students,
		postTestMax: c.PostTestMaxScore,
		newID:       func() string { return uuid.NewString() },
	}
	if len(s.topics) == 0 {
		s.topics = []model.Topic{{
			ID:       s.newID(),
			Name:     DefaultTopicName,
			MaxScore: DefaultMaxScore,
			Sequence: 1,
		}}
	}
	if s.postTestMax == 0 {
		s.postTestMax = DefaultPostTestMaxScore
	}
	return s
}

// Topics returns a copy of the registry in display order.
func (s *Sheet) Topics() []model.Topic {
	out := make([]model.Topic, len(s.topics))
	for i, t := range s.topics {
		t.Sequence = i + 1
		out[i] = t
	}
	return out
}

// Topic returns the topic with the given id.
func (s *Sheet) Topic(id string) (model.Topic, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return model.Topic{}, false
	}
	t := s.topics[i]
	t.Sequence = i + 1
	return t, true
}

// AddTopic appends a topic with a fresh id. An empty name becomes "Topic N".
func (s *Sheet) AddTopic(name string, maxScore int) (model.Topic, error) {
	if maxScore <= 0 {
		return model.Topic{}, ErrInvalidMaxScore
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Topic %d", len(s.topics)+1)
	}
	t := model.Topic{
		ID:       s.newID(),
		Name:     name,
		MaxScore: maxScore,
		Sequence: len(s.topics) + 1,
	}
	s.topics = append(s.topics, t)
	return t, nil
}

// RemoveTopic deletes a topic and its score column from every student.
func (s *Sheet) RemoveTopic(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return ErrTopicNotFound
	}
	if len(s.topics) <= 1 {
		return ErrLastTopic
	}
	s.topics = append(s.topics[:i:i], s.topics[i+1:]...)
	for _, row := range s.scores {
		delete(row, id)
	}
	return nil
}

// RenameTopic changes a topic's display name.
func (s *Sheet) RenameTopic(id, name string) error {
	i := s.indexOf(id)
	if i < 0 {
		return ErrTopicNotFound
	}
	s.topics[i].Name = name
	return nil
}

// ResizeTopic changes the ceiling used to validate future scores. Scores
// already stored are left as they are, even if they now exceed the ceiling.
func (s *Sheet) ResizeTopic(id string, maxScore int) error {
	if maxScore <= 0 {
		return ErrInvalidMaxScore
	}
	i := s.indexOf(id)
	if i < 0 {
		return ErrTopicNotFound
	}
	s.topics[i].MaxScore = maxScore
	return nil
}

// SetScore parses raw and stores it for the student and topic. An empty
// string is read as zero. Out of range values leave the cell untouched.
func (s *Sheet) SetScore(studentID, topicID, raw string) (model.ScoreCell, error) {
	i := s.indexOf(topicID)
	if i < 0 {
		return model.ScoreCell{}, ErrTopicNotFound
	}
	value, err := ParseWhole(raw)
	if err != nil {
		return model.ScoreCell{}, err
	}
	topic := s.topics[i]
	if value < 0 || value > topic.MaxScore {
		return model.ScoreCell{}, fmt.Errorf("%w: %d not in 0..%d", ErrScoreOutOfRange, value, topic.MaxScore)
	}
	cell := model.ScoreCell{
		Score:     value,
		StudentID: studentID,
		MaxScore:  topic.MaxScore,
		Sequence:  i + 1,
	}
	if s.scores == nil {
		s.scores = make(model.ScoreMatrix)
	}
	row := s.scores[studentID]
	if row == nil {
		row = make(map[string]model.ScoreCell)
		s.scores[studentID] = row
	}
	row[topicID] = cell
	return cell, nil
}

// Score returns the stored cell and whether the student has been scored.
func (s *Sheet) Score(studentID, topicID string) (model.ScoreCell, bool) {
	cell, ok := s.scores[studentID][topicID]
	return cell, ok
}

// Scores returns a deep copy of the matrix, including students that are not
// in the current roster.
func (s *Sheet) Scores() model.ScoreMatrix {
	return model.Content{Scores: s.scores}.Clone().Scores
}

// PostTestMaxScore returns the post-test ceiling.
func (s *Sheet) PostTestMaxScore() int {
	return s.postTestMax
}

// SetPostTestMaxScore parses and stores the post-test ceiling. Zero is
// accepted here and rejected only at finalization.
func (s *Sheet) SetPostTestMaxScore(raw string) (int, error) {
	value, err := ParseWhole(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: post-test max %d", ErrScoreOutOfRange, value)
	}
	s.postTestMax = value
	return value, nil
}

// Roster returns the current roster snapshot.
func (s *Sheet) Roster() []model.StudentMeta {
	return append([]model.StudentMeta(nil), s.roster...)
}

// ReplaceRoster swaps the roster snapshot. Score cells are never removed or
// rekeyed, so students missing from the new roster keep their scores.
func (s *Sheet) ReplaceRoster(students []model.StudentMeta) {
	s.roster = append([]model.StudentMeta(nil), students...)
}

// Snapshot renumbers topic and score cell sequences by topic position and
// returns a deep copy of the full content for persistence.
func (s *Sheet) Snapshot() model.Content {
	seq := make(map[string]int, len(s.topics))
	for i := range s.topics {
		s.topics[i].Sequence = i + 1
		seq[s.topics[i].ID] = i + 1
	}
	for _, row := range s.scores {
		for id, cell := range row {
			if n, ok := seq[id]; ok && cell.Sequence != n {
				cell.Sequence = n
				row[id] = cell
			}
		}
	}
	return model.Content{
		Topics:           s.topics,
		Students:         s.roster,
		Scores:           s.scores,
		PostTestMaxScore: s.postTestMax,
	}.Clone()
}

func (s *Sheet) indexOf(id string) int {
	for i, t := range s.topics {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// ParseWhole parses a whole number typed into a form field. Surrounding
// spaces are ignored and an empty string is zero.
func ParseWhole(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	return v, nil
}
