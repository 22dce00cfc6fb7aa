package draft

import "errors"

var (
	// ErrNotNumeric is returned when a score or max score is not an integer.
	ErrNotNumeric = errors.New("value is not a whole number")
	// ErrScoreOutOfRange is returned when a score is negative or exceeds the topic max.
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrInvalidMaxScore is returned when a topic max score is not positive.
	ErrInvalidMaxScore = errors.New("max score must be greater than zero")
	// ErrLastTopic is returned when removing the only remaining topic.
	ErrLastTopic = errors.New("at least one topic is required")
	// ErrTopicNotFound is returned for an unknown topic id.
	ErrTopicNotFound = errors.New("topic not found")
)
