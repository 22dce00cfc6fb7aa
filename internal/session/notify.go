package session

import (
	"sync"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a non-blocking message for the user.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const defaultMaxNotifications = 50

// notifications is a bounded queue; the oldest entries are dropped first.
type notifications struct {
	mu    sync.Mutex
	max   int
	now   func() time.Time
	items []Notification
}

func (n *notifications) push(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, Notification{Level: level, Message: msg, At: n.now()})
	if over := len(n.items) - n.max; over > 0 {
		n.items = append([]Notification(nil), n.items[over:]...)
	}
}

func (n *notifications) drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}
