package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log. It is never modified after
// Append returns it.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is an append-only, in-memory conversation log. Only Clear removes
// messages and it removes all of them.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	last     time.Time
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append stamps and stores a message at the tail of the log. Timestamps never
// go backwards even if the wall clock does.
func (s *Store) Append(role Role, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// RecentWindow returns the last n messages in order, or fewer when the log is
// shorter. n <= 0 yields nothing.
func (s *Store) RecentWindow(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.messages) == 0 {
		return []Message{}
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

// All returns a copy of the full log.
func (s *Store) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
