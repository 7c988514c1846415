// Package session keeps per-browser chat state in memory.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/KaramelBytes/csvchat/internal/table"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a flash message shown once on the next render.
type Notice struct {
	Level Level
	Text  string
}

// Session holds the state of one browser session. Callers hold Lock for the
// duration of an event; the accessors below do not lock on their own.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen atomic.Int64 // unix nanos
	now      func() time.Time

	tables     *table.Set
	transcript []Message
	manualKey  string
	model      string
	notices    []Notice
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

// LastSeen is safe to call without holding the lock.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// ReplaceTables swaps the whole table set. The transcript is untouched.
func (s *Session) ReplaceTables(set *table.Set) {
	if set == nil {
		set = table.NewSet()
	}
	s.tables = set
}

func (s *Session) Tables() *table.Set { return s.tables }

// Transcript returns a copy of the messages in order.
func (s *Session) Transcript() []Message {
	return append([]Message(nil), s.transcript...)
}

// Append adds a message to the transcript.
func (s *Session) Append(role Role, content string) Message {
	m := Message{Role: role, Content: content, CreatedAt: s.now()}
	s.transcript = append(s.transcript, m)
	return m
}

func (s *Session) Model() string { return s.model }

func (s *Session) SetModel(model string) { s.model = model }

func (s *Session) ManualKey() string { return s.manualKey }

func (s *Session) SetManualKey(key string) { s.manualKey = key }

func (s *Session) AddNotice(level Level, text string) {
	s.notices = append(s.notices, Notice{Level: level, Text: text})
}

// Notices returns pending notices without clearing them.
func (s *Session) Notices() []Notice {
	return append([]Notice(nil), s.notices...)
}

// DrainNotices returns pending notices and clears them.
func (s *Session) DrainNotices() []Notice {
	out := s.notices
	s.notices = nil
	return out
}
