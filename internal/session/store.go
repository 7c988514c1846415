package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/csvchat/internal/table"
)

// Store manages sessions in memory and expires idle ones.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	ttl          time.Duration
	defaultModel string
	now          func() time.Time
}

// NewStore creates a Store. New sessions start with defaultModel selected.
func NewStore(ttl time.Duration, defaultModel string) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{
		sessions:     make(map[string]*Session),
		ttl:          ttl,
		defaultModel: defaultModel,
		now:          time.Now,
	}
}

// Create registers a new empty session.
func (st *Store) Create() *Session {
	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		now:       st.now,
		tables:    table.NewSet(),
		model:     st.defaultModel,
	}
	s.touch(now)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns a live session and marks it as used. Expired sessions are
// removed and reported as missing.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := st.now()
	if now.Sub(s.LastSeen()) > st.ttl {
		st.mu.Lock()
		delete(st.sessions, id)
		st.mu.Unlock()
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Len returns the number of tracked sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than the TTL at now.
func (st *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps on every interval tick until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(st.now()); n > 0 {
				slog.Debug("expired sessions", "count", n, "remaining", st.Len())
			}
		}
	}
}
