package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvchat/internal/table"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration) (*Store, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	st := NewStore(ttl, "llama3-70b-8192")
	st.now = clk.Now
	return st, clk
}

func TestCreateAndGet(t *testing.T) {
	st, _ := newTestStore(time.Hour)
	s := st.Create()
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "llama3-70b-8192", s.Model())
	assert.Equal(t, 0, s.Tables().Len())

	got, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = st.Get("missing")
	assert.False(t, ok)
}

func TestGetExpiresIdleSession(t *testing.T) {
	st, clk := newTestStore(time.Hour)
	s := st.Create()

	clk.Advance(59 * time.Minute)
	_, ok := st.Get(s.ID)
	require.True(t, ok, "touch within ttl")

	clk.Advance(59 * time.Minute)
	_, ok = st.Get(s.ID)
	require.True(t, ok, "previous Get refreshed last seen")

	clk.Advance(61 * time.Minute)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, st.Len())
}

func TestSweep(t *testing.T) {
	st, clk := newTestStore(10 * time.Minute)
	old := st.Create()
	clk.Advance(8 * time.Minute)
	fresh := st.Create()

	removed := st.Sweep(clk.Now().Add(5 * time.Minute))
	assert.Equal(t, 1, removed)
	_, ok := st.Get(old.ID)
	assert.False(t, ok)
	_, ok = st.Get(fresh.ID)
	assert.True(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	st, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTranscriptAndTablesAreIndependent(t *testing.T) {
	st, _ := newTestStore(time.Hour)
	s := st.Create()
	s.Lock()
	defer s.Unlock()

	s.Append(RoleUser, "hi")
	s.Append(RoleAssistant, "hello")

	set, errs := table.Ingest([]table.Upload{table.BytesUpload("a.csv", []byte("x\n1\n"))})
	require.Empty(t, errs)
	s.ReplaceTables(set)
	assert.Len(t, s.Transcript(), 2)

	s.ReplaceTables(table.NewSet())
	assert.Equal(t, 0, s.Tables().Len())
	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, RoleUser, tr[0].Role)
	assert.Equal(t, "hello", tr[1].Content)

	tr[0].Content = "mutated"
	assert.Equal(t, "hi", s.Transcript()[0].Content)
}

func TestNotices(t *testing.T) {
	st, _ := newTestStore(time.Hour)
	s := st.Create()
	s.AddNotice(LevelSuccess, "2 files uploaded")
	s.AddNotice(LevelError, "Error reading x.csv: boom")

	assert.Len(t, s.Notices(), 2)
	got := s.DrainNotices()
	require.Len(t, got, 2)
	assert.Equal(t, LevelError, got[1].Level)
	assert.Empty(t, s.DrainNotices())
}

func TestSessionSettings(t *testing.T) {
	st, _ := newTestStore(time.Hour)
	s := st.Create()
	s.SetModel("mixtral-8x7b-32768")
	s.SetManualKey("gsk_manual")
	assert.Equal(t, "mixtral-8x7b-32768", s.Model())
	assert.Equal(t, "gsk_manual", s.ManualKey())
}
