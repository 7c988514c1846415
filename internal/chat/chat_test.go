package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/csvchat/internal/ai"
	"github.com/KaramelBytes/csvchat/internal/config"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/table"
)

type spyRuntime struct {
	reply *ai.Reply
	err   error
	reqs  []ai.ChatRequest
}

func (s *spyRuntime) Chat(_ context.Context, req ai.ChatRequest) (*ai.Reply, error) {
	s.reqs = append(s.reqs, req)
	return s.reply, s.err
}

type spyFactory struct {
	rt      *spyRuntime
	configs []ai.RuntimeConfig
}

func (f *spyFactory) New(c ai.RuntimeConfig) ai.Runtime {
	f.configs = append(f.configs, c)
	return f.rt
}

func strPtr(s string) *string { return &s }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newSession(t *testing.T, files ...[2]string) *session.Session {
	t.Helper()
	st := session.NewStore(time.Hour, "llama3-70b-8192")
	s := st.Create()
	if len(files) > 0 {
		var ups []table.Upload
		for _, f := range files {
			ups = append(ups, table.BytesUpload(f[0], []byte(f[1])))
		}
		set, errs := table.Ingest(ups)
		require.Empty(t, errs)
		s.ReplaceTables(set)
	}
	return s
}

var salesCSV = [2]string{"sales.csv", "region,amount\nnorth,10\nsouth,20\neast,5\n"}

func newExecutor(key string, rt *spyRuntime) (*Executor, *spyFactory) {
	f := &spyFactory{rt: rt}
	cfg := &config.Global{APIKey: key, DefaultModel: "llama3-70b-8192", HTTPTimeoutSec: 30, Stream: true}
	return NewExecutor(cfg, f.New, quietLogger()), f
}

func TestTurnWithoutTablesSkipsRemote(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Content: strPtr("unused")}}
	ex, f := newExecutor("gsk_env", rt)
	s := newSession(t)

	out := ex.Turn(context.Background(), s, "How many rows?")

	assert.Equal(t, StatusNoData, out.Status)
	assert.Empty(t, f.configs)
	assert.Empty(t, rt.reqs)
	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "How many rows?", tr[0].Content)
	assert.Equal(t, session.RoleAssistant, tr[1].Role)
	assert.Equal(t, MsgNoData, tr[1].Content)
	assert.Empty(t, s.Notices())
}

func TestTurnWithoutTablesAndWithoutKeyReportsMissingData(t *testing.T) {
	ex, f := newExecutor("", &spyRuntime{})
	s := newSession(t)

	out := ex.Turn(context.Background(), s, "hi")
	assert.Equal(t, StatusNoData, out.Status)
	assert.Empty(t, f.configs)
	assert.Empty(t, s.Notices())
}

func TestTurnWithoutKeySkipsRemote(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Content: strPtr("unused")}}
	ex, f := newExecutor("", rt)
	s := newSession(t, salesCSV)

	out := ex.Turn(context.Background(), s, "total?")

	assert.Equal(t, StatusNoKey, out.Status)
	assert.Empty(t, f.configs)
	assert.Empty(t, rt.reqs)
	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, MsgNoKey, tr[1].Content)
	notices := s.DrainNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, session.LevelError, notices[0].Level)
	assert.Equal(t, NoticeNoKey, notices[0].Text)
}

func TestTurnUsesManualKeyWhenEnvMissing(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Content: strPtr("ok")}}
	ex, f := newExecutor("", rt)
	s := newSession(t, salesCSV)
	s.SetManualKey("gsk_manual")
	s.SetModel("mixtral-8x7b-32768")

	out := ex.Turn(context.Background(), s, "q")
	require.Equal(t, StatusAnswered, out.Status)
	require.Len(t, f.configs, 1)
	assert.Equal(t, "gsk_manual", f.configs[0].APIKey)
	assert.Equal(t, "mixtral-8x7b-32768", f.configs[0].Model)
	assert.Equal(t, 30*time.Second, f.configs[0].HTTPTimeout)
	assert.True(t, f.configs[0].Stream)
}

func TestTurnSendsSystemPromptAndFullHistory(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Content: strPtr("The total amount is 35."), RequestID: "req_1"}}
	ex, f := newExecutor("gsk_env", rt)
	s := newSession(t, salesCSV)
	s.Append(session.RoleUser, "earlier question")
	s.Append(session.RoleAssistant, "earlier answer")

	out := ex.Turn(context.Background(), s, "What is the total amount?")

	require.Equal(t, StatusAnswered, out.Status)
	assert.Equal(t, "req_1", out.RequestID)
	require.Len(t, f.configs, 1)
	assert.Equal(t, "gsk_env", f.configs[0].APIKey)
	assert.Equal(t, "llama3-70b-8192", f.configs[0].Model)

	require.Len(t, rt.reqs, 1)
	msgs := rt.reqs[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "File: sales.csv")
	assert.Contains(t, msgs[0].Content, "3 rows x 2 columns")
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "What is the total amount?", msgs[3].Content)

	tr := s.Transcript()
	require.Len(t, tr, 4)
	assert.Equal(t, "The total amount is 35.", tr[3].Content)
	assert.Empty(t, s.Notices())
}

func TestTurnRemoteFailure(t *testing.T) {
	rt := &spyRuntime{err: errors.New("invalid api key")}
	ex, _ := newExecutor("gsk_bad", rt)
	s := newSession(t, salesCSV)

	out := ex.Turn(context.Background(), s, "q")

	assert.Equal(t, StatusRemoteError, out.Status)
	require.Error(t, out.Err)
	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "Error: invalid api key", tr[1].Content)
	notices := s.DrainNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Error communicating with Groq: invalid api key", notices[0].Text)
}

func TestTurnNormalizationFailure(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Chunks: ai.SliceChunks([]ai.Chunk{ai.TextChunk("par")}, errors.New("stream cut"))}}
	ex, _ := newExecutor("gsk_env", rt)
	s := newSession(t, salesCSV)

	out := ex.Turn(context.Background(), s, "q")

	assert.Equal(t, StatusReplyInvalid, out.Status)
	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "Error processing response: stream cut", tr[1].Content)
	notices := s.DrainNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Error processing response chunks: stream cut", notices[0].Text)
}

func TestTurnWarnsWhenContextIsExceeded(t *testing.T) {
	rt := &spyRuntime{reply: &ai.Reply{Content: strPtr("ok")}}
	ex, _ := newExecutor("gsk_env", rt)
	s := newSession(t, salesCSV)

	out := ex.Turn(context.Background(), s, strings.Repeat("long question ", 4000))

	assert.Equal(t, StatusAnswered, out.Status)
	notices := s.DrainNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, session.LevelWarning, notices[0].Level)
	assert.Contains(t, notices[0].Text, "8192 token context of llama3-70b-8192")
}

func TestTurnAlwaysAppendsExactlyOneAssistantMessage(t *testing.T) {
	cases := map[string]*spyRuntime{
		"content": {reply: &ai.Reply{Content: strPtr("a")}},
		"chunks":  {reply: &ai.Reply{Chunks: ai.SliceChunks([]ai.Chunk{ai.TextChunk("a")}, nil)}},
		"error":   {err: errors.New("down")},
		"empty":   {reply: &ai.Reply{}},
	}
	for name, rt := range cases {
		t.Run(name, func(t *testing.T) {
			ex, _ := newExecutor("gsk_env", rt)
			s := newSession(t, salesCSV)
			ex.Turn(context.Background(), s, "q")
			tr := s.Transcript()
			require.Len(t, tr, 2)
			assert.Equal(t, session.RoleUser, tr[0].Role)
			assert.Equal(t, session.RoleAssistant, tr[1].Role)
		})
	}
}
