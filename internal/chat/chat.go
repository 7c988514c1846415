// Package chat runs one question/answer turn against the remote model.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KaramelBytes/csvchat/internal/ai"
	"github.com/KaramelBytes/csvchat/internal/config"
	"github.com/KaramelBytes/csvchat/internal/prompt"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/utils"
)

// Canned assistant and notice texts.
const (
	MsgNoData        = "Please upload at least one CSV file to begin analyzing data."
	MsgNoKey         = "Please provide a Groq API key to continue."
	NoticeNoKey      = "Please enter your Groq API key in the sidebar or add it to your .env file"
	noticeRemote     = "Error communicating with Groq: %v"
	msgRemote        = "Error: %v"
	noticeNormalize  = "Error processing response chunks: %v"
	msgNormalize     = "Error processing response: %v"
	noticeContextCap = "The conversation is about %d tokens, above the %d token context of %s. The reply may fail or lose earlier messages."
)

// Status tells how a turn ended.
type Status string

const (
	StatusAnswered     Status = "answered"
	StatusNoData       Status = "no_data"
	StatusNoKey        Status = "no_key"
	StatusRemoteError  Status = "remote_error"
	StatusReplyInvalid Status = "reply_invalid"
)

// Outcome describes a finished turn. Err holds the underlying failure for
// logging; it has already been turned into a notice and assistant message.
type Outcome struct {
	Status    Status
	Reply     session.Message
	Model     string
	RequestID string
	Usage     ai.Usage
	Duration  time.Duration
	Err       error
}

// Executor runs chat turns. The runtime factory is called once per remote
// turn with the key and model resolved for that turn.
type Executor struct {
	cfg     *config.Global
	factory ai.RuntimeFactory
	log     *slog.Logger
}

func NewExecutor(cfg *config.Global, factory ai.RuntimeFactory, log *slog.Logger) *Executor {
	if cfg == nil {
		cfg = &config.Global{}
	}
	if factory == nil {
		factory = ai.NewRuntime
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cfg: cfg, factory: factory, log: log}
}

// Turn appends the user input and exactly one assistant message to s. The
// caller must hold s's lock. Failures become notices, never errors.
func (e *Executor) Turn(ctx context.Context, s *session.Session, input string) Outcome {
	start := time.Now()
	s.Append(session.RoleUser, input)

	out := e.turn(ctx, s)
	out.Reply = s.Append(session.RoleAssistant, out.Reply.Content)
	out.Duration = time.Since(start)

	attrs := []any{"session", s.ID, "status", out.Status, "model", out.Model, "duration", out.Duration}
	if out.RequestID != "" {
		attrs = append(attrs, "request_id", out.RequestID)
	}
	if out.Err != nil {
		e.log.Warn("chat turn failed", append(attrs, "error", out.Err)...)
	} else {
		e.log.Info("chat turn", attrs...)
	}
	return out
}

func (e *Executor) turn(ctx context.Context, s *session.Session) Outcome {
	if s.Tables().Len() == 0 {
		return reply(StatusNoData, MsgNoData)
	}
	res := config.Resolve(e.cfg, s.ManualKey(), s.Model())
	if !res.HasKey() {
		s.AddNotice(session.LevelError, NoticeNoKey)
		return reply(StatusNoKey, MsgNoKey)
	}

	msgs := Messages(prompt.System(s.Tables()), s.Transcript())
	e.warnContext(s, res.Model, msgs)

	rt := e.factory(e.runtimeConfig(res))
	r, err := rt.Chat(ctx, ai.ChatRequest{Model: res.Model, Messages: msgs})
	if err != nil {
		s.AddNotice(session.LevelError, fmt.Sprintf(noticeRemote, err))
		out := reply(StatusRemoteError, fmt.Sprintf(msgRemote, err))
		out.Model, out.Err = res.Model, err
		return out
	}
	text, err := Normalize(r)
	if err != nil {
		s.AddNotice(session.LevelError, fmt.Sprintf(noticeNormalize, err))
		out := reply(StatusReplyInvalid, fmt.Sprintf(msgNormalize, err))
		out.Model, out.Err = res.Model, err
		if r != nil {
			out.RequestID = r.RequestID
		}
		return out
	}
	out := reply(StatusAnswered, text)
	// streamed usage is only known once the chunks are drained
	out.Model, out.RequestID, out.Usage = res.Model, r.RequestID, r.Usage
	return out
}

func reply(st Status, text string) Outcome {
	return Outcome{Status: st, Reply: session.Message{Role: session.RoleAssistant, Content: text}}
}

// Messages builds the request history: the system prompt then every
// transcript entry in order.
func Messages(system string, transcript []session.Message) []ai.Message {
	msgs := make([]ai.Message, 0, len(transcript)+1)
	msgs = append(msgs, ai.Message{Role: "system", Content: system})
	for _, m := range transcript {
		msgs = append(msgs, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

func (e *Executor) runtimeConfig(res config.Resolution) ai.RuntimeConfig {
	c := e.cfg
	return ai.RuntimeConfig{
		APIKey:      res.APIKey,
		Model:       res.Model,
		BaseURL:     c.BaseURL,
		Stream:      c.Stream,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
	}
}

// warnContext adds a notice when the estimated request size exceeds the
// model's context window. The request is still sent.
func (e *Executor) warnContext(s *session.Session, model string, msgs []ai.Message) {
	mi, ok := ai.LookupModel(model)
	if !ok || mi.ContextTokens <= 0 {
		return
	}
	contents := make([]string, len(msgs))
	for i, m := range msgs {
		contents[i] = m.Content
	}
	if n := utils.CountMessageTokens(contents...); n > mi.ContextTokens {
		s.AddNotice(session.LevelWarning, fmt.Sprintf(noticeContextCap, n, mi.ContextTokens, model))
	}
}
