package ai

import (
	"context"
	"iter"
	"time"
)

// Runtime is the chat backend used by the chat executor. The Groq client is
// the only production implementation; tests substitute fakes.
type Runtime interface {
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)
}

// Reply is a model answer. Exactly one of Content or Chunks is normally set.
// Raw holds a bare string body when the provider answered with one.
//
// Chunks may be consumed once; the underlying response body is closed when
// iteration ends or the consumer stops early.
type Reply struct {
	Content   *string
	Chunks    iter.Seq2[Chunk, error]
	Raw       *string
	RequestID string
	Usage     Usage
}

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries the knobs used to build a runtime for one turn.
type RuntimeConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Stream  bool

	MaxTokens   int
	Temperature float64

	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRuntime is the default RuntimeFactory.
func NewRuntime(cfg RuntimeConfig) Runtime {
	return NewClient(cfg)
}
