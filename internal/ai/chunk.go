package ai

import (
	"errors"
	"fmt"
	"iter"

	"github.com/tidwall/gjson"
)

// Chunk is one piece of a chunked reply. Providers send pieces in several
// shapes; each shape is decoded once into a concrete variant.
type Chunk interface {
	Text() string
}

// TextChunk is a bare string piece.
type TextChunk string

func (c TextChunk) Text() string { return string(c) }

// ContentChunk carries text in a content field.
type ContentChunk struct {
	Content string
}

func (c ContentChunk) Text() string { return c.Content }

// Delta is the incremental part of a streamed completion choice.
type Delta struct {
	Role    string
	Content string
}

// DeltaChunk is the OpenAI-style streaming piece.
type DeltaChunk struct {
	Delta Delta
}

func (c DeltaChunk) Text() string { return c.Delta.Content }

// ErrUnknownChunk is returned for well-formed JSON that matches no chunk shape.
var ErrUnknownChunk = errors.New("unrecognized chunk shape")

// DecodeChunk turns one JSON payload into a Chunk variant. An error object
// in the payload is returned as a *StreamError.
func DecodeChunk(data []byte) (Chunk, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode chunk: invalid JSON: %.80q", data)
	}
	r := gjson.ParseBytes(data)
	if r.Type == gjson.String {
		return TextChunk(r.Str), nil
	}
	if e := r.Get("error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return nil, &StreamError{Message: msg, Code: e.Get("code").String()}
	}
	if d := r.Get("choices.0.delta"); d.Exists() {
		return DeltaChunk{Delta: Delta{
			Role:    d.Get("role").String(),
			Content: d.Get("content").String(),
		}}, nil
	}
	if c := r.Get("content"); c.Type == gjson.String {
		return ContentChunk{Content: c.Str}, nil
	}
	for _, path := range []string{"message.content", "choices.0.message.content"} {
		if c := r.Get(path); c.Type == gjson.String {
			return ContentChunk{Content: c.Str}, nil
		}
	}
	return nil, ErrUnknownChunk
}

// SliceChunks adapts a fixed list of chunks to the iterator form used by
// Reply. A non-nil err is yielded after the chunks.
func SliceChunks(chunks []Chunk, err error) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}
