package ai

import (
	"errors"
	"testing"
)

func TestDecodeChunkVariants(t *testing.T) {
	cases := []struct {
		in   string
		want Chunk
	}{
		{`"plain"`, TextChunk("plain")},
		{`{"content":"from content"}`, ContentChunk{Content: "from content"}},
		{`{"message":{"content":"from message"}}`, ContentChunk{Content: "from message"}},
		{`{"choices":[{"delta":{"content":"from delta"}}]}`, DeltaChunk{Delta: Delta{Content: "from delta"}}},
		{`{"choices":[{"delta":{}}]}`, DeltaChunk{}},
	}
	for _, tc := range cases {
		got, err := DecodeChunk([]byte(tc.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %#v want %#v", tc.in, got, tc.want)
		}
		if got.Text() != tc.want.Text() {
			t.Fatalf("%s: text mismatch", tc.in)
		}
	}
}

func TestDecodeChunkErrors(t *testing.T) {
	if _, err := DecodeChunk([]byte(`{broken`)); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	if _, err := DecodeChunk([]byte(`{"foo":1}`)); !errors.Is(err, ErrUnknownChunk) {
		t.Fatalf("expected ErrUnknownChunk, got %v", err)
	}
	_, err := DecodeChunk([]byte(`{"error":{"message":"boom","code":"x"}}`))
	var se *StreamError
	if !errors.As(err, &se) || se.Message != "boom" || se.Code != "x" {
		t.Fatalf("expected StreamError, got %v", err)
	}
}

func TestSliceChunksStopsEarly(t *testing.T) {
	seq := SliceChunks([]Chunk{TextChunk("a"), TextChunk("b")}, errors.New("tail"))
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early stop, got %d", n)
	}
	var last error
	for _, err := range seq {
		last = err
	}
	if last == nil || last.Error() != "tail" {
		t.Fatalf("expected trailing error, got %v", last)
	}
}
