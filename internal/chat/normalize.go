package chat

import (
	"errors"
	"strings"

	"github.com/KaramelBytes/csvchat/internal/ai"
)

// ErrEmptyReply is returned for a reply that carries nothing to read.
var ErrEmptyReply = errors.New("reply has no content")

// Normalize collapses a reply into one string. Direct content wins; chunks are
// concatenated in arrival order; a raw body is the fallback when chunk
// iteration fails or no chunks were sent.
func Normalize(r *ai.Reply) (string, error) {
	if r == nil {
		return "", ErrEmptyReply
	}
	if r.Content != nil {
		return *r.Content, nil
	}
	if r.Chunks == nil {
		if r.Raw != nil {
			return *r.Raw, nil
		}
		return "", ErrEmptyReply
	}
	var b strings.Builder
	for ch, err := range r.Chunks {
		if err != nil {
			if r.Raw != nil {
				return *r.Raw, nil
			}
			return "", err
		}
		if ch != nil {
			b.WriteString(ch.Text())
		}
	}
	return b.String(), nil
}
