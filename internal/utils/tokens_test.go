package utils_test

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/csvchat/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
	}{
		{"empty", "", 0},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 900}, // heuristic ~ 1 tok ≈ 4 chars
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got < c.min {
			t.Errorf("%s: got %d < min %d", c.name, got, c.min)
		}
	}
}

func TestCountMessageTokens(t *testing.T) {
	if got := utils.CountMessageTokens(); got != 0 {
		t.Fatalf("expected 0 for no messages, got %d", got)
	}
	one := utils.CountTokens(strings.Repeat("x", 400))
	if got := utils.CountMessageTokens(strings.Repeat("x", 400), ""); got != one+8 {
		t.Fatalf("unexpected total %d", got)
	}
}
