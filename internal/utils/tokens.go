package utils

// Simple token estimation utilities. Groq models use their own tokenizers;
// these numbers are only good for warnings and rough cost estimates.

// CountTokens estimates the number of tokens in the given text.
// We approximate 1 token ~= 4 characters (rough heuristic).
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// CountMessageTokens sums CountTokens over message bodies plus a small
// per-message overhead for role framing.
func CountMessageTokens(contents ...string) int {
	total := 0
	for _, c := range contents {
		total += CountTokens(c) + 4
	}
	return total
}
