// Package chunk splits narration text into pieces that fit a backend's
// per-request size limit, preferring sentence and word boundaries.
package chunk

import "strings"

// RemoteLimit is the largest chunk the remote synthesis API accepts.
const RemoteLimit = 4000

// minBreakRatio is how far into the window a boundary must sit to be used.
const minBreakRatio = 0.5

// Split breaks text into chunks of at most limit runes. Each chunk is trimmed
// of surrounding whitespace; empty chunks are never returned. A limit of zero
// or less returns the whole trimmed text as one chunk.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	rest := []rune(text)
	for len(rest) > limit {
		cut := breakPoint(rest, limit)
		if piece := strings.TrimSpace(string(rest[:cut])); piece != "" {
			chunks = append(chunks, piece)
		}
		rest = []rune(strings.TrimLeft(string(rest[cut:]), " \t\r\n"))
	}
	if tail := strings.TrimSpace(string(rest)); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// breakPoint returns the index to cut rest at. rest is longer than limit.
func breakPoint(rest []rune, limit int) int {
	floor := float64(limit) * minBreakRatio

	// Sentence end: ". " with the period inside the window.
	for i := limit - 1; i >= 0 && float64(i) >= floor; i-- {
		if rest[i] == '.' && rest[i+1] == ' ' {
			return i + 1
		}
	}

	// Word boundary.
	for i := limit; i > 0 && float64(i) >= floor; i-- {
		if rest[i] == ' ' {
			return i
		}
	}

	return limit
}
