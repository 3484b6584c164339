package relay

import (
	"strings"
	"unicode/utf8"
)

// splitNearDelimiter cuts text into chunks of at most limit runes, preferring
// to break at the last newline, then the last space, inside each window.
func splitNearDelimiter(text string, limit int) []string {
	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}

		window := prefixRunes(text, limit)
		cut := strings.LastIndexByte(window, '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(window, ' ')
		}
		if cut <= 0 {
			cut = len(window)
		}

		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	return chunks
}

// prefixRunes returns the first n runes of s.
func prefixRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// capChunks keeps at most maxChunks chunks. Longer inputs are reduced to
// two, the second marked as truncated.
func capChunks(chunks []string, limit, maxChunks int) []string {
	if len(chunks) <= maxChunks {
		return chunks
	}
	chunks = chunks[:2]
	chunks[1] = prefixRunes(chunks[1], limit-4) + " ..."
	return chunks
}
