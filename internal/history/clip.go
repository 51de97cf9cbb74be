package history

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxTurnSize bounds the length of a single turn sent to the memory service.
const DefaultMaxTurnSize = 2000

// Clip shortens text to at most maxSize bytes, cutting on markdown block
// boundaries (headings, blank lines) when possible, then on line boundaries,
// and only as a last resort inside a line.
func Clip(text string, maxSize int) string {
	text = strings.TrimSpace(text)
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	var out string
	for _, b := range splitBlocks(text) {
		combined := b
		if out != "" {
			combined = out + "\n\n" + b
		}
		if len(combined) > maxSize {
			break
		}
		out = combined
	}
	if out != "" {
		return out
	}

	// First block alone is too large: fall back to whole lines.
	for _, line := range strings.Split(text, "\n") {
		combined := line
		if out != "" {
			combined = out + "\n" + line
		}
		if len(combined) > maxSize {
			break
		}
		out = combined
	}
	if strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}

	return cutRunes(text, maxSize)
}

// splitBlocks splits text on heading lines and blank lines.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string

	flush := func() {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, t)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush()
		}
		if trimmed == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return blocks
}

func cutRunes(text string, maxSize int) string {
	if len(text) <= maxSize {
		return text
	}
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
