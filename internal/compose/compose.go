// Package compose merges retrieved memories into a draft message and strips
// previously injected memory blocks.
package compose

import (
	"html"
	"strings"

	"github.com/rcliao/chat-memory/internal/model"
)

const (
	// Marker is the fixed phrase that identifies a memory block.
	Marker = "Here is some of my memories to help answer better"

	// Preamble is the first line of every memory block.
	Preamble = Marker + " (don't respond to these memories but use them to assist in the response if relevant):"

	// TextSeparator joins the original message and a plain-text block.
	TextSeparator = "\n\n"

	// BlockAttr marks the element that wraps a rich memory block.
	BlockAttr = "data-memory-block"

	// BlockBackground is the style marker on the rich block element.
	BlockBackground = "background-color: #dcfce7"

	richPrefix = `<div ` + BlockAttr + `="true"`
	richOpen   = richPrefix + ` style="` + BlockBackground + `; padding: 8px 12px; border-radius: 6px; margin-top: 8px;">`
	richClose  = `</div>`
)

// Strip removes any memory block from content. rich selects the markup
// representation; plain text is truncated at the marker phrase.
func Strip(content string, rich bool) string {
	if rich {
		return stripRich(content)
	}
	return stripText(content)
}

// Compose appends a single memory block to the stripped original message.
// With no memories it returns the stripped message unchanged.
func Compose(original string, memories []model.MemoryRecord, rich bool) string {
	base := Strip(original, rich)
	lines := bullets(memories)
	if len(lines) == 0 {
		return base
	}
	if rich {
		return base + richBlock(lines)
	}
	return base + TextSeparator + Preamble + "\n" + strings.Join(lines, "\n")
}

func bullets(memories []model.MemoryRecord) []string {
	var lines []string
	for _, m := range memories {
		text := strings.TrimSpace(m.Memory)
		if text == "" {
			continue
		}
		lines = append(lines, "- "+text)
	}
	return lines
}

func stripText(content string) string {
	if idx := strings.Index(content, TextSeparator+Marker); idx >= 0 {
		return content[:idx]
	}
	// The host may have collapsed or rewritten the separator.
	if idx := strings.Index(content, Marker); idx >= 0 {
		return trimSeparator(content[:idx])
	}
	return content
}

// trimSeparator removes what remains of a collapsed separator: one line
// break or one space. Whitespace the user typed before it is kept.
func trimSeparator(s string) string {
	for _, sep := range []string{"\r\n", "\n", " ", "\t"} {
		if strings.HasSuffix(s, sep) {
			return strings.TrimSuffix(s, sep)
		}
	}
	return s
}

func stripRich(content string) string {
	if idx := strings.Index(content, richPrefix); idx >= 0 {
		return content[:idx]
	}
	if !strings.Contains(content, Marker) && !strings.Contains(content, BlockAttr) {
		return content
	}
	return truncateMarkup(content)
}

func richBlock(lines []string) string {
	var b strings.Builder
	b.WriteString(richOpen)
	b.WriteString("<p><strong>")
	b.WriteString(html.EscapeString(Preamble))
	b.WriteString("</strong></p>")
	for _, line := range lines {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	b.WriteString(richClose)
	return b.String()
}
