package compose

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// voidElements never take an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// openTag is an element left open at the cut, with the byte range of its
// start tag in the content.
type openTag struct {
	name       string
	start, end int
}

// truncateMarkup handles rich content whose block prefix was re-serialized by
// the host editor. It tokenizes the content, finds the first token that
// starts a memory block and cuts the original string there. Markup before
// the cut is kept byte for byte; elements still open at the cut are closed.
func truncateMarkup(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var open []openTag
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return stripText(content)
			}
			return content
		}
		raw := z.Raw()
		start := offset
		offset += len(raw)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, block := startTag(z)
			if block {
				return closeOpen(content[:start], open)
			}
			if tt == html.StartTagToken && !voidElements[name] {
				open = append(open, openTag{name: name, start: start, end: offset})
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(open) - 1; i >= 0; i-- {
				if open[i].name == string(name) {
					open = open[:i]
					break
				}
			}
		case html.TextToken:
			if idx := strings.Index(string(raw), Marker); idx >= 0 {
				kept := trimSeparator(string(raw[:idx]))
				return closeOpen(content[:start]+kept, open)
			}
		}
	}
}

// startTag returns the tag name and whether the tag opens a memory block.
func startTag(z *html.Tokenizer) (string, bool) {
	name, hasAttr := z.TagName()
	block := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case BlockAttr:
			block = true
		case "style":
			if strings.Contains(strings.ReplaceAll(string(val), " ", ""), strings.ReplaceAll(BlockBackground, " ", "")) {
				block = true
			}
		}
	}
	return string(name), block
}

// closeOpen drops wrappers the cut left empty, e.g. a <p><strong> that only
// held the preamble, and closes the rest innermost first.
func closeOpen(kept string, open []openTag) string {
	for len(open) > 0 {
		last := open[len(open)-1]
		if len(kept) != last.end {
			break
		}
		kept = kept[:last.start]
		open = open[:len(open)-1]
	}
	var b strings.Builder
	b.WriteString(kept)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</")
		b.WriteString(open[i].name)
		b.WriteString(">")
	}
	return b.String()
}
