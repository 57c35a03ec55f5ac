// Package paragraph implements the Paragraphizer (spec §4.2): it splits
// normalized text into paragraph units, discards bookkeeping headings, and
// merges short fragments into the previous paragraph.
package paragraph

import "strings"

// Options controls header stripping and short-paragraph merging.
type Options struct {
	StripHeaders      bool
	MinParagraphChars int
}

// Split segments normalized text into an ordered list of paragraphs. Each
// paragraph has no interior newlines (they are replaced with single
// spaces) and is trimmed. A blank line terminates the current paragraph;
// non-blank lines are trimmed and joined with a trailing newline before
// the paragraph is emitted, matching
// original_source/src/chunk.rs::split_paragraphs.
func Split(text string, opt Options) []string {
	var paragraphs []string
	var current strings.Builder

	flush := func() {
		emit(&paragraphs, current.String(), opt)
		current.Reset()
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current.WriteString(strings.TrimSpace(line))
		current.WriteByte('\n')
	}
	flush()

	return paragraphs
}

// emit finalizes the paragraph under construction: it drops discardable
// headers, collapses interior newlines to spaces, and merges
// below-threshold paragraphs into the previous one.
func emit(out *[]string, current string, opt Options) {
	trimmed := strings.TrimSpace(current)
	if trimmed == "" {
		return
	}

	if opt.StripHeaders {
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(trimmed, "#") || lower == "table of contents" || lower == "contents" {
			return
		}
	}

	cleaned := strings.ReplaceAll(trimmed, "\n", " ")

	if len(cleaned) < opt.MinParagraphChars {
		if n := len(*out); n > 0 {
			(*out)[n-1] = (*out)[n-1] + " " + cleaned
			return
		}
		*out = append(*out, cleaned)
		return
	}
	*out = append(*out, cleaned)
}
