// Package textnorm implements the Normalizer (spec §4.1): Unicode
// compatibility normalization and whitespace collapsing over raw source
// text, ahead of paragraph and chunk segmentation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Options controls which normalization passes run.
type Options struct {
	NormalizeUnicode   bool
	CollapseWhitespace bool
}

// Normalize applies NFKC (if enabled) and whitespace collapsing (if
// enabled) to input, in that order. It never trims; the Paragraphizer owns
// trimming. It is linear in len(input): a single builder is sized with a
// capacity hint equal to len(input) and never reallocates per rune.
func Normalize(input string, opt Options) string {
	out := input
	if opt.NormalizeUnicode {
		out = norm.NFKC.String(out)
	}
	if opt.CollapseWhitespace {
		out = collapseWhitespace(out)
	}
	return out
}

// collapseWhitespace replaces every maximal run of whitespace code points
// with a single ASCII space, mirroring original_source/src/chunk.rs's
// normalize_text: a single pass, one bool of state, no trimming.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
