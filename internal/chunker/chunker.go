// Package chunker implements the Chunk Assembler (spec §4.3): it packs
// paragraphs into overlap-bearing, size-bounded chunks, splitting
// oversized paragraphs at sentence then word boundaries.
package chunker

import "strings"

// Options controls paragraph/chunk sizing and overlap, mirroring
// config.ChunkConfig's sizing fields.
type Options struct {
	MaxParagraphChars int
	TargetChunkChars  int
	MaxChunkChars     int
	ChunkOverlapChars int
}

// Assemble packs paragraphs into chunk texts per spec.md §4.3. Paragraphs
// longer than MaxParagraphChars are split at sentence boundaries first
// (falling back to word boundaries for oversized sentences); each
// resulting piece is further word-split if it still exceeds
// MaxChunkChars. Pieces are then greedily packed into chunks with a
// carried-forward overlap tail between consecutive chunks.
func Assemble(paragraphs []string, opt Options) []string {
	var chunks []string
	var current strings.Builder
	var lastOverlap string

	closeChunk := func() {
		finalized := current.String()
		lastOverlap = overlapTail(finalized, opt.ChunkOverlapChars)
		chunks = append(chunks, finalized)
		current.Reset()
	}

	appendPiece := func(part string) {
		if current.Len()+1+len(part) > opt.MaxChunkChars && current.Len() > 0 {
			closeChunk()
			if lastOverlap != "" {
				overlapChunk := lastOverlap + " " + part
				if len(overlapChunk) > opt.MaxChunkChars {
					current.WriteString(part)
				} else {
					current.WriteString(overlapChunk)
				}
			} else {
				current.WriteString(part)
			}
		} else {
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(part)
		}

		if current.Len() >= opt.TargetChunkChars {
			closeChunk()
		}
	}

	for _, para := range paragraphs {
		var parts []string
		if len(para) > opt.MaxParagraphChars {
			parts = splitLargeParagraph(para, opt.MaxParagraphChars)
		} else {
			parts = []string{para}
		}

		for _, part := range parts {
			var bounded []string
			if len(part) > opt.MaxChunkChars {
				bounded = splitByMaxBytes(part, opt.MaxChunkChars)
			} else {
				bounded = []string{part}
			}
			for _, p := range bounded {
				appendPiece(p)
			}
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitLargeParagraph breaks an oversized paragraph into sentence-safe
// pieces bounded by maxLen, scanning for '.', '!', '?' followed by
// whitespace. Sentences that remain too long are further split at word
// boundaries. Mirrors
// original_source/src/chunk.rs::split_large_paragraph.
func splitLargeParagraph(paragraph string, maxLen int) []string {
	var sentences []string
	var buf strings.Builder
	runes := []rune(paragraph)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		buf.WriteRune(ch)
		if ch == '.' || ch == '!' || ch == '?' {
			if i+1 < len(runes) && isSpace(runes[i+1]) {
				if s := strings.TrimSpace(buf.String()); s != "" {
					sentences = append(sentences, s)
				}
				buf.Reset()
			}
		}
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		sentences = append(sentences, s)
	}

	var parts []string
	var current strings.Builder
	for _, sentence := range sentences {
		var subs []string
		if len(sentence) > maxLen {
			subs = splitByMaxBytes(sentence, maxLen)
		} else {
			subs = []string{sentence}
		}
		for _, sub := range subs {
			if current.Len()+len(sub)+1 > maxLen && current.Len() > 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(sub)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}

	if len(parts) == 0 {
		parts = append(parts, paragraph)
	}
	return parts
}

// splitByMaxBytes is the word-boundary splitter: it greedily packs
// whitespace-delimited words into buckets of byte length <= maxLen,
// slicing any word longer than maxLen at character boundaries. This
// guarantees forward progress and never bisects a multi-byte character.
// Mirrors original_source/src/chunk.rs::split_by_max_bytes.
func splitByMaxBytes(text string, maxLen int) []string {
	if maxLen <= 0 {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var out []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if len(word) > maxLen {
			if current.Len() > 0 {
				out = append(out, strings.TrimSpace(current.String()))
				current.Reset()
			}
			start := 0
			for idx, r := range word {
				if idx > start && idx+len(string(r))-start > maxLen {
					out = append(out, word[start:idx])
					start = idx
				}
			}
			if start < len(word) {
				out = append(out, word[start:])
			}
			continue
		}
		if current.Len() == 0 {
			current.WriteString(word)
		} else if current.Len()+1+len(word) <= maxLen {
			current.WriteByte(' ')
			current.WriteString(word)
		} else {
			out = append(out, current.String())
			current.Reset()
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	if len(out) == 0 {
		out = append(out, text)
	}
	return out
}

// overlapTail returns the trailing overlap characters of a closed chunk
// (character count, not bytes), per spec.md §4.3. A zero budget disables
// overlap entirely.
func overlapTail(text string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= overlap {
		return text
	}
	return string(runes[len(runes)-overlap:])
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}
