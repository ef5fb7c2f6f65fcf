// Package textchunk splits response text into speakable, length-bounded
// segments for the streaming playback pipeline.
//
// Long text is split along sentence boundaries first, then clause boundaries
// (commas), then word boundaries — in that priority order — so each chunk
// sounds natural when synthesised on its own. Original word order is always
// preserved and no chunk ever exceeds the configured character cap.
package textchunk

import (
	"strings"
	"unicode"
)

// DefaultMaxChars is the per-chunk character cap used when the caller passes
// a non-positive value to [Chunk]. Sized so one chunk synthesises in well
// under the playback time of its predecessor.
const DefaultMaxChars = 220

// Minimum content for a chunk to produce useful audio.
const (
	minChunkLen     = 4
	minChunkLetters = 2
)

// Chunk sanitizes text and splits it into ordered chunks of at most maxChars
// characters each. Chunks that would produce no useful audio (fewer than 2
// letters or under 4 characters) are discarded. An input that sanitizes to
// nothing yields an empty slice — playback of that is a no-op.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text = Sanitize(text, 0)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, part := range pack(splitSentences(text), maxChars) {
		if speakable(part) {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

// pack greedily joins units into chunks of at most maxChars. A single unit
// longer than the cap is recursively split by commas, then by words.
func pack(units []string, maxChars int) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}

		if len(u) > maxChars {
			flush()
			out = append(out, splitOversized(u, maxChars)...)
			continue
		}

		if cur.Len() == 0 {
			cur.WriteString(u)
			continue
		}
		if cur.Len()+1+len(u) <= maxChars {
			cur.WriteByte(' ')
			cur.WriteString(u)
			continue
		}
		flush()
		cur.WriteString(u)
	}
	flush()
	return out
}

// splitOversized breaks a single over-cap unit first at comma clauses and,
// for any clause still over the cap, at word boundaries.
func splitOversized(s string, maxChars int) []string {
	clauses := splitClauses(s)
	if len(clauses) > 1 {
		return pack(clauses, maxChars)
	}

	words := strings.Fields(s)
	if len(words) > 1 {
		return pack(words, maxChars)
	}

	// A single word longer than the cap: hard-cut. Pathological input
	// (no whitespace at all) must still terminate.
	var out []string
	for len(s) > maxChars {
		cut := maxChars
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxChars
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// splitSentences splits on terminal punctuation ('.', '!', '?', '…')
// followed by whitespace or end of input. The punctuation stays attached to
// its sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Consume runs like "?!" or "...".
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, strings.TrimSpace(string(runes[start:])))
	}
	return out
}

// splitClauses splits on commas, keeping each comma attached to the clause
// it terminates.
func splitClauses(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 {
			p += ","
		}
		out = append(out, p)
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// speakable reports whether a chunk carries enough content to produce
// useful audio.
func speakable(s string) bool {
	if len(s) < minChunkLen {
		return false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
			if letters >= minChunkLetters {
				return true
			}
		}
	}
	return false
}
