package textchunk

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxTextLen caps the total sanitized input length. Response text
// beyond this is truncated before chunking — synthesis of pathologically
// long responses is not a useful behaviour for a voice front end.
const DefaultMaxTextLen = 4000

// maxSpeakableRune is the highest codepoint passed through to synthesis.
// Everything above (emoji, dingbats, CJK symbols in an otherwise Latin
// pipeline) tends to produce artifacts or silence in TTS backends.
const maxSpeakableRune rune = 0x24FF

var (
	codeFenceRe  = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCodeRe = regexp.MustCompile("`[^`\n]*`")
	urlRe        = regexp.MustCompile(`https?://\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>\n]*>`)
	markupRe     = regexp.MustCompile(`[*_#>~\[\]|]+`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Sanitize prepares raw response text for speech synthesis. It strips code
// fences, inline code, URLs, HTML tags and markdown markers, drops
// non-printable and high-codepoint characters, collapses whitespace and caps
// the total length at maxLen (≤ 0 means [DefaultMaxTextLen]).
//
// The result may be empty; callers should treat an empty result as
// "nothing to say" rather than an error.
func Sanitize(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}

	text = codeFenceRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, " ")
	text = urlRe.ReplaceAllString(text, " ")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = markupRe.ReplaceAllString(text, " ")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		case r > maxSpeakableRune, !unicode.IsPrint(r):
			// dropped
		default:
			sb.WriteRune(r)
		}
	}

	text = strings.TrimSpace(spaceRe.ReplaceAllString(sb.String(), " "))

	if len(text) > maxLen {
		text = truncateAtRune(text, maxLen)
	}
	return text
}

// truncateAtRune cuts s to at most n bytes without splitting a UTF-8
// sequence, then trims a trailing partial word.
func truncateAtRune(s string, n int) string {
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	s = s[:n]
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
