// Package format holds the text heuristics applied to dictated text:
// punctuation spacing for recognized segments, whole-buffer formatting and
// sentence-terminal punctuation.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNothingToFormat    = errors.New("nothing to format")
	ErrNothingToPunctuate = errors.New("nothing to punctuate")
)

var (
	// everything unicode.IsSpace accepts: RE2's \s alone misses \v, NEL and
	// the Unicode separators such as NBSP
	whitespaceRun = regexp.MustCompile(`[\s\v\x{85}\p{Z}]+`)
	dotRun        = regexp.MustCompile(`\.(?:\s*\.){2,}`)
)

const (
	terminators   = ".!?"
	segmentMarks  = ",.!?"
	documentMarks = ",.!?;:…"
	closers       = `)]}»”’`
)

// conjunctions get a comma inserted before them at LevelHigh.
var conjunctions = map[string]bool{
	"но": true, "а": true, "и": true, "или": true, "что": true,
	"который": true, "где": true, "когда": true,
}

// ProcessPunctuation normalizes a single recognized segment according to
// level. LevelOff returns text untouched.
func ProcessPunctuation(text string, level Level) string {
	if level == LevelOff {
		return text
	}

	out := spaceMarks(text, segmentMarks)
	if level == LevelHigh {
		out = capitalizeAfterTerminators(out)
		out = commaBeforeConjunctions(out)
	}
	return capitalizeFirst(strings.TrimSpace(out))
}

// FormatText collapses whitespace, normalizes spacing around punctuation,
// folds dot runs into an ellipsis and capitalizes sentence starts.
// Applying it twice yields the same result as applying it once.
func FormatText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToFormat
	}

	out := whitespaceRun.ReplaceAllString(text, " ")
	out = dotRun.ReplaceAllString(out, "…")
	out = spaceMarks(out, documentMarks)
	out = capitalizeAfterTerminators(out)
	return capitalizeFirst(strings.TrimSpace(out)), nil
}

// AutoPunctuate ends every sentence with a terminal mark. A sentence without
// one gets '?' if it already contains a question mark, '!' if it contains an
// exclamation mark, and '.' otherwise.
func AutoPunctuate(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToPunctuate
	}

	sentences := splitSentences(text)
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !endsWithTerminator(s) {
			switch {
			case strings.ContainsRune(s, '?'):
				s += "?"
			case strings.ContainsRune(s, '!'):
				s += "!"
			default:
				s += "."
			}
		}
		out = append(out, capitalizeFirst(s))
	}
	return strings.Join(out, " "), nil
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountChars counts characters, not bytes.
func CountChars(text string) int {
	return len([]rune(text))
}

// FormatElapsed renders d as MM:SS. Minutes keep growing past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// spaceMarks removes whitespace before each mark in marks and leaves exactly
// one space after it. Marks that run together ("?!", "…") or sit against a
// closing bracket or quote stay attached. A '.', ',' or ':' between two
// digits is part of a number and is left alone.
func spaceMarks(text, marks string) string {
	rs := []rune(text)
	out := make([]rune, 0, len(rs)+8)

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if !strings.ContainsRune(marks, r) || numberSeparator(rs, i) {
			out = append(out, r)
			continue
		}

		for len(out) > 0 && unicode.IsSpace(out[len(out)-1]) {
			out = out[:len(out)-1]
		}
		out = append(out, r)

		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		i = j - 1
		if j == len(rs) {
			continue
		}
		if strings.ContainsRune(marks, rs[j]) || strings.ContainsRune(closers, rs[j]) {
			continue
		}
		out = append(out, ' ')
	}
	return string(out)
}

func numberSeparator(rs []rune, i int) bool {
	switch rs[i] {
	case '.', ',', ':':
	default:
		return false
	}
	return i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1])
}

// capitalizeAfterTerminators upper-cases a letter that follows a sentence
// terminator and at least one whitespace character.
func capitalizeAfterTerminators(text string) string {
	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		if !strings.ContainsRune(terminators, rs[i]) {
			continue
		}
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		if j > i+1 && j < len(rs) && unicode.IsLower(rs[j]) {
			rs[j] = unicode.ToUpper(rs[j])
		}
	}
	return string(rs)
}

// commaBeforeConjunctions inserts ", " before a conjunction that directly
// follows a word. A conjunction that opens the text, follows punctuation or
// follows another conjunction ("and that") is left alone.
func commaBeforeConjunctions(text string) string {
	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + 16)

	prevConj := false
	for i := 0; i < len(rs); {
		if !isWordRune(rs[i]) {
			b.WriteRune(rs[i])
			i++
			continue
		}
		j := i
		for j < len(rs) && isWordRune(rs[j]) {
			j++
		}
		word := string(rs[i:j])
		conj := conjunctions[strings.ToLower(word)]
		if conj && !prevConj {
			insertComma(&b)
		}
		b.WriteString(word)
		prevConj = conj
		i = j
	}
	return strings.ReplaceAll(b.String(), ", ,", ",")
}

// insertComma rewrites the whitespace at the end of b as ", " when the text
// before it ends in a word.
func insertComma(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
	if trimmed == "" || len(trimmed) == len(s) {
		return
	}
	last := []rune(trimmed)
	if !isWordRune(last[len(last)-1]) {
		return
	}
	b.Reset()
	b.WriteString(trimmed)
	b.WriteString(", ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// splitSentences breaks text after each terminator that is followed by
// whitespace.
func splitSentences(text string) []string {
	rs := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(rs); i++ {
		if !strings.ContainsRune(terminators, rs[i]) || i+1 >= len(rs) || !unicode.IsSpace(rs[i+1]) {
			continue
		}
		out = append(out, string(rs[start:i+1]))
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(rs) {
		out = append(out, string(rs[start:]))
	}
	return out
}

func endsWithTerminator(s string) bool {
	rs := []rune(s)
	return len(rs) > 0 && strings.ContainsRune(terminators+"…", rs[len(rs)-1])
}

func capitalizeFirst(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}
