// Package sanitize turns raw model output into a usable inline completion or
// rejects it. The model is an unreliable oracle: it apologizes, narrates,
// wraps answers in markdown, or refuses. This package is the boundary that
// keeps that text from being rendered as ghost text.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// noSuggestionSentinel is the literal fallback some prompts instruct the
// model to emit when no plausible continuation exists.
const noSuggestionSentinel = "[no plausible continuation]"

// DefaultDenyList returns the substrings (matched case-insensitively) that
// mark a response as conversational, a refusal, or markdown rather than a
// completion.
func DefaultDenyList() []string {
	return []string{
		"i cannot",
		"i can't",
		"i'm sorry",
		"i am sorry",
		"i apologize",
		"as an ai",
		"as a language model",
		"i'm an ai",
		"i am an ai",
		"i'm unable",
		"i am unable",
		"```",
		"![",
		"](http",
	}
}

// Sanitizer applies the rejection rules in order. It is pure and performs no
// I/O; the zero value is not usable, construct with New.
type Sanitizer struct {
	denylist []string
}

// New creates a Sanitizer with the given deny-list. A nil list uses
// DefaultDenyList.
func New(denylist []string) *Sanitizer {
	if denylist == nil {
		denylist = DefaultDenyList()
	}
	lowered := make([]string, len(denylist))
	for i, d := range denylist {
		lowered[i] = strings.ToLower(d)
	}
	return &Sanitizer{denylist: lowered}
}

// Clean returns the completion to show for raw model output, given the text
// the user had already typed. The second return value is false when no
// suggestion should be shown. Rules short-circuit in order: empty output,
// deny-listed marker, implausible word continuation. A leading space in the
// output is preserved; it distinguishes "start a new word" from "finish the
// current word".
func (s *Sanitizer) Clean(raw, input string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	lowered := strings.ToLower(raw)
	if strings.Contains(lowered, noSuggestionSentinel) {
		return "", false
	}
	for _, marker := range s.denylist {
		if strings.Contains(lowered, marker) {
			return "", false
		}
	}

	out := strings.TrimRight(raw, " \t\r\n")
	out = stripWrappingQuotes(out)
	if out == "" {
		return "", false
	}

	// When the user stopped mid-word and the model did not start a new word,
	// the output must plausibly extend the word being typed.
	if endsMidWord(input) && !strings.HasPrefix(out, " ") {
		r, _ := utf8.DecodeRuneInString(out)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}

	return out, true
}

// endsMidWord reports whether the input's trailing token is a partial word:
// the last rune is a letter or digit rather than whitespace or
// sentence-terminal punctuation.
func endsMidWord(input string) bool {
	if input == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(input)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripWrappingQuotes removes one pair of quotes enclosing the entire output.
// Models asked not to quote do it anyway.
func stripWrappingQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
