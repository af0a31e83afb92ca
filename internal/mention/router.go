// Package mention recognizes @assistant addressing typed inline in the
// compose box and routes messages to the addressed assistant's thread.
package mention

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/helioshq/assistant-portal/internal/model"
)

// Active describes an in-progress mention at the cursor position.
type Active struct {
	// Anchor is the byte index of the '@' that begins the mention.
	Anchor int
	// Filter is the text between the anchor and the cursor.
	Filter string
	// Candidates is the filtered projection of the assistant directory,
	// recomputed on every keystroke.
	Candidates []model.Assistant
}

// Detect scans backward from the cursor for the nearest '@' that is at
// position 0 or preceded by whitespace. It returns the active mention state
// and true when such an anchor exists before the cursor.
//
// excludeID removes the assistant of the currently open thread from the
// candidate list; mentioning the assistant you are already talking to is
// never offered.
func Detect(input string, cursor int, directory []model.Assistant, excludeID string) (*Active, bool) {
	if cursor > len(input) {
		cursor = len(input)
	}
	if cursor < 0 {
		cursor = 0
	}

	anchor := -1
	for i := cursor - 1; i >= 0; i-- {
		if input[i] != '@' {
			continue
		}
		if i == 0 || isSpaceBefore(input, i) {
			anchor = i
			break
		}
	}
	if anchor == -1 {
		return nil, false
	}

	filter := input[anchor+1 : cursor]
	return &Active{
		Anchor:     anchor,
		Filter:     filter,
		Candidates: filterCandidates(directory, filter, excludeID),
	}, true
}

// filterCandidates matches filter case-insensitively as a substring against
// assistant names, excluding the open thread's assistant.
func filterCandidates(directory []model.Assistant, filter, excludeID string) []model.Assistant {
	lowered := strings.ToLower(filter)
	out := make([]model.Assistant, 0, len(directory))
	for _, a := range directory {
		if a.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(a.Name), lowered) {
			out = append(out, a)
		}
	}
	return out
}

// Complete rewrites the input after the user selects a candidate: the span
// from the anchor to the mention end (the next whitespace after the anchor,
// or end-of-string) is replaced by "@Name " and the cursor lands immediately
// after the trailing space.
func Complete(input string, anchor int, name string) (string, int) {
	end := len(input)
	for i := anchor + 1; i < len(input); i++ {
		r, _ := utf8.DecodeRuneInString(input[i:])
		if unicode.IsSpace(r) {
			end = i
			break
		}
	}

	replacement := "@" + name + " "
	rewritten := input[:anchor] + replacement + input[end:]
	return rewritten, anchor + len(replacement)
}

// SubmitKind classifies a compose-box submission.
type SubmitKind int

const (
	// SubmitLiteral sends the text as-is to the currently open thread.
	SubmitLiteral SubmitKind = iota
	// SubmitMention dispatches the body to the mentioned assistant's thread.
	SubmitMention
	// SubmitSuppressed drops the submission: a bare mention with no body is
	// not a complete message.
	SubmitSuppressed
)

// Submit is the outcome of the strict on-submit parse.
type Submit struct {
	Kind      SubmitKind
	Assistant model.Assistant
	Body      string
}

// ParseSubmit re-parses the input with the strict pattern: "@<name>"
// followed by whitespace and a non-empty remainder. Assistant names may
// contain spaces, so the longest directory name matching the head of the
// input wins. Unrecognized names fall back to a literal send, with the
// "@name" text included.
func ParseSubmit(input string, directory []model.Assistant) Submit {
	if !strings.HasPrefix(input, "@") {
		return Submit{Kind: SubmitLiteral, Body: input}
	}

	rest := input[1:]
	var matched *model.Assistant
	matchedLen := -1
	for i := range directory {
		name := directory[i].Name
		if len(name) <= matchedLen {
			continue
		}
		if !hasFoldPrefix(rest, name) {
			continue
		}
		// The name must be followed by whitespace or end-of-string, not be
		// a prefix of a longer word.
		if len(rest) > len(name) {
			r, _ := utf8.DecodeRuneInString(rest[len(name):])
			if !unicode.IsSpace(r) {
				continue
			}
		}
		matched = &directory[i]
		matchedLen = len(name)
	}

	if matched == nil {
		return Submit{Kind: SubmitLiteral, Body: input}
	}

	body := strings.TrimSpace(rest[matchedLen:])
	if body == "" {
		return Submit{Kind: SubmitSuppressed, Assistant: *matched}
	}

	return Submit{Kind: SubmitMention, Assistant: *matched, Body: body}
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isSpaceBefore(input string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(input[:i])
	return unicode.IsSpace(r)
}
