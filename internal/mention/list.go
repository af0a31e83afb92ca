package mention

import (
	"github.com/helioshq/assistant-portal/internal/model"
)

// List holds the candidate dropdown state: the visible candidates and the
// selected index. Arrow-key navigation maps to Next/Prev.
type List struct {
	candidates []model.Assistant
	selected   int
}

// NewList creates an empty candidate list.
func NewList() *List {
	return &List{}
}

// SetCandidates replaces the visible candidates and resets the selection.
func (l *List) SetCandidates(candidates []model.Assistant) {
	l.candidates = candidates
	l.selected = 0
}

// Candidates returns the visible candidates.
func (l *List) Candidates() []model.Assistant {
	return l.candidates
}

// IsOpen reports whether the dropdown has candidates to show.
func (l *List) IsOpen() bool {
	return len(l.candidates) > 0
}

// Next selects the next candidate, wrapping around.
func (l *List) Next() {
	if len(l.candidates) == 0 {
		return
	}
	l.selected = (l.selected + 1) % len(l.candidates)
}

// Prev selects the previous candidate, wrapping around.
func (l *List) Prev() {
	if len(l.candidates) == 0 {
		return
	}
	l.selected--
	if l.selected < 0 {
		l.selected = len(l.candidates) - 1
	}
}

// Selected returns the currently selected candidate, or nil when the list
// is empty.
func (l *List) Selected() *model.Assistant {
	if l.selected < 0 || l.selected >= len(l.candidates) {
		return nil
	}
	return &l.candidates[l.selected]
}

// Clear closes the dropdown without altering the compose input.
func (l *List) Clear() {
	l.candidates = nil
	l.selected = 0
}
