package mention

import (
	"testing"

	"github.com/helioshq/assistant-portal/internal/model"
)

var testDirectory = []model.Assistant{
	{ID: "a1", Name: "Atlas"},
	{ID: "a2", Name: "Atlas Pro"},
	{ID: "a3", Name: "Vega"},
	{ID: "a4", Name: "Data Scout"},
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		cursor     int
		excludeID  string
		wantActive bool
		wantAnchor int
		wantFilter string
		wantNames  []string
	}{
		{
			// Matching is substring, not prefix: "At" also hits "Data Scout".
			name:       "at start of input",
			input:      "@At",
			cursor:     3,
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "At",
			wantNames:  []string{"Atlas", "Atlas Pro", "Data Scout"},
		},
		{
			name:       "substring match inside a name",
			input:      "@cou",
			cursor:     4,
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "cou",
			wantNames:  []string{"Data Scout"},
		},
		{
			name:       "after whitespace",
			input:      "ask @ve",
			cursor:     7,
			wantActive: true,
			wantAnchor: 4,
			wantFilter: "ve",
			wantNames:  []string{"Vega"},
		},
		{
			name:       "bare at shows full directory",
			input:      "@",
			cursor:     1,
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "",
			wantNames:  []string{"Atlas", "Atlas Pro", "Vega", "Data Scout"},
		},
		{
			name:       "mid-word at is not an anchor",
			input:      "email@example.com",
			cursor:     17,
			wantActive: false,
		},
		{
			name:       "no at sign",
			input:      "hello there",
			cursor:     5,
			wantActive: false,
		},
		{
			name:       "case-insensitive substring match",
			input:      "@SCOUT",
			cursor:     6,
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "SCOUT",
			wantNames:  []string{"Data Scout"},
		},
		{
			name:       "open assistant excluded",
			input:      "@atlas",
			cursor:     6,
			excludeID:  "a1",
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "atlas",
			wantNames:  []string{"Atlas Pro"},
		},
		{
			name:       "cursor before anchor sees nothing",
			input:      "hi @vega",
			cursor:     2,
			wantActive: false,
		},
		{
			name:       "no matching candidates still active",
			input:      "@zzz",
			cursor:     4,
			wantActive: true,
			wantAnchor: 0,
			wantFilter: "zzz",
			wantNames:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, ok := Detect(tt.input, tt.cursor, testDirectory, tt.excludeID)
			if ok != tt.wantActive {
				t.Fatalf("Detect ok = %v, want %v", ok, tt.wantActive)
			}
			if !ok {
				return
			}
			if active.Anchor != tt.wantAnchor {
				t.Errorf("anchor = %d, want %d", active.Anchor, tt.wantAnchor)
			}
			if active.Filter != tt.wantFilter {
				t.Errorf("filter = %q, want %q", active.Filter, tt.wantFilter)
			}
			if len(active.Candidates) != len(tt.wantNames) {
				t.Fatalf("candidates = %+v, want names %v", active.Candidates, tt.wantNames)
			}
			for i, want := range tt.wantNames {
				if active.Candidates[i].Name != want {
					t.Errorf("candidate %d = %q, want %q", i, active.Candidates[i].Name, want)
				}
			}
		})
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		anchor     int
		assistant  string
		want       string
		wantCursor int
	}{
		{
			name:       "partial token rewritten",
			input:      "@At",
			anchor:     0,
			assistant:  "Atlas",
			want:       "@Atlas ",
			wantCursor: 7,
		},
		{
			name:       "text after mention preserved",
			input:      "@ve please summarize",
			anchor:     0,
			assistant:  "Vega",
			want:       "@Vega  please summarize",
			wantCursor: 6,
		},
		{
			name:       "mention mid-input",
			input:      "hi @da",
			anchor:     3,
			assistant:  "Data Scout",
			want:       "hi @Data Scout ",
			wantCursor: 15,
		},
		{
			name:       "bare at",
			input:      "@",
			anchor:     0,
			assistant:  "Atlas",
			want:       "@Atlas ",
			wantCursor: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cursor := Complete(tt.input, tt.anchor, tt.assistant)
			if got != tt.want {
				t.Errorf("Complete = %q, want %q", got, tt.want)
			}
			if cursor != tt.wantCursor {
				t.Errorf("cursor = %d, want %d", cursor, tt.wantCursor)
			}
		})
	}
}

func TestParseSubmit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind SubmitKind
		wantAsst string
		wantBody string
	}{
		{
			name:     "plain text is literal",
			input:    "hello there",
			wantKind: SubmitLiteral,
			wantBody: "hello there",
		},
		{
			name:     "mention with body",
			input:    "@Atlas summarize this",
			wantKind: SubmitMention,
			wantAsst: "a1",
			wantBody: "summarize this",
		},
		{
			name:     "longest name wins",
			input:    "@Atlas Pro summarize this",
			wantKind: SubmitMention,
			wantAsst: "a2",
			wantBody: "summarize this",
		},
		{
			name:     "case-insensitive name",
			input:    "@atlas hi",
			wantKind: SubmitMention,
			wantAsst: "a1",
			wantBody: "hi",
		},
		{
			name:     "bare mention suppressed",
			input:    "@Atlas",
			wantKind: SubmitSuppressed,
			wantAsst: "a1",
		},
		{
			name:     "mention with only trailing whitespace suppressed",
			input:    "@Atlas   ",
			wantKind: SubmitSuppressed,
			wantAsst: "a1",
		},
		{
			name:     "unknown name falls back to literal",
			input:    "@Nobody hi there",
			wantKind: SubmitLiteral,
			wantBody: "@Nobody hi there",
		},
		{
			name:     "name as prefix of longer word is literal",
			input:    "@Atlasify the data",
			wantKind: SubmitLiteral,
			wantBody: "@Atlasify the data",
		},
		{
			name:     "multi-word name with body",
			input:    "@Data Scout find the report",
			wantKind: SubmitMention,
			wantAsst: "a4",
			wantBody: "find the report",
		},
		{
			name:     "mention not at start is literal",
			input:    "hey @Atlas hi",
			wantKind: SubmitLiteral,
			wantBody: "hey @Atlas hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSubmit(tt.input, testDirectory)
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantAsst != "" && got.Assistant.ID != tt.wantAsst {
				t.Errorf("assistant = %q, want %q", got.Assistant.ID, tt.wantAsst)
			}
			if got.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", got.Body, tt.wantBody)
			}
		})
	}
}

func TestListNavigation(t *testing.T) {
	l := NewList()

	if l.IsOpen() {
		t.Error("empty list should be closed")
	}
	if l.Selected() != nil {
		t.Error("empty list should have no selection")
	}
	l.Next()
	l.Prev()

	l.SetCandidates(testDirectory[:3])
	if !l.IsOpen() {
		t.Fatal("list with candidates should be open")
	}
	if got := l.Selected(); got == nil || got.ID != "a1" {
		t.Fatalf("initial selection = %+v, want a1", got)
	}

	l.Next()
	if got := l.Selected(); got.ID != "a2" {
		t.Errorf("after Next, selection = %q, want a2", got.ID)
	}

	l.Next()
	l.Next()
	if got := l.Selected(); got.ID != "a1" {
		t.Errorf("Next should wrap to a1, got %q", got.ID)
	}

	l.Prev()
	if got := l.Selected(); got.ID != "a3" {
		t.Errorf("Prev should wrap to a3, got %q", got.ID)
	}

	// New candidates reset the selection.
	l.SetCandidates(testDirectory[2:])
	if got := l.Selected(); got.ID != "a3" {
		t.Errorf("selection after SetCandidates = %q, want a3", got.ID)
	}

	l.Clear()
	if l.IsOpen() || l.Selected() != nil {
		t.Error("Clear should close the list and drop the selection")
	}
}
