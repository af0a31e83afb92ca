package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helioshq/assistant-portal/internal/backend"
	"github.com/helioshq/assistant-portal/internal/directory"
	"github.com/helioshq/assistant-portal/internal/model"
	"github.com/helioshq/assistant-portal/internal/stream"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
)

// echoBackend replies with a fixed string and records the requests it saw.
type echoBackend struct {
	reply string
	err   error

	mu       sync.Mutex
	requests []*backend.Request
}

func (e *echoBackend) StreamReply(ctx context.Context, req *backend.Request, onDelta backend.DeltaCallback) (*backend.Reply, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	if err := onDelta(e.reply, 0); err != nil {
		return nil, err
	}
	return &backend.Reply{Content: e.reply, Model: "echo-1", StopReason: "end_turn"}, nil
}

func (e *echoBackend) Name() string { return "echo" }

func (e *echoBackend) lastRequest() *backend.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return nil
	}
	return e.requests[len(e.requests)-1]
}

var testAssistants = []model.Assistant{
	{ID: "a1", Name: "Atlas"},
	{ID: "a2", Name: "Vega"},
}

func testLimits() AttachmentLimits {
	return AttachmentLimits{
		MaxBytes:  1024,
		MIMETypes: []string{"text/plain", "application/pdf"},
		MaxStaged: 2,
	}
}

func newTestController(eb *echoBackend) (*Controller, *thread.Store) {
	store := thread.NewStore(8, logger.NewNop())
	coord := stream.NewCoordinator(store, eb, nil, logger.NewNop())
	dir := directory.NewStatic(testAssistants)
	ctrl := NewController(store, coord, dir, testLimits(), logger.NewNop())
	return ctrl, store
}

func waitForMessages(t *testing.T, store *thread.Store, threadID string, count int) *model.Thread {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(threadID)
		if err == nil && len(got.Messages) >= count {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	got, _ := store.Get(threadID)
	t.Fatalf("timed out waiting for %d messages, thread: %+v", count, got)
	return nil
}

func waitForBanner(t *testing.T, ctrl *Controller) *Banner {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b := ctrl.Banner(); b != nil {
			return b
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for banner")
	return nil
}

func TestOpenAssistantReusesThread(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})

	first := ctrl.OpenAssistant("a1", "Atlas")
	if cur := store.GetCurrent(); cur == nil || cur.ID != first.ID {
		t.Fatalf("expected %s current, got %+v", first.ID, cur)
	}

	ctrl.OpenAssistant("a2", "Vega")
	again := ctrl.OpenAssistant("a1", "Atlas")
	if again.ID != first.ID {
		t.Errorf("reopening an assistant should reuse its thread, got %s want %s", again.ID, first.ID)
	}
}

func TestNewConversationAlwaysCreates(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})

	first := ctrl.OpenAssistant("a1", "Atlas")
	second := ctrl.NewConversation("a1", "Atlas")

	if second.ID == first.ID {
		t.Error("NewConversation must not reuse the existing thread")
	}
	if cur := store.GetCurrent(); cur == nil || cur.ID != second.ID {
		t.Errorf("new conversation should become current, got %+v", cur)
	}
	if _, err := store.Get(first.ID); err != nil {
		t.Error("previous thread should survive a new conversation")
	}
}

func TestClearChat(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})

	old := ctrl.OpenAssistant("a1", "Atlas")
	store.AppendMessage(old.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "hi"})

	fresh, err := ctrl.ClearChat(old.ID)
	if err != nil {
		t.Fatalf("ClearChat failed: %v", err)
	}
	if fresh.ID == old.ID {
		t.Error("cleared thread should have a new id")
	}
	if fresh.AssistantID != "a1" || len(fresh.Messages) != 0 {
		t.Errorf("replacement thread wrong: %+v", fresh)
	}
	if cur := store.GetCurrent(); cur == nil || cur.ID != fresh.ID {
		t.Errorf("replacement should inherit current, got %+v", cur)
	}
	if _, err := store.Get(old.ID); !errors.Is(err, thread.ErrThreadNotFound) {
		t.Error("old thread should be gone")
	}

	if _, err := ctrl.ClearChat("missing"); !errors.Is(err, thread.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestClearChatNonCurrentLeavesCurrentAlone(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})

	other := ctrl.OpenAssistant("a2", "Vega")
	current := ctrl.OpenAssistant("a1", "Atlas")

	if _, err := ctrl.ClearChat(other.ID); err != nil {
		t.Fatalf("ClearChat failed: %v", err)
	}
	if cur := store.GetCurrent(); cur == nil || cur.ID != current.ID {
		t.Errorf("clearing a background thread must not steal current, got %+v", cur)
	}
}

func TestSubmitLiteralToCurrentThread(t *testing.T) {
	eb := &echoBackend{reply: "hello back"}
	ctrl, store := newTestController(eb)
	tr := ctrl.OpenAssistant("a1", "Atlas")

	resp, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Dispatched || resp.Routed || resp.ThreadID != tr.ID {
		t.Errorf("unexpected response: %+v", resp)
	}

	got := waitForMessages(t, store, tr.ID, 2)
	if got.Messages[0].Content != "hello" || got.Messages[1].Content != "hello back" {
		t.Errorf("unexpected exchange: %+v", got.Messages)
	}
}

func TestSubmitWithoutTarget(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})

	if _, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "hi"}); !errors.Is(err, ErrNoCurrentThread) {
		t.Fatalf("expected ErrNoCurrentThread, got %v", err)
	}
}

func TestSubmitEmptyText(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})
	ctrl.OpenAssistant("a1", "Atlas")

	if _, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "   "}); !errors.Is(err, stream.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSubmitMentionRoutesToAssistantThread(t *testing.T) {
	eb := &echoBackend{reply: "routed reply"}
	ctrl, store := newTestController(eb)
	current := ctrl.OpenAssistant("a1", "Atlas")

	resp, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "@Vega check the numbers"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Routed {
		t.Error("mention submit should report routed")
	}
	if resp.ThreadID == current.ID {
		t.Error("mention must not land in the current thread")
	}

	routed := waitForMessages(t, store, resp.ThreadID, 2)
	if routed.AssistantID != "a2" {
		t.Errorf("routed thread bound to %q, want a2", routed.AssistantID)
	}
	// The mention prefix is stripped from the dispatched body.
	if routed.Messages[0].Content != "check the numbers" {
		t.Errorf("dispatched body = %q", routed.Messages[0].Content)
	}

	// The current thread pointer does not move on a routed send.
	if cur := store.GetCurrent(); cur == nil || cur.ID != current.ID {
		t.Errorf("current thread moved: %+v", cur)
	}

	// A second mention reuses the same routed thread.
	waitUntilIdle(t, ctrl, resp.ThreadID)
	resp2, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "@Vega again"})
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if resp2.ThreadID != resp.ThreadID {
		t.Errorf("second mention created a new thread: %s vs %s", resp2.ThreadID, resp.ThreadID)
	}
}

func TestSubmitBareMentionSuppressed(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})
	ctrl.OpenAssistant("a1", "Atlas")

	resp, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "@Vega"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Suppressed || resp.Dispatched {
		t.Errorf("bare mention should be suppressed, got %+v", resp)
	}
	if found := store.FindByAssistant("a2"); found != nil {
		t.Error("suppressed submit must not create a thread")
	}
}

func TestSubmitSuppressedWhileDropdownOpen(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})
	ctrl.OpenAssistant("a1", "Atlas")

	// Typing "@ve" opens the dropdown.
	active := ctrl.UpdateCompose(context.Background(), "@ve", 3)
	if active == nil || !ctrl.MentionList().IsOpen() {
		t.Fatal("expected open mention dropdown")
	}

	resp, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "@ve"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Suppressed {
		t.Error("Enter with the dropdown open must be suppressed")
	}

	// Escape closes the dropdown; submit then parses normally.
	ctrl.CloseMentionList()
	resp, err = ctrl.Submit(context.Background(), &model.SendRequest{Text: "plain text"})
	if err != nil {
		t.Fatalf("Submit after close failed: %v", err)
	}
	if resp.Suppressed || !resp.Dispatched {
		t.Errorf("expected normal dispatch after closing dropdown, got %+v", resp)
	}
}

func TestUpdateComposeExcludesOpenAssistant(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})
	ctrl.OpenAssistant("a1", "Atlas")

	active := ctrl.UpdateCompose(context.Background(), "@a", 2)
	if active == nil {
		t.Fatal("expected active mention")
	}
	for _, cand := range active.Candidates {
		if cand.ID == "a1" {
			t.Error("the open thread's assistant must not be offered as a candidate")
		}
	}

	if got := ctrl.UpdateCompose(context.Background(), "no mention here", 5); got != nil {
		t.Errorf("expected nil active for plain text, got %+v", got)
	}
	if ctrl.MentionList().IsOpen() {
		t.Error("dropdown should close when the mention disappears")
	}
}

func TestSelectCandidateRewritesComposer(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})
	ctrl.OpenAssistant("a1", "Atlas")

	ctrl.UpdateCompose(context.Background(), "@ve", 3)
	text, cursor := ctrl.SelectCandidate(context.Background())
	if text != "@Vega " {
		t.Errorf("composer = %q, want %q", text, "@Vega ")
	}
	if cursor != len("@Vega ") {
		t.Errorf("cursor = %d, want %d", cursor, len("@Vega "))
	}
	if ctrl.MentionList().IsOpen() {
		t.Error("selection should close the dropdown")
	}
}

func TestEditAndResendTruncates(t *testing.T) {
	eb := &echoBackend{reply: "fresh reply"}
	ctrl, store := newTestController(eb)
	tr := ctrl.OpenAssistant("a1", "Atlas")

	store.AppendMessage(tr.ID, model.Message{ID: "u1", Role: model.RoleUser, Content: "original"})
	store.AppendMessage(tr.ID, model.Message{ID: "s1", Role: model.RoleAssistant, Content: "stale one"})
	store.AppendMessage(tr.ID, model.Message{ID: "u2", Role: model.RoleUser, Content: "followup"})
	store.AppendMessage(tr.ID, model.Message{ID: "s2", Role: model.RoleAssistant, Content: "stale two"})

	if err := ctrl.EditAndResend(context.Background(), tr.ID, "u1", "rephrased"); err != nil {
		t.Fatalf("EditAndResend failed: %v", err)
	}

	got := waitForMessages(t, store, tr.ID, 2)
	if len(got.Messages) != 2 {
		t.Fatalf("expected edited turn + fresh reply, got %+v", got.Messages)
	}
	if got.Messages[0].ID != "u1" || got.Messages[0].Content != "rephrased" {
		t.Errorf("edited turn wrong: %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "fresh reply" {
		t.Errorf("expected fresh reply, got %+v", got.Messages[1])
	}

	// The resent history ends at the edited turn.
	req := eb.lastRequest()
	if len(req.Messages) != 1 || req.Messages[0].Content != "rephrased" {
		t.Errorf("resent history = %+v", req.Messages)
	}
}

func TestEditAndResendValidation(t *testing.T) {
	ctrl, store := newTestController(&echoBackend{reply: "ok"})
	tr := ctrl.OpenAssistant("a1", "Atlas")
	store.AppendMessage(tr.ID, model.Message{ID: "u1", Role: model.RoleUser, Content: "q"})
	store.AppendMessage(tr.ID, model.Message{ID: "s1", Role: model.RoleAssistant, Content: "a"})

	ctx := context.Background()
	if err := ctrl.EditAndResend(ctx, tr.ID, "u1", "  "); !errors.Is(err, stream.ErrEmptyMessage) {
		t.Errorf("empty edit: got %v", err)
	}
	if err := ctrl.EditAndResend(ctx, "missing", "u1", "x"); !errors.Is(err, thread.ErrThreadNotFound) {
		t.Errorf("unknown thread: got %v", err)
	}
	if err := ctrl.EditAndResend(ctx, tr.ID, "ghost", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("unknown message: got %v", err)
	}
	if err := ctrl.EditAndResend(ctx, tr.ID, "s1", "x"); !errors.Is(err, ErrNotUserMessage) {
		t.Errorf("assistant message: got %v", err)
	}

	// None of the rejected edits touched the thread.
	got, _ := store.Get(tr.ID)
	if len(got.Messages) != 2 || got.Messages[0].Content != "q" {
		t.Errorf("rejected edits mutated the thread: %+v", got.Messages)
	}
}

func TestFailedResendKeepsTruncationAndRaisesBanner(t *testing.T) {
	eb := &echoBackend{err: errors.New("backend down")}
	ctrl, store := newTestController(eb)
	tr := ctrl.OpenAssistant("a1", "Atlas")
	store.AppendMessage(tr.ID, model.Message{ID: "u1", Role: model.RoleUser, Content: "q"})
	store.AppendMessage(tr.ID, model.Message{ID: "s1", Role: model.RoleAssistant, Content: "a"})

	if err := ctrl.EditAndResend(context.Background(), tr.ID, "u1", "edited"); err != nil {
		t.Fatalf("EditAndResend failed synchronously: %v", err)
	}

	banner := waitForBanner(t, ctrl)
	if !strings.Contains(banner.Message, "backend down") {
		t.Errorf("banner should carry the failure, got %q", banner.Message)
	}

	// Truncation is not rolled back on failure.
	got, _ := store.Get(tr.ID)
	if len(got.Messages) != 1 || got.Messages[0].Content != "edited" {
		t.Errorf("expected truncated thread to persist, got %+v", got.Messages)
	}

	ctrl.DismissBanner()
	if ctrl.Banner() != nil {
		t.Error("banner should clear on dismiss")
	}
}

func TestPrefillSetsComposer(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})

	ctrl.Prefill("draft a weekly report")
	text, cursor := ctrl.ComposeText()
	if text != "draft a weekly report" {
		t.Errorf("composer = %q", text)
	}
	if cursor != len(text) {
		t.Errorf("cursor = %d, want end of text", cursor)
	}
}

func TestStageAttachmentLimits(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})

	tests := []struct {
		name   string
		req    model.StageAttachmentRequest
		reason string
	}{
		{
			name:   "oversize file",
			req:    model.StageAttachmentRequest{FileName: "big.pdf", MIMEType: "application/pdf", Size: 2048},
			reason: "exceeding the 1024 byte limit",
		},
		{
			name:   "disallowed type",
			req:    model.StageAttachmentRequest{FileName: "app.exe", MIMEType: "application/x-msdownload", Size: 10},
			reason: `file type "application/x-msdownload" is not allowed`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctrl.StageAttachment(&tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.FileName != tt.req.FileName {
				t.Errorf("error names %q, want %q", verr.FileName, tt.req.FileName)
			}
			if !strings.Contains(verr.Reason, tt.reason) {
				t.Errorf("reason %q should contain %q", verr.Reason, tt.reason)
			}
		})
	}

	if len(ctrl.StagedAttachments()) != 0 {
		t.Error("rejected files must not be staged")
	}
}

func TestStageAttachmentCountCap(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})

	for i := 0; i < 2; i++ {
		req := model.StageAttachmentRequest{FileName: "notes.txt", MIMEType: "text/plain", Size: 10}
		if _, err := ctrl.StageAttachment(&req); err != nil {
			t.Fatalf("staging %d failed: %v", i, err)
		}
	}

	_, err := ctrl.StageAttachment(&model.StageAttachmentRequest{FileName: "extra.txt", MIMEType: "text/plain", Size: 10})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError at cap, got %v", err)
	}
	if !strings.Contains(verr.Reason, "at most 2 files") {
		t.Errorf("reason %q should name the cap", verr.Reason)
	}
}

func TestStagedAttachmentsTravelWithSend(t *testing.T) {
	eb := &echoBackend{reply: "got it"}
	ctrl, store := newTestController(eb)
	tr := ctrl.OpenAssistant("a1", "Atlas")

	staged, err := ctrl.StageAttachment(&model.StageAttachmentRequest{
		FileName: "report.pdf", MIMEType: "application/pdf", Size: 512,
	})
	if err != nil {
		t.Fatalf("StageAttachment failed: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), &model.SendRequest{Text: "see attached"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got := waitForMessages(t, store, tr.ID, 2)
	atts := got.Messages[0].Attachments
	if len(atts) != 1 || atts[0].ID != staged.ID {
		t.Fatalf("user turn attachments = %+v", atts)
	}

	// Staging is consumed by the send.
	if len(ctrl.StagedAttachments()) != 0 {
		t.Error("staged list should be empty after dispatch")
	}
}

func TestRemoveStaged(t *testing.T) {
	ctrl, _ := newTestController(&echoBackend{reply: "ok"})

	a, _ := ctrl.StageAttachment(&model.StageAttachmentRequest{FileName: "one.txt", MIMEType: "text/plain", Size: 1})
	b, _ := ctrl.StageAttachment(&model.StageAttachmentRequest{FileName: "two.txt", MIMEType: "text/plain", Size: 1})

	if !ctrl.RemoveStaged(a.ID) {
		t.Fatal("RemoveStaged should report success for a staged id")
	}
	if ctrl.RemoveStaged(a.ID) {
		t.Error("removing twice should report false")
	}

	left := ctrl.StagedAttachments()
	if len(left) != 1 || left[0].ID != b.ID {
		t.Errorf("remaining staged = %+v", left)
	}
}

func waitUntilIdle(t *testing.T, ctrl *Controller, threadID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !ctrl.coord.IsStreaming(threadID) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for stream to finish")
}
