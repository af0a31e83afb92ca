package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseBody(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}
}

func TestWebhookStreamReply(t *testing.T) {
	var gotPayload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		sseBody(
			`data: {"delta":"Hel"}`,
			``,
			`data: {"delta":"lo"}`,
			`: comment line ignored`,
			`data: {"done":true}`,
		)(w, r)
	}))
	defer srv.Close()

	c, err := NewWebhookClient(srv.URL)
	if err != nil {
		t.Fatalf("NewWebhookClient failed: %v", err)
	}

	var deltas []string
	reply, err := c.StreamReply(context.Background(), &Request{
		ThreadID:    "t1",
		AssistantID: "a1",
		Messages: []ChatMessage{
			{Role: "user", Content: "earlier turn"},
			{Role: "assistant", Content: "earlier reply"},
			{Role: "user", Content: "latest question"},
		},
	}, func(delta string, index int) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamReply failed: %v", err)
	}

	if reply.Content != "Hello" {
		t.Errorf("content = %q, want %q", reply.Content, "Hello")
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v", deltas)
	}

	// Only the latest user turn travels in the payload.
	if gotPayload.Message != "latest question" {
		t.Errorf("payload message = %q", gotPayload.Message)
	}
	if gotPayload.ThreadID != "t1" || gotPayload.AssistantID != "a1" {
		t.Errorf("payload routing = %+v", gotPayload)
	}
}

func TestWebhookDoneSentinel(t *testing.T) {
	srv := httptest.NewServer(sseBody(
		`data: {"delta":"partial"}`,
		`data: [DONE]`,
		`data: {"delta":"after done, never read"}`,
	))
	defer srv.Close()

	c, _ := NewWebhookClient(srv.URL)
	reply, err := c.StreamReply(context.Background(), &Request{
		Messages: []ChatMessage{{Role: "user", Content: "q"}},
	}, func(delta string, index int) error { return nil })
	if err != nil {
		t.Fatalf("StreamReply failed: %v", err)
	}
	if reply.Content != "partial" {
		t.Errorf("content = %q, want %q", reply.Content, "partial")
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewWebhookClient(srv.URL)
	_, err := c.StreamReply(context.Background(), &Request{
		Messages: []ChatMessage{{Role: "user", Content: "q"}},
	}, func(delta string, index int) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestWebhookMalformedEvent(t *testing.T) {
	srv := httptest.NewServer(sseBody(`data: {not json`))
	defer srv.Close()

	c, _ := NewWebhookClient(srv.URL)
	_, err := c.StreamReply(context.Background(), &Request{
		Messages: []ChatMessage{{Role: "user", Content: "q"}},
	}, func(delta string, index int) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected malformed event error, got %v", err)
	}
}

func TestWebhookCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(sseBody(
		`data: {"delta":"one"}`,
		`data: {"delta":"two"}`,
	))
	defer srv.Close()

	abort := errors.New("observer gave up")
	c, _ := NewWebhookClient(srv.URL)
	_, err := c.StreamReply(context.Background(), &Request{
		Messages: []ChatMessage{{Role: "user", Content: "q"}},
	}, func(delta string, index int) error { return abort })
	if !errors.Is(err, abort) {
		t.Fatalf("expected callback error to surface, got %v", err)
	}
}

func TestWebhookRequiresURL(t *testing.T) {
	if _, err := NewWebhookClient(""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestWebhookRequiresMessages(t *testing.T) {
	c, _ := NewWebhookClient("http://localhost:1")
	if _, err := c.StreamReply(context.Background(), &Request{}, nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}
