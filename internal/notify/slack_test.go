package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNotifyPostsFencedPayload(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		got = payload.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, zap.NewNop())
	if err := n.Notify(context.Background(), "line one\nline two"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got != "```line one\nline two```" {
		t.Fatalf("payload text = %q", got)
	}
}

func TestNotifyPrependsMention(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		got = payload.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, zap.NewNop(), WithMention("<!channel>"))
	if err := n.Notify(context.Background(), "alert"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.HasPrefix(got, "<!channel>\n```") {
		t.Fatalf("payload text = %q", got)
	}
}

func TestNotifyFailsOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, zap.NewNop())
	if err := n.Notify(context.Background(), "alert"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestNotifyFailsOnUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	n := NewSlackNotifier(url, zap.NewNop())
	if err := n.Notify(context.Background(), "alert"); err == nil {
		t.Fatal("expected error for closed server")
	}
}
