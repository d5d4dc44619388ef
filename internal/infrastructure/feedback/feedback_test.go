package feedback_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/feedback"
)

func TestLineSink_EmitsNotificationFrames(t *testing.T) {
	var buf bytes.Buffer
	sink := feedback.NewLineSink(&buf)

	sink.StartOperation("op-1", "review /repo/a.go")
	sink.UpdateProgress("op-1", 50, "running semgrep")
	sink.CompleteOperation("op-1", "3 findings")
	sink.ReportError("op-1", fmt.Errorf("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 frames, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, `"jsonrpc":"2.0"`) || strings.Contains(line, `"id"`) {
			t.Errorf("frame must be an id-less notification: %s", line)
		}
	}
	if !strings.Contains(lines[1], `"percent":50`) {
		t.Errorf("progress frame missing percent: %s", lines[1])
	}
}

func TestWebhookSink_SignsAndDelivers(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Reviewd-Signature"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := feedback.NewWebhookSink(feedback.WebhookConfig{
		URL:    srv.URL,
		Secret: "s3cret",
	}, nil)
	sink.StartOperation("op-1", "review")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sig, ok := got.Load().(string); ok {
			if !strings.HasPrefix(sig, "sha256=") {
				t.Errorf("unexpected signature: %q", sig)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("webhook was never delivered")
}

func TestWebhookSink_DeadLettersAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := feedback.NewDeadLetterStore(filepath.Join(t.TempDir(), "dead.jsonl"))
	sink := feedback.NewWebhookSink(feedback.WebhookConfig{
		URL:        srv.URL,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}, store)
	sink.ReportError("op-1", fmt.Errorf("original failure"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		letters, err := store.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(letters) == 1 {
			if letters[0].Attempts != 2 || letters[0].EventKind != "reportError" {
				t.Errorf("unexpected dead letter: %+v", letters[0])
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("delivery failure never dead-lettered")
}

func TestDeadLetterStore_EmptyFile(t *testing.T) {
	store := feedback.NewDeadLetterStore(filepath.Join(t.TempDir(), "missing.jsonl"))
	letters, err := store.List()
	if err != nil || letters != nil {
		t.Errorf("expected empty list, got %v, %v", letters, err)
	}
}
