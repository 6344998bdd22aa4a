package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorDetails(rec, http.StatusInternalServerError, "Upstream error", "timeout")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Upstream error","details":"timeout"}` {
		t.Fatalf("unexpected body %s", got)
	}

	rec = httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "Message is required")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Message is required"}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEChunk(rec, rec, map[string]string{"event": "delta", "content": "Hel"})

	if got := rec.Body.String(); got != "data: {\"content\":\"Hel\",\"event\":\"delta\"}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected frame to be flushed")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}
