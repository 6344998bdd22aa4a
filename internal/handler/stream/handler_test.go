package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/linear-tutor/internal/config"
	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	aiService "github.com/zhouzirui/linear-tutor/internal/service/ai"
)

type chunkModel struct {
	chunks []string
	err    error
}

func (m *chunkModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(strings.Join(m.chunks, ""), nil), nil
}

func (m *chunkModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.err != nil {
		return nil, m.err
	}
	msgs := make([]*schema.Message, 0, len(m.chunks))
	for _, c := range m.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func newRouter(t *testing.T, m *chunkModel, streaming bool) *chi.Mux {
	t.Helper()
	var svc *aiService.Service
	if m != nil {
		var err error
		svc, err = aiService.NewServiceWithModel(context.Background(), m, config.AIConfig{StreamResponse: streaming})
		if err != nil {
			t.Fatalf("NewServiceWithModel err: %v", err)
		}
	}
	r := chi.NewRouter()
	New(svc, "DEEPSEEK_API_KEY missing").RegisterRoutes(r)
	return r
}

func readFrames(t *testing.T, body string) []chat.StreamResponse {
	t.Helper()
	var frames []chat.StreamResponse
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame chat.StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func events(frames []chat.StreamResponse) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStreamSendsDeltasThenMessage(t *testing.T) {
	r := newRouter(t, &chunkModel{chunks: []string{"Hel", "lo"}}, true)

	resp := post(r, `{"message":"hi","style":"intuition"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	frames := readFrames(t, resp.Body.String())
	got := strings.Join(events(frames), ",")
	if got != "start,delta,delta,message,end" {
		t.Fatalf("unexpected event sequence %s", got)
	}
	if frames[0].Style != "intuition" {
		t.Fatalf("expected style on start frame, got %q", frames[0].Style)
	}
	if frames[3].Content != "Hello" {
		t.Fatalf("expected merged message, got %q", frames[3].Content)
	}
	if !frames[4].Finished {
		t.Fatal("expected end frame to be finished")
	}
}

func TestStreamWithStreamingDisabledSendsSingleMessage(t *testing.T) {
	r := newRouter(t, &chunkModel{chunks: []string{"Hel", "lo"}}, false)

	frames := readFrames(t, post(r, `{"message":"hi"}`).Body.String())
	if got := strings.Join(events(frames), ","); got != "start,message,end" {
		t.Fatalf("unexpected event sequence %s", got)
	}
}

func TestStreamUpstreamFailureBecomesErrorFrame(t *testing.T) {
	r := newRouter(t, &chunkModel{err: errors.New("connection reset")}, true)

	frames := readFrames(t, post(r, `{"message":"hi"}`).Body.String())
	if got := strings.Join(events(frames), ","); got != "start,error" {
		t.Fatalf("unexpected event sequence %s", got)
	}
	if !strings.Contains(frames[1].Error, "connection reset") {
		t.Fatalf("expected upstream cause, got %q", frames[1].Error)
	}
}

func TestStreamRejectsBeforeOpeningStream(t *testing.T) {
	r := newRouter(t, nil, true)

	resp := post(r, `{"message":""}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = post(r, `{"message":"hi"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "DEEPSEEK_API_KEY missing") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
