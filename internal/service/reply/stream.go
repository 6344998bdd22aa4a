package reply

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

// StreamSource reads the reply token by token from POST /api/chat/stream.
type StreamSource struct {
	baseURL string
	client  *http.Client
	session sessionToken
}

var _ chatservice.Source = (*StreamSource)(nil)

// NewStreamSource creates an SSE source for the relay at baseURL. The timeout
// bounds the whole exchange, body included.
func NewStreamSource(baseURL string, timeout time.Duration) *StreamSource {
	return &StreamSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StreamReply implements chatservice.Source.
func (s *StreamSource) StreamReply(ctx context.Context, _ []chat.Message, text string, _ *chat.Attachment, st style.Style) (*schema.StreamReader[string], error) {
	req, err := newChatRequest(ctx, s.baseURL+"/api/chat/stream", chat.Request{Message: text, Style: string(st)}, &s.session)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	s.session.capture(resp.Header)

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	reader, writer := schema.Pipe[string](8)
	go readEvents(resp.Body, writer)
	return reader, nil
}

// Reset drops the relay session token.
func (s *StreamSource) Reset() {
	s.session.reset()
}

func readEvents(body io.ReadCloser, writer *schema.StreamWriter[string]) {
	defer writer.Close()
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodyBytes)

	var streamed bool
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event chat.StreamResponse
		if json.Unmarshal([]byte(data), &event) != nil {
			continue
		}
		if forward(event, writer, &streamed) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		writer.Send("", networkError(err))
		return
	}
	writer.Send("", chatservice.NewTurnError(chatservice.ErrNetwork, "Relay closed the stream early.", io.ErrUnexpectedEOF))
}
