package reply

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

// SocketSource opens a websocket to /api/chat/ws for each turn.
type SocketSource struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	session sessionToken
}

var _ chatservice.Source = (*SocketSource)(nil)

// NewSocketSource creates a websocket source for the relay at baseURL
// (http and https schemes are mapped to ws and wss).
func NewSocketSource(baseURL string, timeout time.Duration) *SocketSource {
	return &SocketSource{
		url:     socketURL(baseURL),
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}
}

func socketURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/chat/ws"
}

// StreamReply implements chatservice.Source.
func (s *SocketSource) StreamReply(ctx context.Context, _ []chat.Message, text string, _ *chat.Attachment, st style.Style) (*schema.StreamReader[string], error) {
	header := http.Header{}
	s.session.apply(header)

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, statusError(resp)
		}
		return nil, networkError(err)
	}
	s.session.capture(resp.Header)

	if s.timeout > 0 {
		deadline := time.Now().Add(s.timeout)
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(chat.SocketMessage{Type: "message", Message: text, Style: string(st)}); err != nil {
		conn.Close()
		return nil, networkError(fmt.Errorf("send chat frame: %w", err))
	}

	reader, writer := schema.Pipe[string](8)
	go s.readFrames(ctx, conn, writer)
	return reader, nil
}

// Reset drops the relay session token.
func (s *SocketSource) Reset() {
	s.session.reset()
}

func (s *SocketSource) readFrames(ctx context.Context, conn *websocket.Conn, writer *schema.StreamWriter[string]) {
	defer writer.Close()
	defer conn.Close()

	// Closing the connection unblocks ReadJSON when the turn is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var streamed bool
	for {
		var event chat.StreamResponse
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				writer.Send("", ctx.Err())
				return
			}
			writer.Send("", networkError(err))
			return
		}
		if forward(event, writer, &streamed) {
			break
		}
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		log.Printf("[ws] failed to close relay socket: %v", err)
	}
}
