// Package reply implements the chat reply sources that talk to the relay:
// the plain JSON endpoint, its SSE variant and the websocket endpoint.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/linear-tutor/internal/config"
	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

// Transport names accepted by New.
const (
	TransportJSON = "json"
	TransportSSE  = "sse"
	TransportWS   = "ws"
)

// SessionHeader carries the relay correlation token, if the relay issues one.
const SessionHeader = "X-Tutor-Session"

const (
	maxBodyBytes      = 1 << 20
	requestFailedText = "AI request failed"
	timeoutText       = "Request timed out."
)

// New returns the reply source for the configured transport.
func New(cfg config.ClientConfig) (chatservice.Source, error) {
	switch cfg.Transport {
	case "", TransportJSON:
		return NewRelaySource(cfg.RelayURL, cfg.Timeout), nil
	case TransportSSE:
		return NewStreamSource(cfg.RelayURL, cfg.Timeout), nil
	case TransportWS:
		return NewSocketSource(cfg.RelayURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// sessionToken remembers the correlation token handed out by the relay.
type sessionToken struct {
	mu    sync.Mutex
	token string
}

func (s *sessionToken) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *sessionToken) capture(header http.Header) {
	token := strings.TrimSpace(header.Get(SessionHeader))
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *sessionToken) reset() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *sessionToken) apply(header http.Header) {
	if token := s.get(); token != "" {
		header.Set(SessionHeader, token)
	}
}

func newChatRequest(ctx context.Context, url string, payload chat.Request, session *sessionToken) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	session.apply(req.Header)
	return req, nil
}

// networkError classifies a transport failure. Cancellation is passed through
// untouched so the controller can tell it apart from a failure.
func networkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return chatservice.NewTurnError(chatservice.ErrNetwork, timeoutText, err)
	}
	return chatservice.NewTurnError(chatservice.ErrNetwork, chatservice.FallbackText, err)
}

// relayError builds the error for a relay-reported failure.
func relayError(status int, payload chat.Response) error {
	text := chat.ErrorText(payload.Error)
	if text == "" {
		text = requestFailedText
	}
	if payload.Details != "" {
		text = text + ": " + payload.Details
	}
	return chatservice.NewTurnError(chatservice.ErrUpstream, text, fmt.Errorf("relay responded with status %d", status))
}

// statusError reads a non-success response body into a relay error.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	var payload chat.Response
	_ = json.Unmarshal(body, &payload)
	return relayError(resp.StatusCode, payload)
}

func hasError(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// forward relays one stream event to writer. It reports whether the stream
// is finished, either because the relay said so or the reader went away.
func forward(event chat.StreamResponse, writer *schema.StreamWriter[string], streamed *bool) bool {
	switch event.Event {
	case chat.EventDelta:
		if event.Content == "" {
			return false
		}
		*streamed = true
		return writer.Send(event.Content, nil)
	case chat.EventMessage:
		// Non-streaming relays send the whole reply as a single message event.
		if *streamed || event.Content == "" {
			return false
		}
		*streamed = true
		return writer.Send(event.Content, nil)
	case chat.EventError:
		text := event.Error
		if text == "" {
			text = requestFailedText
		}
		writer.Send("", chatservice.NewTurnError(chatservice.ErrUpstream, text, nil))
		return true
	case chat.EventEnd:
		return true
	default:
		return event.Finished
	}
}
