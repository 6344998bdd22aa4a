package chat

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/zhouzirui/linear-tutor/internal/model/style"
)

// ErrMessageRequired rejects requests without a usable message.
var ErrMessageRequired = errors.New("Message is required")

// Request is the body accepted by the relay chat endpoints.
type Request struct {
	Message string `json:"message"`
	Style   string `json:"style,omitempty"`
}

// Validate checks the message and resolves the requested teaching style.
func (r Request) Validate() (style.Style, error) {
	if strings.TrimSpace(r.Message) == "" {
		return "", ErrMessageRequired
	}
	return style.Parse(r.Style)
}

// Response is the body returned by POST /api/chat. Error is either a string or
// an object, depending on which layer failed.
type Response struct {
	Reply   *string         `json:"reply,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Details string          `json:"details,omitempty"`
}

// Stream events sent over SSE and websocket.
const (
	EventStart   = "start"
	EventDelta   = "delta"
	EventMessage = "message"
	EventEnd     = "end"
	EventError   = "error"
)

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Style    string `json:"style,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SocketMessage is a client frame on the websocket endpoint.
type SocketMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Style   string `json:"style,omitempty"`
}

// ErrorText extracts a readable message from an error field that may be a
// string or an object with a "message" member.
func ErrorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Message != "" {
		return structured.Message
	}
	return string(raw)
}
