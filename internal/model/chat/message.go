package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is an opaque image payload carried alongside a user message.
// The relay path is text only, so attachments are kept for display and never sent upstream.
type Attachment struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Message is one entry of the transcript.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	Failed     bool        `json:"failed,omitempty"`
	Cancelled  bool        `json:"cancelled,omitempty"`
}

// NewUserMessage creates a user message with a fresh identifier.
func NewUserMessage(content string, attachment *Attachment) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleUser,
		Content:    content,
		Attachment: attachment,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewPlaceholder creates the empty assistant message that a turn fills in.
func NewPlaceholder() Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
}
