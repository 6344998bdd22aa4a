package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

// RelaySource asks POST /api/chat for the whole reply and yields it as a
// single fragment. Prior transcript and attachments are not forwarded.
type RelaySource struct {
	baseURL string
	client  *http.Client
	session sessionToken
}

var _ chatservice.Source = (*RelaySource)(nil)

// NewRelaySource creates a source for the relay at baseURL. A zero timeout
// means requests never time out.
func NewRelaySource(baseURL string, timeout time.Duration) *RelaySource {
	return &RelaySource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StreamReply implements chatservice.Source.
func (s *RelaySource) StreamReply(ctx context.Context, _ []chat.Message, text string, _ *chat.Attachment, st style.Style) (*schema.StreamReader[string], error) {
	reply, err := s.Reply(ctx, text, st)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]string{reply}), nil
}

// Reply performs one relay round trip and returns the reply text.
func (s *RelaySource) Reply(ctx context.Context, text string, st style.Style) (string, error) {
	req, err := newChatRequest(ctx, s.baseURL+"/api/chat", chat.Request{Message: text, Style: string(st)}, &s.session)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", networkError(err)
	}
	defer resp.Body.Close()
	s.session.capture(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", networkError(err)
	}

	var payload chat.Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", chatservice.NewTurnError(chatservice.ErrUpstream, "Invalid response from relay.", err)
	}
	if hasError(payload.Error) {
		return "", relayError(resp.StatusCode, payload)
	}
	if payload.Reply == nil || *payload.Reply == "" {
		return "", chatservice.NewTurnError(chatservice.ErrEmptyResponse, chatservice.NoResponseText, nil)
	}
	return *payload.Reply, nil
}

// Reset drops the relay session token.
func (s *RelaySource) Reset() {
	s.session.reset()
}

// Health checks GET /health on the relay.
func (s *RelaySource) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return fmt.Errorf("decode health response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !payload.OK {
		return fmt.Errorf("relay unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
