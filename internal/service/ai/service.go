package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/linear-tutor/internal/config"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
)

// ErrEmptyReply is returned when the model answers with no content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(provider, outcome string, elapsed time.Duration)
}

// Upstream call outcomes reported to the Observer.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Service encapsulates the tutor's model chain
type Service struct {
	cfg      config.AIConfig
	timeout  time.Duration
	chain    compose.Runnable[map[string]any, *schema.Message]
	observer Observer
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver reports upstream outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithTimeout bounds every upstream call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig, opts ...Option) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg, opts...)
}

// NewServiceWithModel builds the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, opts ...Option) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	s := &Service{
		cfg:   cfg,
		chain: runnable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Provider names the configured model provider.
func (s *Service) Provider() string {
	return s.cfg.Provider
}

// WithUpstreamTimeout derives the context used for one upstream call.
func (s *Service) WithUpstreamTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// GenerateReply asks the model for a complete reply.
func (s *Service) GenerateReply(ctx context.Context, st style.Style, message string) (string, error) {
	ctx, cancel := s.WithUpstreamTimeout(ctx)
	defer cancel()

	started := time.Now()
	response, err := s.chain.Invoke(ctx, s.buildChainInput(st, message))
	if err != nil {
		s.Observe(OutcomeError, started)
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		s.Observe(OutcomeEmpty, started)
		return "", ErrEmptyReply
	}

	s.Observe(OutcomeOK, started)
	log.Printf("[ai] generated reply style=%s, length=%d", st, len(content))
	return response.Content, nil
}

// StreamReply streams reply chunks via the configured chain. The caller owns
// the returned reader and should bound ctx with WithUpstreamTimeout.
func (s *Service) StreamReply(ctx context.Context, st style.Style, message string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(st, message))
	if err != nil {
		s.Observe(OutcomeError, time.Now())
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// Reply runs one turn. When streaming is enabled, onDelta receives every
// content chunk as it arrives. The complete reply is returned either way.
func (s *Service) Reply(ctx context.Context, st style.Style, message string, onDelta func(string)) (string, error) {
	if !s.StreamingEnabled() || onDelta == nil {
		return s.GenerateReply(ctx, st, message)
	}

	ctx, cancel := s.WithUpstreamTimeout(ctx)
	defer cancel()

	started := time.Now()
	stream, err := s.StreamReply(ctx, st, message)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			s.Observe(OutcomeError, started)
			return "", fmt.Errorf("failed to read AI stream: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		s.Observe(OutcomeEmpty, started)
		return "", ErrEmptyReply
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		s.Observe(OutcomeError, started)
		return "", fmt.Errorf("failed to merge AI stream: %w", err)
	}
	if strings.TrimSpace(response.Content) == "" {
		s.Observe(OutcomeEmpty, started)
		return "", ErrEmptyReply
	}

	s.Observe(OutcomeOK, started)
	log.Printf("[ai] streamed reply style=%s, chunks=%d, length=%d", st, len(chunks), len(response.Content))
	return response.Content, nil
}

// Observe reports an upstream outcome that started at started.
func (s *Service) Observe(outcome string, started time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveUpstream(s.cfg.Provider, outcome, time.Since(started))
}

// buildChainInput fills the prompt template. History stays empty: every turn
// is answered on its own.
func (s *Service) buildChainInput(st style.Style, message string) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(st),
		"history": []*schema.Message{},
		"query":   message,
	}
}
