// Package llm adapts OpenAI-compatible chat endpoints (OpenRouter by default)
// to the eino chat model interface used by the relay chain.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

// Client is the subset of openai.Client used by ChatModel; it is easy to mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Config describes an OpenAI-compatible endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Referer     string
	Title       string
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	HTTPClient  *http.Client
}

// ChatModel implements model.ChatModel on top of go-openai.
type ChatModel struct {
	client Client
	cfg    Config
}

var _ model.ChatModel = (*ChatModel)(nil)

// NewClient creates an OpenAI client that also sends the attribution headers
// OpenRouter uses for ranking.
func NewClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout:   base.Timeout,
		Transport: &headerTransport{next: transport, referer: cfg.Referer, title: cfg.Title},
	}

	return openai.NewClientWithConfig(clientCfg)
}

// NewChatModel creates a ChatModel backed by a fresh client.
func NewChatModel(cfg Config) *ChatModel {
	return NewChatModelWithClient(NewClient(cfg), cfg)
}

// NewChatModelWithClient wires an existing client, mainly for tests.
func NewChatModelWithClient(client Client, cfg Config) *ChatModel {
	return &ChatModel{client: client, cfg: cfg}
}

// Generate performs a blocking completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req := m.buildRequest(input, opts...)

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, describeError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream performs a streaming completion. Chunks carry content deltas only.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req := m.buildRequest(input, opts...)
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, describeError(err)
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer writer.Close()
		defer stream.Close()

		for {
			resp, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				writer.Send(nil, describeError(recvErr))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if closed := writer.Send(schema.AssistantMessage(resp.Choices[0].Delta.Content, nil), nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

// BindTools is unsupported; the tutor never calls tools.
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}
	return errors.New("tool calling is not supported by the tutor chat model")
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...model.Option) openai.ChatCompletionRequest {
	common := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Messages: make([]openai.ChatCompletionMessage, 0, len(input)),
	}
	if common.Model != nil {
		req.Model = *common.Model
	}
	if common.MaxTokens != nil {
		req.MaxTokens = *common.MaxTokens
	}
	if common.Temperature != nil {
		req.Temperature = *common.Temperature
	}
	if common.TopP != nil {
		req.TopP = *common.TopP
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    roleFor(msg.Role),
			Content: msg.Content,
		})
	}
	return req
}

func roleFor(role schema.RoleType) string {
	switch role {
	case schema.System:
		return openai.ChatMessageRoleSystem
	case schema.Assistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// ErrNoChoices is returned when the provider answers without any completion.
var ErrNoChoices = errors.New("provider returned no choices")

// describeError flattens provider API errors into the message the provider reported.
func describeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("provider error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return err
}

type headerTransport struct {
	next    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer == "" && t.title == "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	if t.referer != "" {
		clone.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		clone.Header.Set("X-Title", t.title)
	}
	return t.next.RoundTrip(clone)
}
