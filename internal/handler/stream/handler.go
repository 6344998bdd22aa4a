package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/linear-tutor/internal/handler/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	aiService "github.com/zhouzirui/linear-tutor/internal/service/ai"
	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	aiService   *aiService.Service
	unavailable string
}

// New creates a new stream handler
func New(aiSvc *aiService.Service, unavailable string) *Handler {
	return &Handler{
		aiService:   aiSvc,
		unavailable: unavailable,
	}
}

// RegisterRoutes registers the SSE chat route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	payload, st, ok := chatHandler.DecodeRequest(w, r)
	if !ok {
		return
	}
	if h.aiService == nil {
		utils.RespondError(w, http.StatusInternalServerError, h.unavailable)
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, st, payload.Message); err != nil {
		log.Printf("[stream] error handling request: %v", err)
	}
}

// HandleStreamRequest streams the reply to userMessage as SSE frames:
// start, delta..., message, end. Failures after the headers are sent become an
// error frame.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, st style.Style, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	utils.SendSSEChunk(w, flusher, chat.StreamResponse{
		Event: chat.EventStart,
		Style: string(st),
	})

	reply, err := h.aiService.Reply(ctx, st, userMessage, func(delta string) {
		utils.SendSSEChunk(w, flusher, chat.StreamResponse{
			Event:   chat.EventDelta,
			Content: delta,
		})
	})
	if err != nil {
		utils.SendSSEChunk(w, flusher, chat.StreamResponse{
			Event: chat.EventError,
			Error: DescribeError(err),
		})
		return err
	}

	utils.SendSSEChunk(w, flusher, chat.StreamResponse{
		Event:   chat.EventMessage,
		Content: reply,
	})

	// Send completion signal
	utils.SendSSEChunk(w, flusher, chat.StreamResponse{
		Event:    chat.EventEnd,
		Finished: true,
	})

	log.Printf("[stream] completed response style=%s, length=%d", st, len(reply))
	return nil
}

// DescribeError renders a turn failure for an error frame.
func DescribeError(err error) string {
	if errors.Is(err, aiService.ErrEmptyReply) {
		return "No response from model"
	}
	return "Upstream error: " + err.Error()
}
