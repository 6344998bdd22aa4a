package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	aiService "github.com/zhouzirui/linear-tutor/internal/service/ai"
	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

const maxRequestBytes = 64 << 10

// Handler 聊天服务的HTTP处理器
type Handler struct {
	aiService *aiService.Service
	// unavailable is reported when no AI service is configured.
	unavailable string
}

// New creates the chat handler. A nil aiSvc makes every chat request fail
// with the unavailable message.
func New(aiSvc *aiService.Service, unavailable string) *Handler {
	return &Handler{
		aiService:   aiSvc,
		unavailable: unavailable,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// DecodeRequest reads and validates a chat request body, writing the 400
// response itself when the request is unusable.
func DecodeRequest(w http.ResponseWriter, r *http.Request) (chat.Request, style.Style, bool) {
	var payload chat.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, chat.ErrMessageRequired.Error())
		return chat.Request{}, "", false
	}

	st, err := payload.Validate()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return chat.Request{}, "", false
	}
	return payload, st, true
}

// handleChat answers one message with the complete reply
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	payload, st, ok := DecodeRequest(w, r)
	if !ok {
		return
	}

	if h.aiService == nil {
		utils.RespondError(w, http.StatusInternalServerError, h.unavailable)
		return
	}

	log.Printf("[relay] chat request style=%s, length=%d", st, len(payload.Message))

	reply, err := h.aiService.GenerateReply(r.Context(), st, payload.Message)
	if errors.Is(err, aiService.ErrEmptyReply) {
		utils.RespondError(w, http.StatusInternalServerError, "No response from model")
		return
	}
	if err != nil {
		log.Printf("[relay] upstream error: %v", err)
		utils.RespondErrorDetails(w, http.StatusInternalServerError, "Upstream error", err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
