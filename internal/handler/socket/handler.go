package socket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	streamHandler "github.com/zhouzirui/linear-tutor/internal/handler/stream"
	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	aiService "github.com/zhouzirui/linear-tutor/internal/service/ai"
	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket聊天处理器
type Handler struct {
	aiService   *aiService.Service
	unavailable string
	upgrader    websocket.Upgrader
}

// New 创建WebSocket处理器
func New(aiSvc *aiService.Service, unavailable string) *Handler {
	return &Handler{
		aiService:   aiSvc,
		unavailable: unavailable,
		upgrader: websocket.Upgrader{
			// Origins are enforced by the CORS middleware configuration.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.aiService == nil {
		utils.RespondError(w, http.StatusInternalServerError, h.unavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	for {
		var msg chat.SocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.handleMessage(ctx, conn, msg); err != nil {
			log.Printf("[ws] write failed: %v", err)
			return
		}
	}
}

// handleMessage answers one client frame. Only write failures are returned;
// turn failures are reported to the client as error frames.
func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, msg chat.SocketMessage) error {
	if msg.Type != "message" {
		return send(conn, chat.StreamResponse{Event: chat.EventError, Error: "unsupported message type " + msg.Type})
	}

	st, err := chat.Request{Message: msg.Message, Style: msg.Style}.Validate()
	if err != nil {
		return send(conn, chat.StreamResponse{Event: chat.EventError, Error: err.Error()})
	}

	if err := send(conn, chat.StreamResponse{Event: chat.EventStart, Style: string(st)}); err != nil {
		return err
	}

	var writeErr error
	reply, err := h.aiService.Reply(ctx, st, msg.Message, func(delta string) {
		if writeErr == nil {
			writeErr = send(conn, chat.StreamResponse{Event: chat.EventDelta, Content: delta})
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		log.Printf("[ws] turn failed: %v", err)
		return send(conn, chat.StreamResponse{Event: chat.EventError, Error: streamHandler.DescribeError(err)})
	}

	if err := send(conn, chat.StreamResponse{Event: chat.EventMessage, Content: reply}); err != nil {
		return err
	}
	return send(conn, chat.StreamResponse{Event: chat.EventEnd, Finished: true})
}

func send(conn *websocket.Conn, frame chat.StreamResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// pingLoop keeps idle connections alive. WriteControl is safe to call
// alongside the frame writes of the read loop.
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
