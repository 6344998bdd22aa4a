package style

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/linear-tutor/internal/model/style"
	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

// Handler 教学风格的HTTP处理器
type Handler struct {
	styles style.Store
}

// New 创建风格处理器
func New(styles style.Store) *Handler {
	return &Handler{
		styles: styles,
	}
}

// RegisterRoutes 注册风格相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/styles", h.handleListStyles)
}

// handleListStyles 列出所有教学风格
func (h *Handler) handleListStyles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"default": style.Default,
		"styles":  h.styles.List(),
	})
}
