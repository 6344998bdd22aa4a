package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/linear-tutor/internal/config"
	"github.com/zhouzirui/linear-tutor/internal/handler/chat"
	"github.com/zhouzirui/linear-tutor/internal/handler/socket"
	"github.com/zhouzirui/linear-tutor/internal/handler/stream"
	styleHandler "github.com/zhouzirui/linear-tutor/internal/handler/style"
	"github.com/zhouzirui/linear-tutor/internal/metrics"
	middlewarePkg "github.com/zhouzirui/linear-tutor/internal/middleware"
	"github.com/zhouzirui/linear-tutor/internal/model/style"
	aiService "github.com/zhouzirui/linear-tutor/internal/service/ai"
	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

// NewRouter wires HTTP routes to core services. aiSvc may be nil when the
// upstream is not configured; chat routes then answer 500 with the reason.
func NewRouter(cfg *config.Config, styles style.Store, aiSvc *aiService.Service, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(middlewarePkg.CORS(cfg.Relay.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	unavailable := cfg.AI.MissingCredential()
	if cfg.AI.Enabled() {
		unavailable = "AI service unavailable"
	}

	// Create handlers
	styleRoutes := styleHandler.New(styles)
	chatRoutes := chat.New(aiSvc, unavailable)
	streamRoutes := stream.New(aiSvc, unavailable)
	socketRoutes := socket.New(aiSvc, unavailable)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.RateLimit(middlewarePkg.RateLimitConfig{
			RPS:      cfg.Relay.RateLimitRPS,
			Burst:    cfg.Relay.RateLimitBurst,
			OnReject: m.RateLimited,
		}))

		styleRoutes.RegisterRoutes(api)
		chatRoutes.RegisterRoutes(api)
		streamRoutes.RegisterRoutes(api)
		socketRoutes.RegisterRoutes(api)
	})

	return r
}
