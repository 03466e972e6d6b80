package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/generate"
	mediahandler "github.com/zhouzirui/gemdesk/backend/internal/handler/media"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/persona"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/session"
	settingshandler "github.com/zhouzirui/gemdesk/backend/internal/handler/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/stream"
	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/platform"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	settingsservice "github.com/zhouzirui/gemdesk/backend/internal/service/settings"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Deps 汇总路由需要的服务
type Deps struct {
	Controller *conversation.Controller
	Directory  *directory.Directory
	Settings   *settingsservice.Service
	Generator  generate.Generator
	Media      *media.Cache
	Clipboard  platform.Clipboard

	// AllowedOrigins 是允许访问的web view来源，未列出的来源一律拒绝
	AllowedOrigins []string
	Logger         *zap.Logger
}

type routeHandler interface {
	RegisterRoutes(r chi.Router)
	Ops() map[string]bridge.Op
}

// NewRouter wires HTTP routes and the bridge op registry to core services.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	origins := bridge.NewOrigins(d.AllowedOrigins)
	r.Use(cors(origins, logger))

	chatHandler := chat.New(d.Controller, d.Settings)
	handlers := []routeHandler{
		chatHandler,
		session.New(d.Directory),
		persona.New(d.Directory, d.Controller),
		mediahandler.New(d.Media, d.Clipboard, logger),
		generate.New(d.Generator, d.Settings),
		settingshandler.New(d.Settings),
	}

	registry := bridge.NewRegistry()
	for _, h := range handlers {
		for name, op := range h.Ops() {
			registry.Register(name, op)
		}
	}
	logger.Info("bridge_ops_registered", zap.Strings("ops", registry.Names()))

	r.Route("/api", func(api chi.Router) {
		for _, h := range handlers {
			h.RegisterRoutes(api)
		}
		stream.New(chatHandler, logger).RegisterRoutes(api)
		bridge.NewHandler(registry, origins, logger).RegisterRoutes(api)
	})

	return r
}

// cors 只允许白名单中的web view来源跨源访问本地服务。带有未知Origin的
// 请求直接拒绝，不进入任何处理器。
func cors(origins bridge.Origins, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !origins.Allowed(origin) {
				logger.Warn("origin_rejected", zap.String("origin", origin), zap.String("path", r.URL.Path))
				utils.RespondError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			if origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
