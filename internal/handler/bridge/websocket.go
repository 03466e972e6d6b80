package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

const (
	maxPayloadBytes = 64 << 20
	pongWait        = 60 * time.Second
	pingPeriod      = 25 * time.Second
	writeWait       = 10 * time.Second
)

// Request is one inbound frame.
type Request struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request with the same ID.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// Handler WebSocket桥接处理器
type Handler struct {
	registry *Registry
	origins  Origins
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建桥接处理器
func NewHandler(registry *Registry, origins Origins, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		registry: registry,
		origins:  origins,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if h.origins.Allowed(origin) {
		return true
	}
	h.logger.Warn("bridge_origin_rejected", zap.String("origin", origin))
	return false
}

// RegisterRoutes 注册桥接路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/bridge", h.handleWebSocket)
	r.Get("/bridge/ops", h.handleListOps)
}

func (h *Handler) handleListOps(w http.ResponseWriter, _ *http.Request) {
	utils.RespondOK(w, http.StatusOK, h.registry.Names())
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(resp)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("bridge_upgrade_failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ws.SetReadLimit(maxPayloadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, c)
	h.logger.Info("bridge_connected", zap.String("remote", r.RemoteAddr))

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var req Request
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("bridge_read_failed", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if err := c.write(h.dispatch(ctx, req)); err != nil {
				h.logger.Warn("bridge_write_failed", zap.String("op", req.Op), zap.Error(err))
			}
		}()
	}
}

// dispatch runs one request. Ops are independent and run concurrently.
func (h *Handler) dispatch(ctx context.Context, req Request) Response {
	op, ok := h.registry.Lookup(req.Op)
	if !ok {
		return Response{ID: req.ID, Error: "unknown op: " + req.Op, Status: http.StatusNotFound}
	}

	start := time.Now()
	data, err := op(ctx, req.Payload)
	if err != nil {
		h.logger.Info("bridge_op_failed", zap.String("op", req.Op), zap.Duration("took", time.Since(start)), zap.Error(err))
		return Response{ID: req.ID, Error: err.Error(), Status: apierr.Status(err)}
	}
	h.logger.Debug("bridge_op", zap.String("op", req.Op), zap.Duration("took", time.Since(start)))
	return Response{ID: req.ID, Success: true, Data: data}
}

func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
