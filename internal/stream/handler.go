package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/identity"
	"github.com/ashureev/tutor-engine/internal/logging"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

const (
	writeTimeout    = 10 * time.Second
	defaultMaxFrame = 1 << 20
)

// Responder produces tutoring replies.
type Responder interface {
	Respond(ctx context.Context, req *domain.TutorRequest) (*tutor.Result, error)
}

// Limiter throttles requests per learner.
type Limiter interface {
	Allow(key string) bool
}

// Handler serves GET /ws/tutor. Each text frame carries one request and is
// answered by exactly one frame.
type Handler struct {
	tutor         Responder
	conns         *ConnManager
	limiter       Limiter
	allowedOrigin string
	isDev         bool
	maxFrame      int64
}

// Options configures a Handler.
type Options struct {
	AllowedOrigin string
	IsDev         bool
	Limiter       Limiter
	MaxFrameBytes int64
}

// NewHandler creates a websocket tutoring handler.
func NewHandler(t Responder, conns *ConnManager, opts Options) *Handler {
	if conns == nil {
		conns = NewConnManager()
	}
	maxFrame := opts.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = defaultMaxFrame
	}
	return &Handler{
		tutor:         t,
		conns:         conns,
		limiter:       opts.Limiter,
		allowedOrigin: opts.AllowedOrigin,
		isDev:         opts.IsDev,
		maxFrame:      maxFrame,
	}
}

// inbound is a client frame: a control message or a tutoring request.
type inbound struct {
	Type string `json:"type,omitempty"`
	domain.TutorRequest
}

// outbound is a server frame.
type outbound struct {
	Type     string                `json:"type"`
	Source   domain.ResponseSource `json:"source,omitempty"`
	Response *domain.TutorResponse `json:"response,omitempty"`
	Kind     string                `json:"kind,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Frame types.
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
)

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	log := logging.FromContext(r.Context())
	log.Info("tutor stream connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.maxFrame)

	h.conns.Register(sessionID, ws)
	defer h.conns.Unregister(sessionID, ws)

	h.readLoop(r.Context(), ws, log)
	log.Info("tutor stream ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, log *slog.Logger) {
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("websocket closed by client")
			} else if ctx.Err() == nil {
				log.Warn("websocket read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			if err := h.writeFrame(ctx, ws, outbound{Type: TypeError, Kind: string(tutor.KindInvalidRequest), Error: "expected a text frame"}); err != nil {
				return
			}
			continue
		}

		if err := h.writeFrame(ctx, ws, h.handleFrame(ctx, message, log)); err != nil {
			log.Debug("failed to write websocket frame", "error", err)
			return
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, message []byte, log *slog.Logger) outbound {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		return outbound{Type: TypeError, Kind: string(tutor.KindInvalidRequest), Error: "invalid JSON frame"}
	}

	switch msg.Type {
	case TypePing:
		return outbound{Type: TypePong}
	case "", TypeRequest:
	default:
		return outbound{Type: TypeError, Kind: string(tutor.KindInvalidRequest), Error: "unknown frame type " + msg.Type}
	}

	req := msg.TutorRequest
	if h.limiter != nil && req.LearnerID != "" && !h.limiter.Allow(req.LearnerID) {
		return outbound{Type: TypeError, Kind: "rate_limited", Error: "rate limit exceeded"}
	}

	res, err := h.tutor.Respond(ctx, &req)
	if err != nil {
		kind := tutor.KindOf(err)
		log.Warn("tutor stream request failed", "kind", kind, "error", err)
		out := outbound{Type: TypeError, Kind: string(kind)}
		switch kind {
		case tutor.KindInvalidRequest:
			out.Error = err.Error()
		case tutor.KindContextUnavailable:
			out.Error = "learner context unavailable"
		default:
			out.Error = "internal error"
		}
		return out
	}
	return outbound{Type: TypeResponse, Source: res.Source, Response: &res.Response}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, v outbound) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
