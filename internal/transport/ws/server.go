// Package ws serves the client WebSocket endpoint.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"
	"github.com/cwrk-planet/ride-hub/internal/router"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

type Lifecycle interface {
	Admit(peer domain.Peer, remoteAddr string) string
	Evict(id string, reason error) bool
}

type Dispatcher interface {
	Handle(ctx context.Context, s router.Session, raw []byte) error
	Fail(connID, ref string, err error) error
}

type Options struct {
	SendQueue      int
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	RateLimit      float64 // envelopes per second; 0 disables
	RateBurst      int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.RateLimit > 0 && o.RateBurst <= 0 {
		o.RateBurst = int(o.RateLimit)
		if o.RateBurst < 1 {
			o.RateBurst = 1
		}
	}
	return o
}

type Server struct {
	upgrader websocket.Upgrader
	lc       Lifecycle
	dispatch Dispatcher
	opts     Options
	log      *slog.Logger
}

func NewServer(lc Lifecycle, d Dispatcher, opts Options, log *slog.Logger) *Server {
	log = log.With(slog.String("component", "ws"))
	opts = opts.withDefaults()
	origins := newOriginPolicy(opts.AllowedOrigins, log)
	return &Server{
		lc:       lc,
		dispatch: d,
		opts:     opts,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origins.check(r) {
					return true
				}
				log.Warn("blocked connection from disallowed origin", "origin", r.Header.Get("Origin"))
				return false
			},
		},
	}
}

// HandleWS: GET /ws?token=...
// A request without a credential is refused before the upgrade.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := credentialFrom(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newWsConn(conn, s.opts.SendQueue, s.opts.WriteWait)
	id := s.lc.Admit(c, r.RemoteAddr)
	log := s.log.With(slog.String("conn_id", id))
	log.Info("ws connected", "remote", r.RemoteAddr)

	go s.writeLoop(c, log)
	reason := s.readLoop(r.Context(), router.Session{ConnID: id, Credential: token}, c, log)

	s.lc.Evict(id, reason)
	log.Info("ws disconnected", "reason", reason)
}

func credentialFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

// readLoop processes frames in arrival order until the socket fails and
// returns the reason.
func (s *Server) readLoop(ctx context.Context, sess router.Session, c *wsConn, log *slog.Logger) error {
	c.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	var limiter *rate.Limiter
	if s.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logReadError(log, err)
			return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
		}
		if c.isClosed() {
			return domain.ErrConnectionLost
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if limiter != nil && !limiter.Allow() {
			_ = s.dispatch.Fail(sess.ConnID, gjson.GetBytes(data, "kind").String(), domain.ErrRateLimited)
			continue
		}
		s.handle(ctx, sess, data, log)
	}
}

func (s *Server) handle(ctx context.Context, sess router.Session, data []byte, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("ws handler panic", "panic", rec, "stack", string(debug.Stack()))
			_ = s.dispatch.Fail(sess.ConnID, "", domain.ErrInternal)
		}
	}()
	if err := s.dispatch.Handle(ctx, sess, data); err != nil {
		log.Debug("envelope rejected", "err", err)
	}
}

func (s *Server) writeLoop(c *wsConn, log *slog.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("ws write failed", "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				log.Debug("ws ping failed", "err", err)
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func logReadError(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("ws frame exceeds read limit", "err", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Debug("ws closed by client", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Debug("ws connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		log.Warn("ws unexpected close", "err", err)
	default:
		log.Info("ws read failed", "err", err)
	}
}

func isExpectedCloseError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "use of closed network connection") ||
		strings.Contains(s, "websocket: close sent") ||
		strings.Contains(s, "broken pipe")
}
