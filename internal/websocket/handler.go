package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nexa/internal/auth"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

// maxFrameBytes bounds one inbound frame. A maximal sendMessage is well
// below it even with multi-byte characters.
const maxFrameBytes = 64 * 1024

// HandlerConfig holds the realtime endpoint settings.
type HandlerConfig struct {
	CookieName       string
	AuthTimeout      time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
	AllowedOrigins   []string
}

// DefaultHandlerConfig returns the settings used when nothing is overridden.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		CookieName:       "jwt",
		AuthTimeout:      10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       100,
	}
}

// Handler upgrades realtime connections, authenticates them and pumps their
// inbound frames to an EventHandler.
type Handler struct {
	registry *Registry
	verifier interfaces.CredentialVerifier
	events   interfaces.EventHandler
	config   HandlerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, verifier interfaces.CredentialVerifier, events interfaces.EventHandler, config HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		registry: registry,
		verifier: verifier,
		events:   events,
		config:   config,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: config.HandshakeTimeout,
	}
	return h
}

// checkOrigin allows same-origin requests, requests without an Origin header
// and the configured origins. "*" allows everything.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// HandleWebSocket authenticates and upgrades one realtime connection.
//
// A credential presented on the upgrade request is verified first and a
// failure is answered with HTTP 401 without upgrading. Without a credential
// the socket is upgraded unauthenticated and the first frame must be an
// authenticate event arriving within the auth timeout.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var identity *types.Identity
	if token := auth.TokenFromRequest(r, h.config.CookieName); token != "" {
		var err error
		identity, err = h.verifier.Verify(r.Context(), token)
		if err != nil {
			h.logger.Info("websocket handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	wsConn.SetReadLimit(maxFrameBytes)

	conn := NewConnection(wsConn, h.config.BufferSize, h.config.WriteTimeout)

	go h.handleConnection(conn, identity)
}

// handleConnection owns the read side of conn for its whole life.
func (h *Handler) handleConnection(conn *Connection, identity *types.Identity) {
	defer func() { _ = conn.Close() }()

	if identity == nil {
		var ok bool
		if identity, ok = h.awaitAuthentication(conn); !ok {
			return
		}
	}

	if err := h.bind(conn, identity); err != nil {
		h.logger.Error("failed to bind connection", "conn_id", conn.ID(), "error", err)
		return
	}

	logger := h.logger.With("conn_id", conn.ID(), "user_id", identity.ID)
	logger.Info("websocket connected")

	defer func() {
		// Disconnect is terminal: no more deliveries once memberships are gone
		h.events.Disconnect(conn)
		h.registry.UnregisterConnection(conn.ID())
		logger.Info("websocket disconnected")
	}()

	if err := conn.WriteJSON(types.NewAuthenticatedEvent(identity)); err != nil {
		logger.Warn("failed to send authenticated event", "error", err)
		return
	}

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	// Events of one connection are handled one at a time, in arrival order.
	// Accepted actions run to completion even if the peer goes away.
	ctx := context.Background()
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			_ = conn.Send(types.NewErrorEvent(types.CodeInvalidRequest, "only JSON text frames are accepted", ""))
			continue
		}

		h.events.HandleFrame(ctx, conn, data)
	}
}

// awaitAuthentication reads the first frame of an unauthenticated
// connection. Anything but a valid authenticate event ends the connection.
func (h *Handler) awaitAuthentication(conn *Connection) (*types.Identity, bool) {
	fail := func(reason string, err error) (*types.Identity, bool) {
		h.logger.Info("websocket authentication failed", "conn_id", conn.ID(), "reason", reason, "error", err)
		_ = conn.Send(types.NewErrorEvent(types.CodeAuthenticationFailed, reason, ""))
		conn.CloseWithReason(websocket.ClosePolicyViolation, reason)
		<-conn.Done()
		return nil, false
	}

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.AuthTimeout)); err != nil {
		return nil, false
	}

	messageType, data, err := conn.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fail("authentication timeout", err)
		}
		return nil, false
	}
	if messageType != websocket.TextMessage {
		return fail("authentication required", nil)
	}

	event, err := types.DecodeClientEvent(data)
	if err != nil {
		return fail("authentication required", err)
	}
	authEvent, ok := event.(types.AuthenticateEvent)
	if !ok || strings.TrimSpace(authEvent.Token) == "" {
		return fail("authentication required", nil)
	}

	identity, err := h.verifier.Verify(context.Background(), authEvent.Token)
	if err != nil {
		return fail("invalid credentials", err)
	}
	return identity, true
}

func (h *Handler) bind(conn *Connection, identity *types.Identity) error {
	if err := conn.SetIdentity(identity); err != nil {
		return err
	}
	return h.registry.RegisterConnection(conn)
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
