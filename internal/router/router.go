package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"nexa/internal/session"
	"nexa/internal/validation"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

var _ interfaces.EventHandler = (*Router)(nil)

// ChatSessions is the chat state machine the router dispatches to.
type ChatSessions interface {
	Join(ctx context.Context, conn interfaces.Connection, courseID string) error
	Send(ctx context.Context, conn interfaces.Connection, courseID, body string) (*types.ChatMessage, error)
	Leave(conn interfaces.Connection, courseID string) error
	Disconnect(conn interfaces.Connection)
}

// Router decodes inbound frames into client events, validates them at the
// boundary and dispatches them. Every failed action is answered with an
// error event to the acting connection only.
type Router struct {
	sessions    ChatSessions
	validate    *validator.Validate
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewRouter creates a router limiting each user to rateLimit sends per
// rateWindow.
func NewRouter(sessions ChatSessions, rateLimit int, rateWindow time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions:    sessions,
		validate:    validation.New(),
		rateLimiter: NewRateLimiter(rateLimit, rateWindow),
		logger:      logger,
	}
}

// RateLimiter returns the limiter so its cleanup can be scheduled.
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// HandleFrame processes one inbound frame from an authenticated connection.
func (r *Router) HandleFrame(ctx context.Context, conn interfaces.Connection, data []byte) {
	event, err := types.DecodeClientEvent(data)
	if err != nil {
		r.reply(conn, errorEvent(err, ""))
		return
	}
	if err := validation.Check(r.validate, event); err != nil {
		r.reply(conn, errorEvent(err, courseOf(event)))
		return
	}

	switch e := event.(type) {
	case types.AuthenticateEvent:
		// Identity is bound once, at connect time
		r.reply(conn, errorEvent(ErrAlreadyAuthenticated, ""))

	case types.JoinRoomEvent:
		if err := r.sessions.Join(ctx, conn, e.CourseID); err != nil {
			r.reply(conn, r.failure(conn, e, err))
			return
		}
		r.reply(conn, types.NewRoomEvent(types.EventRoomJoined, e.CourseID))

	case types.SendMessageEvent:
		if !r.rateLimiter.Allow(conn.Identity().ID) {
			r.reply(conn, errorEvent(ErrRateLimitExceeded, e.CourseID))
			return
		}
		// The sender's copy arrives through the room broadcast
		if _, err := r.sessions.Send(ctx, conn, e.CourseID, e.Message); err != nil {
			r.reply(conn, r.failure(conn, e, err))
		}

	case types.LeaveRoomEvent:
		if err := r.sessions.Leave(conn, e.CourseID); err != nil {
			r.reply(conn, r.failure(conn, e, err))
			return
		}
		r.reply(conn, types.NewRoomEvent(types.EventRoomLeft, e.CourseID))
	}
}

// Disconnect drops the connection's memberships.
func (r *Router) Disconnect(conn interfaces.Connection) {
	r.sessions.Disconnect(conn)
}

func (r *Router) failure(conn interfaces.Connection, event types.ClientEvent, err error) *types.ErrorEvent {
	reply := errorEvent(err, courseOf(event))
	if reply.Code == types.CodeInternal {
		r.logger.Error("realtime action failed",
			"conn_id", conn.ID(), "event", event.EventType(), "course_id", reply.CourseID, "error", err)
	}
	return reply
}

func (r *Router) reply(conn interfaces.Connection, event interface{}) {
	if err := conn.Send(event); err != nil {
		r.logger.Debug("failed to reply", "conn_id", conn.ID(), "error", err)
	}
}

// ErrorCode maps a failure to the code carried by error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		return types.CodeRateLimited
	case errors.Is(err, session.ErrNotJoined):
		return types.CodeNotJoined
	case errors.Is(err, types.ErrAuthentication):
		return types.CodeAuthenticationFailed
	case errors.Is(err, types.ErrAuthorization):
		return types.CodeNotAuthorized
	case errors.Is(err, types.ErrValidation):
		return types.CodeInvalidRequest
	case errors.Is(err, types.ErrNotFound):
		return types.CodeNotFound
	case errors.Is(err, types.ErrPersistence):
		return types.CodePersistenceFailed
	default:
		return types.CodeInternal
	}
}

func errorEvent(err error, courseID string) *types.ErrorEvent {
	code := ErrorCode(err)
	reason := err.Error()
	switch code {
	case types.CodePersistenceFailed:
		reason = "message could not be stored"
	case types.CodeInternal:
		reason = "internal error"
	}
	return types.NewErrorEvent(code, reason, courseID)
}

func courseOf(event types.ClientEvent) string {
	switch e := event.(type) {
	case types.JoinRoomEvent:
		return e.CourseID
	case types.SendMessageEvent:
		return e.CourseID
	case types.LeaveRoomEvent:
		return e.CourseID
	default:
		return ""
	}
}
