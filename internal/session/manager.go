package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

// Rooms is the membership table the manager drives.
type Rooms interface {
	Admit(conn interfaces.Connection, courseID string) (bool, error)
	Dismiss(connID, courseID string) bool
	DismissAll(connID string) []string
	IsMember(connID, courseID string) bool
}

// Manager runs the chat state machine of authenticated connections: joining
// rooms, sending to them, leaving them and disconnecting.
//
// No lock is held while the oracle or storage is consulted. The only shared
// state is the Rooms table, which serializes its own updates.
type Manager struct {
	oracle    interfaces.AccessOracle
	rooms     Rooms
	chats     interfaces.ChatStore
	publisher interfaces.Publisher
	logger    *slog.Logger

	joins    atomic.Int64
	denials  atomic.Int64
	messages atomic.Int64
}

// NewManager creates a new chat session manager
func NewManager(oracle interfaces.AccessOracle, rooms Rooms, chats interfaces.ChatStore, publisher interfaces.Publisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		oracle:    oracle,
		rooms:     rooms,
		chats:     chats,
		publisher: publisher,
		logger:    logger,
	}
}

// Join admits conn to the room of courseID after a fresh access check.
// Joining a room the connection is already in succeeds again.
func (m *Manager) Join(ctx context.Context, conn interfaces.Connection, courseID string) error {
	identity := conn.Identity()
	if identity == nil {
		return ErrNotAuthenticated
	}
	if !types.IsValidID(courseID) {
		return types.ErrInvalidID
	}

	// Unknown courses are denied like any other course the user cannot access
	if !m.oracle.CanAccessRoom(ctx, identity, courseID) {
		m.denials.Add(1)
		m.logger.Info("room join denied", "conn_id", conn.ID(), "user_id", identity.ID, "course_id", courseID)
		return ErrNotAuthorized
	}

	added, err := m.rooms.Admit(conn, courseID)
	if err != nil {
		return fmt.Errorf("failed to admit connection: %w", err)
	}
	if added {
		m.joins.Add(1)
		m.logger.Info("room joined", "conn_id", conn.ID(), "user_id", identity.ID, "course_id", courseID)
	}
	return nil
}

// Send persists body as a message from conn to courseID's room and, once
// committed, hands it to the publisher. The connection must have joined the
// room. Nothing is broadcast when persisting fails.
func (m *Manager) Send(ctx context.Context, conn interfaces.Connection, courseID, body string) (*types.ChatMessage, error) {
	identity := conn.Identity()
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	if !types.IsValidID(courseID) {
		return nil, types.ErrInvalidID
	}
	body, err := types.NormalizeMessage(body)
	if err != nil {
		return nil, err
	}
	if !m.rooms.IsMember(conn.ID(), courseID) {
		return nil, ErrNotJoined
	}

	message := &types.ChatMessage{
		CourseID: courseID,
		Sender:   types.Sender{ID: identity.ID},
		Message:  body,
	}

	// Runs on the storage writer in commit order, so publish order is commit order
	publish := func(committed *types.ChatMessage) {
		if err := m.publisher.Publish(committed); err != nil {
			m.logger.Error("failed to publish chat message",
				"message_id", committed.ID, "course_id", committed.CourseID, "error", err)
		}
	}

	if err := m.chats.StoreChatMessage(ctx, message, publish); err != nil {
		m.logger.Warn("failed to store chat message",
			"conn_id", conn.ID(), "user_id", identity.ID, "course_id", courseID, "error", err)
		return nil, err
	}

	m.messages.Add(1)
	return message, nil
}

// Leave removes conn from courseID's room. Leaving a room the connection is
// not in is not an error.
func (m *Manager) Leave(conn interfaces.Connection, courseID string) error {
	if !types.IsValidID(courseID) {
		return types.ErrInvalidID
	}
	if m.rooms.Dismiss(conn.ID(), courseID) {
		m.logger.Info("room left", "conn_id", conn.ID(), "course_id", courseID)
	}
	return nil
}

// Disconnect drops every membership of conn. It is safe to call more than once.
func (m *Manager) Disconnect(conn interfaces.Connection) {
	rooms := m.rooms.DismissAll(conn.ID())
	if len(rooms) > 0 {
		m.logger.Info("connection left rooms on disconnect", "conn_id", conn.ID(), "rooms", rooms)
	}
}

// GetStats returns chat session counters
func (m *Manager) GetStats() map[string]int64 {
	return map[string]int64{
		"joins":         m.joins.Load(),
		"join_denials":  m.denials.Load(),
		"messages_sent": m.messages.Load(),
	}
}
