package interfaces

import (
	"context"

	"nexa/pkg/types"
)

// EventHandler receives the inbound frames of authenticated connections.
// Calls for one connection are never concurrent.
type EventHandler interface {
	HandleFrame(ctx context.Context, conn Connection, data []byte)

	// Disconnect runs exactly once when the connection's read side ends.
	Disconnect(conn Connection)
}

// Publisher hands a committed chat message to fan-out.
type Publisher interface {
	Publish(message *types.ChatMessage) error
}
