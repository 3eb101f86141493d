package interfaces

import "nexa/pkg/types"

// Connection is one live realtime client as seen by the room registry,
// the chat session manager and the fan-out hub.
type Connection interface {
	// ID is unique per process for the lifetime of the connection.
	ID() string

	// Identity returns the principal bound at authentication, or nil while
	// the connection is still unauthenticated. It never changes once set.
	Identity() *types.Identity

	// Send queues v for delivery without blocking. Implementations return
	// an error when the connection is closed or its outbound buffer is full.
	Send(v interface{}) error

	// Close tears the connection down. It is safe to call more than once.
	Close() error
}
