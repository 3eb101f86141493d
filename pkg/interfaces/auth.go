package interfaces

import (
	"context"

	"nexa/pkg/types"
)

// CredentialVerifier resolves a bearer token to the identity it names.
// The HTTP middleware and the realtime handshake share one implementation.
type CredentialVerifier interface {
	// Verify fails with an error wrapping types.ErrAuthentication when the
	// token is missing, malformed, expired, signed with an unknown key,
	// revoked, or names a user that no longer exists.
	Verify(ctx context.Context, token string) (*types.Identity, error)
}

// AccessOracle decides room access against live storage.
type AccessOracle interface {
	// CanAccessRoom is true iff identity is the course instructor or is
	// enrolled in it right now. Any lookup failure yields false.
	CanAccessRoom(ctx context.Context, identity *types.Identity, courseID string) bool
}
