package session

import (
	"fmt"

	"nexa/pkg/types"
)

// Chat session errors. Each wraps the failure kind it reports as.
var (
	ErrNotAuthenticated = fmt.Errorf("%w: connection has no identity", types.ErrAuthentication)
	ErrNotAuthorized    = fmt.Errorf("%w: not authorized for this room", types.ErrAuthorization)
	ErrNotJoined        = fmt.Errorf("%w: join the room before sending", types.ErrAuthorization)
)
