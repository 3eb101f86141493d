package router

import (
	"fmt"

	"nexa/pkg/types"
)

// Router errors
var (
	ErrRateLimitExceeded    = fmt.Errorf("%w: rate limit exceeded", types.ErrValidation)
	ErrAlreadyAuthenticated = fmt.Errorf("%w: connection is already authenticated", types.ErrValidation)
)
