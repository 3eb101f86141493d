package auth

import (
	"fmt"

	"nexa/pkg/types"
)

// Authentication errors. All of them classify as types.ErrAuthentication.
var (
	ErrMissingToken       = fmt.Errorf("%w: missing token", types.ErrAuthentication)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", types.ErrAuthentication)
	ErrTokenRevoked       = fmt.Errorf("%w: token revoked", types.ErrAuthentication)
	ErrUnknownUser        = fmt.Errorf("%w: user no longer exists", types.ErrAuthentication)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", types.ErrAuthentication)
)
