package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed     = errors.New("connection closed")
	ErrWriteTimeout         = errors.New("write timeout")
	ErrSendBufferFull       = errors.New("outbound buffer full")
	ErrInvalidJSON          = errors.New("invalid JSON data")
	ErrNilIdentity          = errors.New("identity cannot be nil")
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
	ErrConnectionNotRegistered    = errors.New("connection is not registered")
)
