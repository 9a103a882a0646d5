package domain

import "errors"

var (
	ErrInvalidCredential    = errors.New("invalid credential")
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")
	ErrUnknownConnection    = errors.New("unknown connection")
	ErrNotFound             = errors.New("not found")

	ErrNotAuthenticated   = errors.New("connection is not authenticated")
	ErrUnknownMessageKind = errors.New("unknown message kind")
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrNotADriver         = errors.New("action requires driver role")
	ErrNotARider          = errors.New("action requires rider role")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")

	ErrUnreachablePeer = errors.New("peer unreachable")
	ErrConnectionLost  = errors.New("connection lost")
	ErrShuttingDown    = errors.New("server shutting down")
)
