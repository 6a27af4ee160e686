package ws

import "errors"

var (
	ErrNotConnected       = errors.New("ws: not connected")
	ErrConnectionLost     = errors.New("ws: connection lost")
	ErrConnectTimeout     = errors.New("ws: connect timed out")
	ErrAuthTimeout        = errors.New("ws: authentication timed out")
	ErrAuthFailed         = errors.New("ws: authentication failed")
	ErrSignFailed         = errors.New("ws: signing authentication challenge failed")
	ErrRequestTimeout     = errors.New("ws: request timed out")
	ErrRateLimited        = errors.New("ws: send rate limit exceeded")
	ErrClosed             = errors.New("ws: session closed")
	ErrReconnectExhausted = errors.New("ws: reconnection attempts exhausted")
	ErrServerError        = errors.New("ws: server reported error")
)
