package teneo

import (
	"errors"
	"fmt"

	"github.com/teneoprotocol/teneo-go/pkg/ws"
)

// Code classifies an SDKError.
type Code string

const (
	CodeConnection     Code = "CONNECTION_ERROR"
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeTimeout        Code = "TIMEOUT_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeMessage        Code = "MESSAGE_ERROR"
	CodeWebhook        Code = "WEBHOOK_ERROR"
	CodeRateLimit      Code = "RATE_LIMIT_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// SDKError is the error type surfaced on the error event and returned
// from facade operations. Recoverable signals whether retrying the
// operation can succeed without reconfiguration.
type SDKError struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SDKError) Unwrap() error { return e.Cause }

func newError(code Code, msg string, recoverable bool, cause error) *SDKError {
	return &SDKError{Code: code, Message: msg, Recoverable: recoverable, Cause: cause}
}

// classify maps transport-level errors onto the SDK taxonomy so callers
// can switch on Code without knowing the session internals.
func classify(err error) *SDKError {
	if err == nil {
		return nil
	}
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr
	}
	switch {
	case errors.Is(err, ws.ErrRequestTimeout), errors.Is(err, ws.ErrConnectTimeout), errors.Is(err, ws.ErrAuthTimeout):
		return newError(CodeTimeout, "operation timed out", true, err)
	case errors.Is(err, ws.ErrAuthFailed), errors.Is(err, ws.ErrSignFailed):
		return newError(CodeAuthentication, "authentication failed", false, err)
	case errors.Is(err, ws.ErrRateLimited):
		return newError(CodeRateLimit, "send rate limit exceeded", true, err)
	case errors.Is(err, ws.ErrNotConnected), errors.Is(err, ws.ErrConnectionLost),
		errors.Is(err, ws.ErrClosed), errors.Is(err, ws.ErrReconnectExhausted):
		return newError(CodeConnection, "connection unavailable", errors.Is(err, ws.ErrConnectionLost), err)
	case errors.Is(err, ws.ErrServerError):
		return newError(CodeMessage, "server rejected request", false, err)
	default:
		return newError(CodeInternal, "unexpected error", false, err)
	}
}
