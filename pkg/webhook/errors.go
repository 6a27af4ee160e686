package webhook

import "errors"

var (
	ErrInvalidURL       = errors.New("webhook: invalid URL")
	ErrForbiddenTarget  = errors.New("webhook: URL resolves to a forbidden destination")
	ErrNotConfigured    = errors.New("webhook: no endpoint configured")
	ErrDisabled         = errors.New("webhook: dispatcher disabled by failed URL validation")
	ErrCircuitOpen      = errors.New("webhook: circuit breaker is open")
	ErrDeliveryFailed   = errors.New("webhook: delivery failed")
	ErrPermanentFailure = errors.New("webhook: permanent delivery failure")
	ErrClosed           = errors.New("webhook: dispatcher closed")
)
