package signer

import "errors"

var (
	ErrInvalidKey       = errors.New("signer: private key must be 32 non-zero bytes")
	ErrDestroyed        = errors.New("signer: secret has been destroyed")
	ErrSealFailed       = errors.New("signer: sealing secret failed")
	ErrUnsealFailed     = errors.New("signer: unsealing secret failed")
	ErrSignFailed       = errors.New("signer: signing failed")
	ErrInvalidSignature = errors.New("signer: malformed signature")
)
