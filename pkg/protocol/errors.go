package protocol

import "errors"

var (
	ErrTooLarge    = errors.New("protocol: frame exceeds maximum size")
	ErrInvalidJSON = errors.New("protocol: frame is not valid JSON")
	ErrMissingType = errors.New("protocol: frame has no type tag")
	ErrSchema      = errors.New("protocol: frame failed schema validation")
	ErrEncode      = errors.New("protocol: message cannot be encoded")
)
