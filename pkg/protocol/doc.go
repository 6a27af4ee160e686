// Package protocol defines the wire format exchanged with a Teneo
// coordinator: the closed set of message types, the frame envelope, the
// agent and room records carried inside it, and per-type decoders that
// validate required fields before a frame reaches any handler.
//
// Frames are JSON text messages. Every frame carries a "type" tag; all
// other fields are optional at the envelope level and constrained per
// type by the decoders in this package. Frames larger than
// MaxMessageSize are rejected before parsing.
//
// Unknown type tags are not an error: Decode returns the parsed envelope
// and reports the tag as unknown so callers can ignore it, which keeps
// the client forward-compatible with newer coordinators.
package protocol
