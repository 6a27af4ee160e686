// Package emitter provides a small synchronous event emitter.
//
// Listeners for an event run in registration order, to completion,
// inside the Emit call. A panicking listener is recovered and logged and
// does not stop delivery to the listeners after it. This ordering is a
// contract the SDK's handler loop relies on: a frame's events are fully
// observed before the next frame is processed.
package emitter
