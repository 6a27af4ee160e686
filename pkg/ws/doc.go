// Package ws owns the coordinator connection: the WebSocket dial, the
// challenge-response authentication state machine, the heartbeat, the
// reconnection loop, serialized outbound writes, and the correlation
// table that matches replies to in-flight requests.
//
// The session decodes inbound frames and hands them, in arrival order,
// to a single callback; the callback runs to completion before the next
// frame is read. Everything application-level (typed events, registries,
// webhooks, deduplication) lives above this package in the client.
package ws
