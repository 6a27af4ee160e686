// Package webhook mirrors selected SDK events to a configured HTTP
// endpoint.
//
// Events enter a bounded queue (drop-oldest on overflow) and a single
// worker drains it: each delivery is POSTed as JSON, retried with
// exponential backoff, and gated by a circuit breaker so a dead
// endpoint is not hammered. Target URLs are validated against private,
// loopback, link-local, and cloud-metadata destinations before the
// dispatcher accepts them; a URL that fails validation disables the
// dispatcher until it is reconfigured.
//
// Delivery failures never propagate into the session; they surface only
// as webhook events and counters.
package webhook
