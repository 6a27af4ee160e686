// Package ratelimit provides an in-process token bucket guarding the
// outbound send path. The bucket refills continuously at a fixed rate
// and allows bursts up to its capacity. Allow is non-blocking: callers
// translate a refusal into an error rather than queueing. Tokens do not
// persist across process lifetimes.
package ratelimit
