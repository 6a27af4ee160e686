// Package backoff computes retry delays. Three strategies are provided:
// exponential growth, linear growth, and a constant interval, each with
// an optional random jitter added on top and a hard cap. The same
// strategies drive both the reconnection loop and webhook delivery
// retries.
package backoff
