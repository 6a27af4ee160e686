// Package logger builds slog loggers for the SDK and provides the
// attribute helpers used across its packages. Consumers either pass a
// logger in, or use New here to construct one with the level and format
// they want. A Client given no logger builds one with New at its
// configured level, which writes JSON to stderr.
package logger
