package logger

import "log/slog"

// Attribute helpers return an empty Attr for nil/empty input so call
// sites never need their own guards.

// Error wraps a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// MessageType tags a record with the frame type being processed.
func MessageType(t string) slog.Attr {
	if t == "" {
		return slog.Attr{}
	}
	return slog.String("message_type", t)
}

// RequestID tags a record with a client request id.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Room tags a record with a room id.
func Room(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("room", id)
}

// AgentID tags a record with an agent id.
func AgentID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("agent_id", id)
}

// Attempt tags a record with a retry or reconnect attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}
