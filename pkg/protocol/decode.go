package protocol

import (
	"encoding/json"
	"fmt"
)

// schema is a per-type validator run after envelope parsing. It checks
// required fields only; handlers extract typed payloads themselves.
type schema func(*Message) error

var schemas = map[Type]schema{
	TypeChallenge: func(m *Message) error {
		return requireDataString(m, "challenge")
	},
	// auth frames arrive in several server dialects: identity fields in
	// data, a cached_auth flag, or just a "to" naming the client. The
	// envelope alone is enough; the handler sorts out which dialect.
	TypeAuth:         nil,
	TypeAuthSuccess:  nil,
	TypeAuthRequired: nil,
	TypeAuthError: func(m *Message) error {
		if m.DataString("error") == "" && m.Content == "" {
			return fmt.Errorf("%w: auth_error carries no error text", ErrSchema)
		}
		return nil
	},
	TypeAgents: func(m *Message) error {
		if m.Data == nil {
			return fmt.Errorf("%w: missing data.agents", ErrSchema)
		}
		if _, ok := m.Data["agents"].([]any); !ok {
			return fmt.Errorf("%w: data.agents is not a list", ErrSchema)
		}
		return nil
	},
	TypeAgentSelected: func(m *Message) error {
		return requireDataString(m, "agent_id")
	},
	TypeTaskResponse: func(m *Message) error {
		if m.Content == "" && m.DataString("content") == "" {
			return fmt.Errorf("%w: task_response carries no content", ErrSchema)
		}
		return nil
	},
	TypeMessage: func(m *Message) error {
		if m.Content == "" {
			return fmt.Errorf("%w: message carries no content", ErrSchema)
		}
		return nil
	},
	TypeSubscribe:   requireSubscriptionResult,
	TypeUnsubscribe: requireSubscriptionResult,
	TypeListRooms: func(m *Message) error {
		if m.Data == nil {
			return fmt.Errorf("%w: missing data.rooms", ErrSchema)
		}
		if _, ok := m.Data["rooms"].([]any); !ok {
			return fmt.Errorf("%w: data.rooms is not a list", ErrSchema)
		}
		return nil
	},
	TypeError: func(m *Message) error {
		if m.DataString("error") == "" && m.DataString("message") == "" && m.Content == "" {
			return fmt.Errorf("%w: error frame carries no error text", ErrSchema)
		}
		return nil
	},
	TypePing: nil,
	TypePong: nil,
}

func requireDataString(m *Message, key string) error {
	if m.DataString(key) == "" {
		return fmt.Errorf("%w: missing data.%s", ErrSchema, key)
	}
	return nil
}

// Subscribe acks either carry the authoritative subscriptions list on
// success or an error string on failure. One of the two must be present.
func requireSubscriptionResult(m *Message) error {
	if m.Data == nil {
		return fmt.Errorf("%w: missing data", ErrSchema)
	}
	if _, ok := m.Data["subscriptions"].([]any); ok {
		return nil
	}
	if m.DataString("error") != "" {
		return nil
	}
	if m.DataBool("success") {
		return nil
	}
	return fmt.Errorf("%w: subscription ack carries neither subscriptions nor error", ErrSchema)
}

// Decode parses and validates one inbound frame. The returned message is
// valid for its type when err is nil. Unknown type tags decode
// successfully with known=false so the caller can skip them silently.
func Decode(raw []byte) (msg *Message, known bool, err error) {
	if len(raw) > MaxMessageSize {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if m.Type == "" {
		return nil, false, ErrMissingType
	}
	if !m.Type.Known() {
		return &m, false, nil
	}
	if validate := schemas[m.Type]; validate != nil {
		if err := validate(&m); err != nil {
			return nil, true, err
		}
	}
	return &m, true, nil
}
