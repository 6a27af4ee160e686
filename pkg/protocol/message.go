package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxMessageSize is the hard cap on a single inbound frame. Frames above
// this size are rejected before JSON parsing to bound allocation.
const MaxMessageSize = 2 << 20 // 2 MiB

// Type tags the kind of a frame. The set is closed on the coordinator
// side; the client treats unlisted tags as unknown and skips them.
type Type string

// Inbound message types.
const (
	TypeChallenge     Type = "challenge"
	TypeAuth          Type = "auth"
	TypeAuthSuccess   Type = "auth_success"
	TypeAuthError     Type = "auth_error"
	TypeAuthRequired  Type = "auth_required"
	TypeAgents        Type = "agents"
	TypeAgentSelected Type = "agent_selected"
	TypeTaskResponse  Type = "task_response"
	TypeMessage       Type = "message"
	TypeSubscribe     Type = "subscribe"
	TypeUnsubscribe   Type = "unsubscribe"
	TypeListRooms     Type = "list_rooms"
	TypeError         Type = "error"
	TypePing          Type = "ping"
	TypePong          Type = "pong"
)

// Outbound-only message types.
const (
	TypeRequestChallenge Type = "request_challenge"
	TypeTask             Type = "task"
)

var knownTypes = map[Type]struct{}{
	TypeChallenge: {}, TypeAuth: {}, TypeAuthSuccess: {}, TypeAuthError: {},
	TypeAuthRequired: {}, TypeAgents: {}, TypeAgentSelected: {},
	TypeTaskResponse: {}, TypeMessage: {}, TypeSubscribe: {},
	TypeUnsubscribe: {}, TypeListRooms: {}, TypeError: {}, TypePing: {},
	TypePong: {}, TypeRequestChallenge: {}, TypeTask: {},
}

// Known reports whether the tag belongs to the closed protocol set.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Message is the frame envelope. Fields beyond Type are optional at the
// envelope level; per-type decoders enforce what each tag requires.
type Message struct {
	Type        Type           `json:"type"`
	ID          string         `json:"id,omitempty"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to,omitempty"`
	Room        string         `json:"room,omitempty"`
	Content     string         `json:"content,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Signature   string         `json:"signature,omitempty"`
	Timestamp   int64          `json:"timestamp,omitempty"`
}

// New builds an outbound message stamped with the current time.
func New(t Type) *Message {
	return &Message{
		Type:      t,
		Data:      map[string]any{},
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode marshals the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return raw, nil
}

// DataString returns the string value stored under key in Data, or ""
// when absent or of another type.
func (m *Message) DataString(key string) string {
	if m.Data == nil {
		return ""
	}
	if s, ok := m.Data[key].(string); ok {
		return s
	}
	return ""
}

// DataBool returns the boolean stored under key in Data.
func (m *Message) DataBool(key string) bool {
	if m.Data == nil {
		return false
	}
	b, _ := m.Data[key].(bool)
	return b
}

// SetData stores a value under key, allocating Data when needed.
func (m *Message) SetData(key string, value any) {
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	m.Data[key] = value
}

// ClientRequestID returns the correlation token stamped into Data by the
// sender, if any.
func (m *Message) ClientRequestID() string { return m.DataString("client_request_id") }

// TaskID returns the coordinator-assigned task identifier stored at
// data.task_id, if any. The envelope id is not consulted.
func (m *Message) TaskID() string { return m.DataString("task_id") }

// CanonicalBytes returns a stable serialization of the message with the
// signature field removed, suitable as input for signature verification.
// encoding/json writes map keys in sorted order, which pins the layout.
func (m *Message) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	delete(flat, "signature")
	out, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return out, nil
}

// decodeDataInto re-marshals a Data subfield into a typed destination.
// The double pass trades a copy for not hand-walking map[string]any.
func (m *Message) decodeDataInto(key string, dst any) error {
	if m.Data == nil {
		return fmt.Errorf("%w: missing data.%s", ErrSchema, key)
	}
	v, ok := m.Data[key]
	if !ok {
		return fmt.Errorf("%w: missing data.%s", ErrSchema, key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: data.%s: %w", ErrSchema, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: data.%s: %w", ErrSchema, key, err)
	}
	return nil
}

// DecodeAgents extracts the agent list carried by an "agents" frame.
func (m *Message) DecodeAgents() ([]Agent, error) {
	var agents []Agent
	if err := m.decodeDataInto("agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// DecodeRooms extracts a room list from the named data field, accepting
// both the rich object form and plain room-id strings.
func (m *Message) DecodeRooms(key string) ([]Room, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%w: missing data.%s", ErrSchema, key)
	}
	items, ok := m.Data[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: data.%s is not a list", ErrSchema, key)
	}
	rooms := make([]Room, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			rooms = append(rooms, Room{ID: v})
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: data.%s: %w", ErrSchema, key, err)
			}
			var room Room
			if err := json.Unmarshal(raw, &room); err != nil {
				return nil, fmt.Errorf("%w: data.%s: %w", ErrSchema, key, err)
			}
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}
