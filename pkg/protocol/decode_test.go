package protocol_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

func TestDecode_ValidFrames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want protocol.Type
	}{
		{"challenge", `{"type":"challenge","data":{"challenge":"abc123"}}`, protocol.TypeChallenge},
		{"auth grant", `{"type":"auth","data":{"id":"c-1","address":"0xabc"}}`, protocol.TypeAuth},
		{"auth bare", `{"type":"auth"}`, protocol.TypeAuth},
		{"agents", `{"type":"agents","data":{"agents":[]}}`, protocol.TypeAgents},
		{"task response", `{"type":"task_response","content":"pong","data":{"task_id":"t-7"}}`, protocol.TypeTaskResponse},
		{"subscribe ack", `{"type":"subscribe","data":{"subscriptions":["r-1"]}}`, protocol.TypeSubscribe},
		{"subscribe error", `{"type":"subscribe","data":{"error":"denied"}}`, protocol.TypeSubscribe},
		{"ping", `{"type":"ping"}`, protocol.TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msg, known, err := protocol.Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.True(t, known)
			assert.Equal(t, tc.want, msg.Type)
		})
	}
}

func TestDecode_SchemaFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"challenge without nonce", `{"type":"challenge","data":{}}`},
		{"agents without list", `{"type":"agents","data":{"agents":"nope"}}`},
		{"agent_selected without id", `{"type":"agent_selected","data":{}}`},
		{"task_response without content", `{"type":"task_response","data":{}}`},
		{"message without content", `{"type":"message"}`},
		{"subscribe without result", `{"type":"subscribe","data":{}}`},
		{"list_rooms without rooms", `{"type":"list_rooms","data":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, known, err := protocol.Decode([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, known)
			assert.ErrorIs(t, err, protocol.ErrSchema)
		})
	}
}

func TestDecode_UnknownTypePassesThrough(t *testing.T) {
	t.Parallel()

	msg, known, err := protocol.Decode([]byte(`{"type":"totally_new","data":{"x":1}}`))
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, protocol.Type("totally_new"), msg.Type)
}

func TestDecode_Envelope(t *testing.T) {
	t.Parallel()

	_, _, err := protocol.Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, protocol.ErrInvalidJSON)

	_, _, err = protocol.Decode([]byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, protocol.ErrMissingType)

	huge := append([]byte(`{"type":"ping","content":"`), bytes.Repeat([]byte("a"), protocol.MaxMessageSize)...)
	huge = append(huge, []byte(`"}`)...)
	_, _, err = protocol.Decode(huge)
	assert.ErrorIs(t, err, protocol.ErrTooLarge)
}

func TestMessage_DataAccessors(t *testing.T) {
	t.Parallel()

	msg := protocol.New(protocol.TypeMessage)
	msg.SetData("client_request_id", "req-42")
	msg.SetData("task_id", "t-7")
	msg.SetData("cached_auth", true)

	assert.Equal(t, "req-42", msg.ClientRequestID())
	assert.Equal(t, "t-7", msg.TaskID())
	assert.True(t, msg.DataBool("cached_auth"))
	assert.Empty(t, msg.DataString("missing"))
}

func TestMessage_CanonicalBytesExcludesSignature(t *testing.T) {
	t.Parallel()

	msg := &protocol.Message{
		Type:      protocol.TypeTaskResponse,
		ID:        "m-1",
		Content:   "pong",
		Signature: "0xdead",
	}
	canonical, err := msg.CanonicalBytes()
	require.NoError(t, err)
	assert.NotContains(t, string(canonical), "signature")
	assert.NotContains(t, string(canonical), "0xdead")

	// Same message without the signature canonicalizes identically.
	unsigned := *msg
	unsigned.Signature = ""
	canonical2, err := unsigned.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, canonical, canonical2)
}

func TestMessage_DecodeAgents(t *testing.T) {
	t.Parallel()

	raw := `{"type":"agents","data":{"agents":[
		{"id":"a-1","name":"Summarizer","status":"online",
		 "capabilities":[{"name":"summarize","description":"short text"}],
		 "commands":[{"trigger":"sum","argument":"text"}]},
		{"id":"a-2","name":"Translator","status":"offline"}
	]}}`
	msg, known, err := protocol.Decode([]byte(raw))
	require.NoError(t, err)
	require.True(t, known)

	agents, err := msg.DecodeAgents()
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "a-1", agents[0].ID)
	assert.Equal(t, protocol.AgentOnline, agents[0].Status)
	require.Len(t, agents[0].Capabilities, 1)
	assert.Equal(t, "summarize", agents[0].Capabilities[0].Name)
}

func TestMessage_DecodeRoomsMixedForms(t *testing.T) {
	t.Parallel()

	msg := &protocol.Message{
		Type: protocol.TypeSubscribe,
		Data: map[string]any{
			"subscriptions": []any{
				"r-1",
				map[string]any{"id": "r-2", "name": "general", "is_public": true},
			},
		},
	}
	rooms, err := msg.DecodeRooms("subscriptions")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "r-1", rooms[0].ID)
	assert.Equal(t, "general", rooms[1].Name)
	assert.True(t, rooms[1].IsPublic)
}

func TestMessage_EncodeRoundTrip(t *testing.T) {
	t.Parallel()

	msg := protocol.New(protocol.TypeTask)
	msg.Room = "r-1"
	msg.SetData("agent", "a-1")
	msg.SetData("command", "status")

	raw, err := msg.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "task", decoded["type"])
	assert.Equal(t, "r-1", decoded["room"])
	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok, fmt.Sprintf("data missing in %s", raw))
	assert.Equal(t, "a-1", data["agent"])
}
