package teneo

import "github.com/teneoprotocol/teneo-go/pkg/protocol"

// Event names. Payload types are documented per constant; listeners
// receive the payload as the single argument.
const (
	// Connection lifecycle. Payloads: nil for open/close/reconnected,
	// ReconnectingEvent for reconnecting, ConnectionState for state,
	// *SDKError for error.
	EventConnectionOpen         = "connection:open"
	EventConnectionClose        = "connection:close"
	EventConnectionError        = "connection:error"
	EventConnectionReconnecting = "connection:reconnecting"
	EventConnectionReconnected  = "connection:reconnected"
	EventConnectionState        = "connection:state"

	// Authentication. Payloads: string challenge for challenge,
	// AuthState for success/state, *SDKError for error, nil otherwise.
	EventAuthRequired  = "auth:required"
	EventAuthChallenge = "auth:challenge"
	EventAuthSuccess   = "auth:success"
	EventAuthError     = "auth:error"
	EventAuthState     = "auth:state"

	// Agents. Payloads: []protocol.Agent for list, AgentSelectedEvent
	// for selected, *AgentResponse for response.
	EventAgentList     = "agent:list"
	EventAgentSelected = "agent:selected"
	EventAgentResponse = "agent:response"

	// Messages. Payloads: *protocol.Message, except error which
	// carries *SDKError.
	EventMessageSent      = "message:sent"
	EventMessageReceived  = "message:received"
	EventMessageError     = "message:error"
	EventMessageDuplicate = "message:duplicate"

	// Rooms. Payloads: []string subscriptions for subscribed and
	// unsubscribed, []protocol.Room for list.
	EventRoomSubscribed   = "room:subscribed"
	EventRoomUnsubscribed = "room:unsubscribed"
	EventRoomList         = "room:list"

	// Webhooks. Payload: webhook.DeliveryEvent.
	EventWebhookSent    = "webhook:sent"
	EventWebhookSuccess = "webhook:success"
	EventWebhookError   = "webhook:error"
	EventWebhookRetry   = "webhook:retry"

	// Inbound signature verification. Payload: SignatureEvent.
	EventSignatureVerified = "signature:verified"
	EventSignatureFailed   = "signature:failed"
	EventSignatureMissing  = "signature:missing"

	// Lifecycle. Payloads: nil.
	EventReady      = "ready"
	EventDisconnect = "disconnect"
	EventDestroy    = "destroy"

	// Diagnostics. Payloads: *SDKError for error, string for warning.
	EventError   = "error"
	EventWarning = "warning"
)

// ReconnectingEvent reports a reconnection attempt about to start.
type ReconnectingEvent struct {
	Attempt int `json:"attempt"`
}

// AgentSelectedEvent reports the coordinator's routing decision for a
// request.
type AgentSelectedEvent struct {
	AgentID          string   `json:"agent_id"`
	AgentName        string   `json:"agent_name,omitempty"`
	Reasoning        string   `json:"reasoning,omitempty"`
	UserRequest      string   `json:"user_request,omitempty"`
	Command          string   `json:"command,omitempty"`
	CommandReasoning string   `json:"command_reasoning,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty"`
	TaskID           string   `json:"task_id,omitempty"`
}

// SignatureEvent reports the outcome of inbound signature verification.
type SignatureEvent struct {
	MessageType protocol.Type `json:"message_type"`
	Address     string        `json:"address,omitempty"`
	Err         error         `json:"-"`
}
