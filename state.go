package teneo

import (
	"slices"
	"time"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
	"github.com/teneoprotocol/teneo-go/pkg/webhook"
)

// ConnectionState is a point-in-time snapshot of the transport.
type ConnectionState struct {
	Connected         bool      `json:"connected"`
	Authenticated     bool      `json:"authenticated"`
	Reconnecting      bool      `json:"reconnecting"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastConnectedAt   time.Time `json:"last_connected_at,omitzero"`
	LastError         string    `json:"last_error,omitempty"`
}

// AuthState is the identity the coordinator granted this session. Reset
// on disconnect; repopulated by each successful authentication.
type AuthState struct {
	Authenticated bool            `json:"authenticated"`
	ClientID      string          `json:"client_id,omitempty"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	IsWhitelisted bool            `json:"is_whitelisted"`
	IsAdmin       bool            `json:"is_admin"`
	NFTVerified   bool            `json:"nft_verified"`
	Rooms         []string        `json:"rooms,omitempty"`
	RoomObjects   []protocol.Room `json:"room_objects,omitempty"`
	PrivateRoomID string          `json:"private_room_id,omitempty"`
	Challenge     string          `json:"challenge,omitempty"`
}

func (a AuthState) clone() AuthState {
	out := a
	out.Rooms = slices.Clone(a.Rooms)
	out.RoomObjects = slices.Clone(a.RoomObjects)
	return out
}

// Health is the operational snapshot returned by GetHealth.
type Health struct {
	Connected       bool           `json:"connected"`
	Authenticated   bool           `json:"authenticated"`
	SessionState    string         `json:"session_state"`
	Uptime          time.Duration  `json:"uptime"`
	PendingRequests int            `json:"pending_requests"`
	KnownAgents     int            `json:"known_agents"`
	RateTokens      float64        `json:"rate_tokens"`
	Webhook         webhook.Status `json:"webhook"`
}
