package teneo

import (
	"log/slog"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

// HandlerContext is the narrow capability handed to message handlers.
// Handlers never touch the client directly: they emit events, mutate
// state through these helpers, enqueue webhooks, and send frames back
// to the coordinator. State reads return copies.
type HandlerContext struct {
	client *Client
}

// Emit publishes an event to the client's listeners.
func (h *HandlerContext) Emit(event string, payload any) {
	h.client.emit(event, payload)
}

// Send writes a frame back to the coordinator, subject to the usual
// rate limiting.
func (h *HandlerContext) Send(msg *protocol.Message) error {
	return h.client.session.Send(msg)
}

// EnqueueWebhook schedules a fire-and-forget webhook delivery stamped
// with session metadata.
func (h *HandlerContext) EnqueueWebhook(event string, data any) {
	c := h.client
	meta := map[string]any{
		"wallet_address": c.oracle.Address(),
		"sdk_version":    Version,
	}
	if id := h.AuthState().ClientID; id != "" {
		meta["client_id"] = id
	}
	c.dispatcher.Enqueue(event, data, meta)
}

// SelfAddress returns the client's signing address.
func (h *HandlerContext) SelfAddress() string {
	return h.client.oracle.Address()
}

// AuthState returns a copy of the current authentication state.
func (h *HandlerContext) AuthState() AuthState {
	return h.client.GetAuthState()
}

// ConnectionState returns a copy of the current connection state.
func (h *HandlerContext) ConnectionState() ConnectionState {
	return h.client.GetConnectionState()
}

// SetAuthGrant installs the identity fields of a successful
// authentication and seeds the room registry.
func (h *HandlerContext) SetAuthGrant(msg *protocol.Message) {
	c := h.client

	rooms, _ := msg.DecodeRooms("rooms")
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}

	c.authMu.Lock()
	c.auth.Authenticated = true
	if v := msg.DataString("id"); v != "" {
		c.auth.ClientID = v
	}
	if v := msg.DataString("address"); v != "" {
		c.auth.WalletAddress = v
	} else if c.auth.WalletAddress == "" {
		c.auth.WalletAddress = c.oracle.Address()
	}
	c.auth.IsWhitelisted = msg.DataBool("is_whitelisted")
	c.auth.IsAdmin = msg.DataBool("is_admin_whitelisted")
	c.auth.NFTVerified = msg.DataBool("nft_verified")
	if len(rooms) > 0 {
		c.auth.Rooms = ids
		c.auth.RoomObjects = rooms
	}
	if v := msg.DataString("private_room_id"); v != "" {
		c.auth.PrivateRoomID = v
	}
	privateRoom := c.auth.PrivateRoomID
	c.authMu.Unlock()

	c.rooms.Seed(rooms, privateRoom)
}

// ClearAuth resets the authentication state, as on disconnect or an
// auth error.
func (h *HandlerContext) ClearAuth(reason string) {
	h.client.clearAuth(reason)
}

// ReplaceAgents swaps the agent catalog wholesale.
func (h *HandlerContext) ReplaceAgents(agents []protocol.Agent) {
	h.client.agents.Replace(agents)
}

// SetSubscriptions installs the authoritative subscribed-room set from
// a server acknowledgement.
func (h *HandlerContext) SetSubscriptions(roomIDs []string) {
	h.client.rooms.SetSubscriptions(roomIDs)
}

// SetRooms replaces the room metadata list.
func (h *HandlerContext) SetRooms(rooms []protocol.Room) {
	h.client.rooms.SetRooms(rooms)
}

// Logger returns the client's logger.
func (h *HandlerContext) Logger() *slog.Logger {
	return h.client.log
}
