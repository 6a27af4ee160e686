package teneo

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

// handlerFunc processes one schema-valid frame. Returned errors are
// contained: they surface as message:error events and never affect the
// session.
type handlerFunc func(ctx *HandlerContext, msg *protocol.Message) error

// defaultHandlers is the dispatch table for the closed inbound type
// set. challenge, ping, and pong never reach this layer; the transport
// session owns them.
func defaultHandlers() map[protocol.Type]handlerFunc {
	return map[protocol.Type]handlerFunc{
		protocol.TypeAuth:          handleAuth,
		protocol.TypeAuthSuccess:   handleAuth,
		protocol.TypeAuthError:     handleAuthError,
		protocol.TypeAuthRequired:  handleAuthRequired,
		protocol.TypeAgents:        handleAgents,
		protocol.TypeAgentSelected: handleAgentSelected,
		protocol.TypeTaskResponse:  handleTaskResponse,
		protocol.TypeMessage:       handleMessage,
		protocol.TypeSubscribe:     handleSubscribe,
		protocol.TypeUnsubscribe:   handleUnsubscribe,
		protocol.TypeListRooms:     handleListRooms,
		protocol.TypeError:         handleServerError,
	}
}

// isAuthGrant mirrors the transport's test for an auth frame that
// actually carries identity: an id, an address, a cached-auth marker,
// or a "to" naming this client.
func isAuthGrant(ctx *HandlerContext, msg *protocol.Message) bool {
	if msg.Type == protocol.TypeAuthSuccess {
		return true
	}
	if msg.DataString("id") != "" || msg.DataString("address") != "" || msg.DataBool("cached_auth") {
		return true
	}
	return msg.To != "" && strings.EqualFold(msg.To, ctx.SelfAddress())
}

func handleAuth(ctx *HandlerContext, msg *protocol.Message) error {
	if !isAuthGrant(ctx, msg) {
		return nil
	}
	ctx.SetAuthGrant(msg)
	state := ctx.AuthState()
	ctx.Emit(EventAuthSuccess, state)
	ctx.Emit(EventAuthState, state)
	ctx.Emit(EventReady, nil)
	return nil
}

func handleAuthError(ctx *HandlerContext, msg *protocol.Message) error {
	// The session surfaces auth:error from its own notification path;
	// here only the state is cleared.
	ctx.ClearAuth(msg.DataString("error"))
	return nil
}

func handleAuthRequired(ctx *HandlerContext, _ *protocol.Message) error {
	ctx.Emit(EventAuthRequired, nil)
	return nil
}

func handleAgents(ctx *HandlerContext, msg *protocol.Message) error {
	agents, err := msg.DecodeAgents()
	if err != nil {
		return err
	}
	ctx.ReplaceAgents(agents)
	ctx.Logger().Debug("agent registry replaced", slog.Int("count", len(agents)))
	ctx.Emit(EventAgentList, agents)
	return nil
}

func handleAgentSelected(ctx *HandlerContext, msg *protocol.Message) error {
	selected := AgentSelectedEvent{
		AgentID:          msg.DataString("agent_id"),
		AgentName:        msg.DataString("agent_name"),
		Reasoning:        msg.DataString("reasoning"),
		UserRequest:      msg.DataString("user_request"),
		Command:          msg.DataString("command"),
		CommandReasoning: msg.DataString("command_reasoning"),
		TaskID:           msg.TaskID(),
	}
	if caps, ok := msg.Data["capabilities"].([]any); ok {
		for _, cap := range caps {
			if s, ok := cap.(string); ok {
				selected.Capabilities = append(selected.Capabilities, s)
			}
		}
	}
	ctx.Emit(EventAgentSelected, selected)
	ctx.EnqueueWebhook("agent_selected", selected)
	return nil
}

func handleTaskResponse(ctx *HandlerContext, msg *protocol.Message) error {
	resp := buildAgentResponse(msg)
	ctx.Emit(EventAgentResponse, ctx.client.applyFormat(resp))
	ctx.EnqueueWebhook("task_response", resp)
	return nil
}

// handleMessage treats chat frames from other parties as agent
// responses; the client's own broadcast echoes are dropped.
func handleMessage(ctx *HandlerContext, msg *protocol.Message) error {
	if msg.From == "" || strings.EqualFold(msg.From, ctx.SelfAddress()) {
		return nil
	}
	resp := buildAgentResponse(msg)
	ctx.Emit(EventAgentResponse, ctx.client.applyFormat(resp))
	return nil
}

func subscriptionIDs(msg *protocol.Message) ([]string, error) {
	rooms, err := msg.DecodeRooms("subscriptions")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	return ids, nil
}

func handleSubscribe(ctx *HandlerContext, msg *protocol.Message) error {
	if errText := msg.DataString("error"); errText != "" {
		ctx.Emit(EventError, newError(CodeMessage, "subscribe rejected: "+errText, false, nil))
		return nil
	}
	ids, err := subscriptionIDs(msg)
	if err != nil {
		return err
	}
	ctx.SetSubscriptions(ids)
	ctx.Emit(EventRoomSubscribed, ids)
	ctx.EnqueueWebhook("room_subscribed", map[string]any{"subscriptions": ids})
	return nil
}

func handleUnsubscribe(ctx *HandlerContext, msg *protocol.Message) error {
	if errText := msg.DataString("error"); errText != "" {
		ctx.Emit(EventError, newError(CodeMessage, "unsubscribe rejected: "+errText, false, nil))
		return nil
	}
	ids, err := subscriptionIDs(msg)
	if err != nil {
		return err
	}
	ctx.SetSubscriptions(ids)
	ctx.Emit(EventRoomUnsubscribed, ids)
	ctx.EnqueueWebhook("room_unsubscribed", map[string]any{"subscriptions": ids})
	return nil
}

func handleListRooms(ctx *HandlerContext, msg *protocol.Message) error {
	rooms, err := msg.DecodeRooms("rooms")
	if err != nil {
		return err
	}
	ctx.SetRooms(rooms)
	ctx.Emit(EventRoomList, rooms)
	ctx.EnqueueWebhook("room_list", map[string]any{"rooms": rooms})
	return nil
}

// handleServerError surfaces coordinator error frames without touching
// auth or connection state.
func handleServerError(ctx *HandlerContext, msg *protocol.Message) error {
	text := msg.DataString("error")
	if text == "" {
		text = msg.DataString("message")
	}
	if text == "" {
		text = msg.Content
	}
	ctx.Emit(EventError, newError(CodeMessage, fmt.Sprintf("server error: %s", text), false, nil))
	return nil
}
