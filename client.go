package teneo

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teneoprotocol/teneo-go/pkg/dedup"
	"github.com/teneoprotocol/teneo-go/pkg/emitter"
	"github.com/teneoprotocol/teneo-go/pkg/logger"
	"github.com/teneoprotocol/teneo-go/pkg/protocol"
	"github.com/teneoprotocol/teneo-go/pkg/ratelimit"
	"github.com/teneoprotocol/teneo-go/pkg/registry"
	"github.com/teneoprotocol/teneo-go/pkg/signer"
	"github.com/teneoprotocol/teneo-go/pkg/webhook"
	"github.com/teneoprotocol/teneo-go/pkg/ws"
)

// Version is stamped into webhook metadata.
const Version = "1.2.0"

// Client is the public surface of the SDK: one object composing the
// transport session, the message handlers, the registries, the webhook
// pipeline, and the typed event emitter. Construct with New, then
// Connect. Safe for concurrent use.
type Client struct {
	cfg    Config
	log    *slog.Logger
	secret *signer.SecureSecret
	oracle *signer.Oracle

	events     *emitter.Emitter
	session    *ws.Session
	agents     *registry.AgentRegistry
	rooms      *registry.RoomRegistry
	dedupCache *dedup.Cache
	limiter    *ratelimit.Bucket
	dispatcher *webhook.Dispatcher
	handlers   map[protocol.Type]handlerFunc

	authMu sync.RWMutex
	auth   AuthState

	formatMu        sync.RWMutex
	format          ResponseFormat
	includeMetadata bool

	startedAt   time.Time
	destroyOnce sync.Once
}

// New builds a client from the configuration. The key material is
// wrapped immediately; when cfg.PrivateKey was used, callers should
// drop their own copy of the hex string afterwards.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, newError(CodeValidation, "url is required", false, nil)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	}

	secret := cfg.Secret
	if secret == nil {
		raw, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, newError(CodeValidation, "private key is not valid hex", false, err)
		}
		secret, err = signer.NewSecureSecret(raw)
		wipe(raw)
		if err != nil {
			return nil, newError(CodeValidation, "invalid private key", false, err)
		}
	}

	oracle, err := signer.NewOracle(secret)
	if err != nil {
		return nil, newError(CodeValidation, "cannot derive address", false, err)
	}
	if cfg.ExpectedAddress != "" && !strings.EqualFold(oracle.Address(), cfg.ExpectedAddress) {
		secret.Destroy()
		return nil, newError(CodeAuthentication,
			fmt.Sprintf("key derives %s, expected %s", oracle.Address(), cfg.ExpectedAddress), false, nil)
	}

	format := ResponseFormat(cfg.Response.Format)
	if !format.valid() {
		format = FormatBoth
	}

	c := &Client{
		cfg:             cfg,
		log:             log,
		secret:          secret,
		oracle:          oracle,
		events:          emitter.New(log),
		agents:          registry.NewAgentRegistry(),
		rooms:           registry.NewRoomRegistry(),
		handlers:        defaultHandlers(),
		format:          format,
		includeMetadata: cfg.Response.IncludeMetadata,
		startedAt:       time.Now(),
	}

	if !cfg.Dedup.Disabled {
		c.dedupCache = dedup.NewCache(cfg.Dedup.TTL, cfg.Dedup.MaxSize)
	}

	if !cfg.RateLimit.Disabled {
		c.limiter = ratelimit.NewBucket(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	}

	c.dispatcher = webhook.New(
		webhook.WithLogger(log),
		webhook.WithQueueCapacity(cfg.Webhook.QueueCapacity),
		webhook.WithRetry(cfg.Webhook.strategy(), cfg.Webhook.MaxAttempts),
		webhook.WithAllowInsecure(cfg.Webhook.AllowInsecure),
		webhook.WithEventSink(func(name string, ev webhook.DeliveryEvent) {
			c.emit(name, ev)
		}),
	)

	session, err := ws.NewSession(ws.Config{
		URL:                  cfg.URL,
		Oracle:               oracle,
		ClientType:           protocol.ClientType(defaultString(cfg.ClientType, string(protocol.ClientUser))),
		ConnectTimeout:       cfg.ConnectionTimeout,
		AuthTimeout:          cfg.ConnectionTimeout,
		ReconnectEnabled:     !cfg.Reconnection.Disabled,
		ReconnectStrategy:    cfg.Reconnection.strategy(),
		ReconnectMaxAttempts: cfg.Reconnection.MaxAttempts,
		Limiter:              c.limiter,
		Logger:               log,
		Notify:               c.onNote,
		Inbound:              c.onInbound,
		InboundError:         c.onInboundError,
	})
	if err != nil {
		c.dispatcher.Close()
		secret.Destroy()
		return nil, newError(CodeValidation, "invalid session config", false, err)
	}
	c.session = session
	return c, nil
}

// Address returns the client's signing address.
func (c *Client) Address() string { return c.oracle.Address() }

// Connect opens the transport and authenticates, returning once the
// session is ready or with the classifying error.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		sdkErr := classify(err)
		c.emit(EventError, sdkErr)
		return sdkErr
	}
	return nil
}

// Disconnect closes the session cleanly and suppresses reconnection.
// The client's read surface (registries, states) stays available.
func (c *Client) Disconnect() error {
	err := c.session.Close()
	c.clearAuth("disconnected")
	c.emit(EventDisconnect, nil)
	return err
}

// Destroy releases every resource: session, webhook worker, listeners,
// and the wrapped key. Idempotent and terminal.
func (c *Client) Destroy() {
	c.destroyOnce.Do(func() {
		_ = c.session.Close()
		c.dispatcher.Close()
		c.emit(EventDestroy, nil)
		c.events.Close()
		c.secret.Destroy()
	})
}

// SendOptions tune SendMessage.
type SendOptions struct {
	// Room targets a specific room; empty means the private room from
	// the auth grant.
	Room string
	// TargetAgent routes directly to one agent instead of letting the
	// coordinator select.
	TargetAgent string
	// WaitForResponse blocks until the correlated agent response.
	WaitForResponse bool
	// Timeout bounds the response wait. Defaults to the configured
	// message timeout.
	Timeout time.Duration
}

// SendMessage routes content through the coordinator (or directly, via
// TargetAgent) and optionally awaits the agent's response.
func (c *Client) SendMessage(ctx context.Context, content string, opts *SendOptions) (*AgentResponse, error) {
	if opts == nil {
		opts = &SendOptions{}
	}
	if content == "" {
		return nil, newError(CodeValidation, "content is required", false, nil)
	}

	msg := protocol.New(protocol.TypeMessage)
	msg.Content = content
	msg.ContentType = "text"
	msg.Room = opts.Room
	if msg.Room == "" {
		msg.Room = c.GetAuthState().PrivateRoomID
	}
	if opts.TargetAgent != "" {
		msg.SetData("target", opts.TargetAgent)
	}

	if !opts.WaitForResponse {
		if err := c.session.Send(msg); err != nil {
			return nil, classify(err)
		}
		c.emit(EventMessageSent, msg)
		return nil, nil
	}

	reply, err := c.request(ctx, msg, opts.Timeout, opts.TargetAgent != "", nil)
	if err != nil {
		return nil, err
	}
	return c.applyFormat(buildAgentResponse(reply)), nil
}

// DirectCommand is an explicit agent invocation.
type DirectCommand struct {
	Agent   string
	Command string
	Room    string
}

// SendDirectCommand sends a task frame to one agent, bypassing
// coordinator selection.
func (c *Client) SendDirectCommand(ctx context.Context, cmd DirectCommand, waitForResponse bool) (*AgentResponse, error) {
	if cmd.Agent == "" || cmd.Command == "" {
		return nil, newError(CodeValidation, "agent and command are required", false, nil)
	}

	msg := protocol.New(protocol.TypeTask)
	msg.Room = cmd.Room
	if msg.Room == "" {
		msg.Room = c.GetAuthState().PrivateRoomID
	}
	msg.SetData("agent", cmd.Agent)
	msg.SetData("command", cmd.Command)

	if !waitForResponse {
		if err := c.session.Send(msg); err != nil {
			return nil, classify(err)
		}
		c.emit(EventMessageSent, msg)
		return nil, nil
	}

	reply, err := c.request(ctx, msg, 0, true, nil)
	if err != nil {
		return nil, err
	}
	return c.applyFormat(buildAgentResponse(reply)), nil
}

// SendRaw forwards a pre-built protocol message unchanged, for frames
// the typed surface does not cover.
func (c *Client) SendRaw(msg *protocol.Message) error {
	if msg == nil || msg.Type == "" {
		return newError(CodeValidation, "message with a type is required", false, nil)
	}
	if err := c.session.Send(msg); err != nil {
		return classify(err)
	}
	c.emit(EventMessageSent, msg)
	return nil
}

// SubscribeToRoom asks the coordinator to add this client to a room and
// waits for the acknowledgement. The subscribed set only changes when
// the server confirms.
func (c *Client) SubscribeToRoom(ctx context.Context, roomID string) error {
	return c.roomRequest(ctx, protocol.TypeSubscribe, roomID)
}

// UnsubscribeFromRoom is the mirror of SubscribeToRoom.
func (c *Client) UnsubscribeFromRoom(ctx context.Context, roomID string) error {
	return c.roomRequest(ctx, protocol.TypeUnsubscribe, roomID)
}

func (c *Client) roomRequest(ctx context.Context, t protocol.Type, roomID string) error {
	if roomID == "" {
		return newError(CodeValidation, "room id is required", false, nil)
	}
	msg := protocol.New(t)
	msg.SetData("room_id", roomID)

	reply, err := c.request(ctx, msg, 0, false, func(m *protocol.Message) bool {
		return m.Type == t
	})
	if err != nil {
		return err
	}
	if errText := reply.DataString("error"); errText != "" {
		return newError(CodeMessage, fmt.Sprintf("%s rejected: %s", t, errText), false, nil)
	}
	return nil
}

// ListRooms asks the coordinator for the room catalog and returns it.
func (c *Client) ListRooms(ctx context.Context) ([]protocol.Room, error) {
	msg := protocol.New(protocol.TypeListRooms)
	reply, err := c.request(ctx, msg, 0, false, func(m *protocol.Message) bool {
		return m.Type == protocol.TypeListRooms
	})
	if err != nil {
		return nil, err
	}
	rooms, decodeErr := reply.DecodeRooms("rooms")
	if decodeErr != nil {
		return nil, newError(CodeValidation, "malformed room list", false, decodeErr)
	}
	return rooms, nil
}

// request funnels all awaited sends through the session with consistent
// timeout defaulting and error classification.
func (c *Client) request(ctx context.Context, msg *protocol.Message, timeout time.Duration, targeted bool, filter ws.Filter) (*protocol.Message, error) {
	if timeout <= 0 {
		timeout = c.cfg.MessageTimeout
	}
	reply, err := c.session.Request(ctx, msg, ws.RequestOptions{
		Timeout:  timeout,
		Targeted: targeted,
		Filter:   filter,
	})
	if err != nil {
		return nil, classify(err)
	}
	c.emit(EventMessageSent, msg)
	return reply, nil
}

// GetSubscribedRooms returns the server-confirmed subscription ids.
func (c *Client) GetSubscribedRooms() []string { return c.rooms.Subscribed() }

// GetRooms returns the known room metadata.
func (c *Client) GetRooms() []protocol.Room { return c.rooms.Rooms() }

// GetRoom returns one room's metadata.
func (c *Client) GetRoom(id string) (protocol.Room, bool) { return c.rooms.Room(id) }

// GetAgents returns a copy of the agent catalog.
func (c *Client) GetAgents() []protocol.Agent { return c.agents.All() }

// GetAgent returns one agent by id.
func (c *Client) GetAgent(id string) (protocol.Agent, bool) { return c.agents.Get(id) }

// FindAgentsByCapability returns agents declaring the capability.
func (c *Client) FindAgentsByCapability(capability string) []protocol.Agent {
	return c.agents.FindByCapability(capability)
}

// FindAgentsByName returns agents whose name matches the fragment.
func (c *Client) FindAgentsByName(fragment string) []protocol.Agent {
	return c.agents.FindByName(fragment)
}

// FindAgentsByStatus returns agents in the given status.
func (c *Client) FindAgentsByStatus(status protocol.AgentStatus) []protocol.Agent {
	return c.agents.FindByStatus(status)
}

// WaitForAgents blocks until the coordinator has delivered a non-empty
// agent list, a common first step after Connect.
func (c *Client) WaitForAgents(ctx context.Context, timeout time.Duration) ([]protocol.Agent, error) {
	if agents := c.agents.All(); len(agents) > 0 {
		return agents, nil
	}
	arrived := make(chan struct{}, 1)
	id := c.events.On(EventAgentList, func(any) {
		select {
		case arrived <- struct{}{}:
		default:
		}
	})
	defer c.events.Off(EventAgentList, id)

	if timeout <= 0 {
		timeout = c.cfg.MessageTimeout
		if timeout <= 0 {
			timeout = ws.DefaultRequestTimeout
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-arrived:
		return c.agents.All(), nil
	case <-timer.C:
		return nil, newError(CodeTimeout, "no agent list received", true, nil)
	case <-ctx.Done():
		return nil, classify(ctx.Err())
	}
}

// GetConnectionState returns a transport snapshot.
func (c *Client) GetConnectionState() ConnectionState {
	state := ConnectionState{
		Connected:         c.session.Connected(),
		Authenticated:     c.session.Authenticated(),
		Reconnecting:      c.session.Reconnecting(),
		ReconnectAttempts: c.session.ReconnectAttempts(),
		LastConnectedAt:   c.session.LastConnectedAt(),
	}
	if err := c.session.LastError(); err != nil {
		state.LastError = err.Error()
	}
	return state
}

// GetAuthState returns a copy of the authentication state.
func (c *Client) GetAuthState() AuthState {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.auth.clone()
}

// GetHealth returns an operational snapshot.
func (c *Client) GetHealth() Health {
	h := Health{
		Connected:       c.session.Connected(),
		Authenticated:   c.session.Authenticated(),
		SessionState:    c.session.State(),
		Uptime:          time.Since(c.startedAt),
		PendingRequests: c.session.PendingRequests(),
		KnownAgents:     c.agents.Len(),
		Webhook:         c.dispatcher.Status(),
	}
	if c.limiter != nil {
		h.RateTokens = c.limiter.Tokens()
	}
	return h
}

// ConfigureWebhook validates and installs the webhook target. A URL
// that fails egress validation disables the dispatcher and returns a
// webhook error.
func (c *Client) ConfigureWebhook(url string, headers map[string]string) error {
	if err := c.dispatcher.Configure(url, headers); err != nil {
		sdkErr := newError(CodeWebhook, "webhook target rejected", false, err)
		c.emit(EventWebhookError, webhook.DeliveryEvent{Err: err})
		return sdkErr
	}
	return nil
}

// GetWebhookStatus returns the dispatcher snapshot.
func (c *Client) GetWebhookStatus() webhook.Status { return c.dispatcher.Status() }

// ClearWebhookQueue discards pending deliveries, returning how many.
func (c *Client) ClearWebhookQueue() int { return c.dispatcher.ClearQueue() }

// SetResponseFormat switches how agent responses are shaped.
func (c *Client) SetResponseFormat(format ResponseFormat, includeMetadata bool) error {
	if !format.valid() {
		return newError(CodeValidation, fmt.Sprintf("unknown response format %q", format), false, nil)
	}
	c.formatMu.Lock()
	c.format = format
	c.includeMetadata = includeMetadata
	c.formatMu.Unlock()
	return nil
}

// On registers an event listener and returns its id.
func (c *Client) On(event string, fn func(payload any)) string {
	return c.events.On(event, emitter.Listener(fn))
}

// Once registers a listener removed after its first call.
func (c *Client) Once(event string, fn func(payload any)) string {
	return c.events.Once(event, emitter.Listener(fn))
}

// Off removes a listener by id.
func (c *Client) Off(event, id string) { c.events.Off(event, id) }

func (c *Client) emit(event string, payload any) {
	c.events.Emit(event, payload)
}

// onInbound runs on the session's read loop for every schema-valid
// frame: dedup, signature verification, then handler dispatch.
// Returning false tells the session to skip reply correlation too.
func (c *Client) onInbound(msg *protocol.Message) bool {
	if c.dedupCache != nil && msg.ID != "" && c.dedupCache.Seen(msg.ID) {
		c.log.Debug("duplicate message dropped",
			logger.MessageType(string(msg.Type)), slog.String("id", msg.ID))
		c.emit(EventMessageDuplicate, msg)
		return false
	}
	if !c.verifyInbound(msg) {
		return false
	}

	c.emit(EventMessageReceived, msg)
	if handler, ok := c.handlers[msg.Type]; ok {
		c.dispatch(handler, msg)
	} else {
		c.log.Debug("no handler for message type", logger.MessageType(string(msg.Type)))
	}
	return true
}

func (c *Client) dispatch(handler handlerFunc, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panicked",
				logger.MessageType(string(msg.Type)), slog.Any("panic", r))
			c.emit(EventMessageError, newError(CodeInternal,
				fmt.Sprintf("handler for %s panicked", msg.Type), false, nil))
		}
	}()
	if err := handler(&HandlerContext{client: c}, msg); err != nil {
		c.log.Warn("handler rejected message",
			logger.MessageType(string(msg.Type)), logger.Error(err))
		c.emit(EventMessageError, newError(CodeValidation,
			fmt.Sprintf("invalid %s message", msg.Type), false, err))
	}
}

func (c *Client) onInboundError(_ []byte, err error) {
	c.emit(EventMessageError, newError(CodeValidation, "inbound frame failed validation", false, err))
}

// verifyInbound applies the configured signature policy. In strict mode
// a failed verification drops the message; permissive mode emits the
// event and continues.
func (c *Client) verifyInbound(msg *protocol.Message) bool {
	sc := c.cfg.Signature
	if !sc.Enabled || !contains(sc.RequireFor, string(msg.Type)) {
		return true
	}

	ev := SignatureEvent{MessageType: msg.Type}
	if msg.Signature == "" {
		c.emit(EventSignatureMissing, ev)
		return true
	}

	address := msg.DataString("address")
	if address == "" {
		address = msg.From
	}
	ev.Address = address

	if !containsFold(sc.TrustedAddresses, address) {
		ev.Err = fmt.Errorf("address %s is not trusted", address)
		c.emit(EventSignatureFailed, ev)
		return !sc.StrictMode
	}

	canonical, err := msg.CanonicalBytes()
	if err == nil {
		var ok bool
		ok, err = c.oracle.Verify(string(canonical), msg.Signature, address)
		if err == nil && !ok {
			err = fmt.Errorf("signature does not match %s", address)
		}
	}
	if err != nil {
		ev.Err = err
		c.emit(EventSignatureFailed, ev)
		return !sc.StrictMode
	}

	c.emit(EventSignatureVerified, ev)
	return true
}

// onNote maps transport lifecycle notes onto the public event surface.
func (c *Client) onNote(note ws.Note) {
	switch note.Kind {
	case ws.NoteOpen:
		c.emit(EventConnectionOpen, nil)
		c.emit(EventConnectionState, c.GetConnectionState())
	case ws.NoteClose:
		c.clearAuth("connection closed")
		c.emit(EventConnectionClose, nil)
		c.emit(EventConnectionState, c.GetConnectionState())
	case ws.NoteReconnecting:
		c.emit(EventConnectionReconnecting, ReconnectingEvent{Attempt: note.Attempt})
		c.emit(EventConnectionState, c.GetConnectionState())
	case ws.NoteReconnected:
		c.emit(EventConnectionReconnected, nil)
		c.emit(EventConnectionState, c.GetConnectionState())
	case ws.NoteChallenge:
		c.authMu.Lock()
		c.auth.Challenge = note.Challenge
		c.authMu.Unlock()
		c.emit(EventAuthChallenge, note.Challenge)
	case ws.NoteAuthError:
		c.clearAuth("authentication error")
		sdkErr := classify(note.Err)
		c.emit(EventAuthError, sdkErr)
		c.emit(EventError, sdkErr)
	case ws.NoteError:
		c.emit(EventConnectionError, classify(note.Err))
	case ws.NoteFatal:
		sdkErr := newError(CodeConnection, "reconnection attempts exhausted", false, note.Err)
		c.emit(EventError, sdkErr)
		c.emit(EventConnectionState, c.GetConnectionState())
	}
}

func (c *Client) clearAuth(reason string) {
	c.authMu.Lock()
	wasAuthenticated := c.auth.Authenticated
	c.auth = AuthState{}
	c.authMu.Unlock()
	if wasAuthenticated {
		c.log.Debug("auth state cleared", slog.String("reason", reason))
		c.emit(EventAuthState, AuthState{})
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
