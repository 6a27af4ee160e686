package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teneoprotocol/teneo-go/pkg/backoff"
	"github.com/teneoprotocol/teneo-go/pkg/logger"
	"github.com/teneoprotocol/teneo-go/pkg/protocol"
	"github.com/teneoprotocol/teneo-go/pkg/ratelimit"
	"github.com/teneoprotocol/teneo-go/pkg/signer"
	"github.com/teneoprotocol/teneo-go/pkg/statemachine"
)

// ChallengePrefix is prepended to the server nonce before signing. The
// coordinator verifies the exact same literal.
const ChallengePrefix = "Teneo authentication challenge: "

// Timing defaults.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultAuthTimeout       = 30 * time.Second
	DefaultCachedAuthWait    = time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultReconnectAttempts = 15
)

// Authentication machine states.
const (
	StateDisconnected       statemachine.State = "DISCONNECTED"
	StateConnecting         statemachine.State = "CONNECTING"
	StateAwaitingAuth       statemachine.State = "AWAITING_AUTH"
	StateSigning            statemachine.State = "SIGNING"
	StateAwaitingAuthResult statemachine.State = "AWAITING_AUTH_RESULT"
	StateAuthenticated      statemachine.State = "AUTHENTICATED"
	StateFailed             statemachine.State = "FAILED"
)

const (
	evConnect   statemachine.Event = "connect"
	evOpen      statemachine.Event = "open"
	evChallenge statemachine.Event = "challenge"
	evAuthSent  statemachine.Event = "auth_sent"
	evAuthOK    statemachine.Event = "auth_ok"
	evAuthErr   statemachine.Event = "auth_err"
	evClose     statemachine.Event = "close"
)

// InboundFunc receives each decoded, schema-valid frame in arrival
// order. Returning false suppresses reply correlation for the frame
// (used by the owner for duplicates and rejected signatures).
type InboundFunc func(*protocol.Message) bool

// Config wires a Session. URL and Oracle are required.
type Config struct {
	URL        string
	Oracle     *signer.Oracle
	ClientType protocol.ClientType

	ConnectTimeout    time.Duration
	AuthTimeout       time.Duration
	CachedAuthWait    time.Duration
	HeartbeatInterval time.Duration

	ReconnectEnabled     bool
	ReconnectStrategy    backoff.Strategy
	ReconnectMaxAttempts int

	Limiter *ratelimit.Bucket
	Logger  *slog.Logger

	Notify  Notifier
	Inbound InboundFunc
	// InboundError observes frames that failed schema validation.
	InboundError func(raw []byte, err error)
}

// Session is the live connection to a coordinator. One session holds at
// most one open socket; starting a new connect tears down the previous
// one. Safe for concurrent use.
type Session struct {
	cfg     Config
	log     *slog.Logger
	machine *statemachine.Machine
	pending *pendingTable

	mu              sync.Mutex
	conn            *websocket.Conn
	connDone        chan struct{} // closed when the current socket dies
	generation      int
	closed          bool
	established     bool // auth completed on the current socket
	reconnecting    bool
	reconnectCancel chan struct{}
	attempts        int
	lastConnectedAt time.Time
	lastErr         error
	authResult      chan error

	writeMu sync.Mutex
}

// NewSession validates the config and applies defaults. The session
// starts disconnected; call Connect.
func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("ws: URL is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("ws: signature oracle is required")
	}
	if cfg.ClientType == "" {
		cfg.ClientType = protocol.ClientUser
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.CachedAuthWait <= 0 {
		cfg.CachedAuthWait = DefaultCachedAuthWait
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectStrategy == nil {
		cfg.ReconnectStrategy = backoff.ForReconnect()
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = DefaultReconnectAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:     cfg,
		log:     cfg.Logger,
		machine: newAuthMachine(),
		pending: newPendingTable(cfg.Logger),
	}, nil
}

func newAuthMachine() *statemachine.Machine {
	m := statemachine.New(StateDisconnected)
	rows := []statemachine.Transition{
		{From: StateDisconnected, To: StateConnecting, Event: evConnect},
		{From: StateFailed, To: StateConnecting, Event: evConnect},
		{From: StateConnecting, To: StateAwaitingAuth, Event: evOpen},
		{From: StateAwaitingAuth, To: StateSigning, Event: evChallenge},
		{From: StateSigning, To: StateAwaitingAuthResult, Event: evAuthSent},
		{From: StateAwaitingAuth, To: StateAuthenticated, Event: evAuthOK},
		{From: StateAwaitingAuthResult, To: StateAuthenticated, Event: evAuthOK},
		{From: StateAwaitingAuthResult, To: StateFailed, Event: evAuthErr},
		{From: StateAwaitingAuth, To: StateFailed, Event: evAuthErr},
		{From: StateAuthenticated, To: StateDisconnected, Event: evClose},
	}
	for _, row := range rows {
		_ = m.AddTransition(row)
	}
	return m
}

// Address returns the client's signing address.
func (s *Session) Address() string { return s.cfg.Oracle.Address() }

// Connected reports whether a socket is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Authenticated reports whether the current socket has completed auth.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.established
}

// State returns the auth machine's current state name.
func (s *Session) State() string { return string(s.machine.Current()) }

// ReconnectAttempts returns the attempt counter of the current or last
// reconnection loop.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Reconnecting reports whether the reconnection loop is active.
func (s *Session) Reconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// LastConnectedAt returns when the current socket opened.
func (s *Session) LastConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConnectedAt
}

// LastError returns the most recent transport error.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// PendingRequests returns the number of in-flight request slots.
func (s *Session) PendingRequests() int { return s.pending.len() }

// Connect dials the coordinator and performs authentication, returning
// once the session is connected and authenticated or with the
// classifying error. Any prior socket and reconnection loop are torn
// down first.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelReconnectLocked()
	conn := s.detachConnLocked()
	s.mu.Unlock()

	closeQuietly(conn)
	return s.connectOnce(ctx)
}

func (s *Session) connectOnce(ctx context.Context) error {
	s.machine.Set(StateDisconnected)
	_ = s.machine.Fire(ctx, evConnect, nil)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		s.machine.Set(StateDisconnected)
		s.setLastError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	authResult := make(chan error, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		closeQuietly(conn)
		return ErrClosed
	}
	s.generation++
	gen := s.generation
	s.conn = conn
	s.connDone = make(chan struct{})
	s.established = false
	s.lastConnectedAt = time.Now()
	s.authResult = authResult
	done := s.connDone
	s.mu.Unlock()

	_ = s.machine.Fire(ctx, evOpen, nil)
	s.notify(Note{Kind: NoteOpen})

	go s.readLoop(conn, gen)
	go s.heartbeat(conn, gen, done)
	go s.cachedAuthNudge(gen, done)

	authTimer := time.NewTimer(s.cfg.AuthTimeout)
	defer authTimer.Stop()

	select {
	case err := <-authResult:
		if err != nil {
			s.dropConn(gen)
			return err
		}
		return nil
	case <-authTimer.C:
		s.dropConn(gen)
		s.setLastError(ErrAuthTimeout)
		return ErrAuthTimeout
	case <-ctx.Done():
		s.dropConn(gen)
		return ctx.Err()
	}
}

// Close shuts the session down for good: close frame, socket teardown,
// all pending requests rejected, no reconnection. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelReconnectLocked()
	conn := s.detachConnLocked()
	s.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	s.machine.Set(StateDisconnected)
	s.pending.failAll(ErrClosed)
	return nil
}

// Send validates connectivity and rate, then writes the message. Writes
// are serialized; no two frames interleave on the wire.
func (s *Session) Send(msg *protocol.Message) error {
	s.mu.Lock()
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow() {
		return ErrRateLimited
	}
	return s.write(msg)
}

// RequestOptions tune one Request call.
type RequestOptions struct {
	// Timeout bounds the wait for a reply. Defaults to 30s.
	Timeout time.Duration
	// Targeted marks sends with an explicit agent target; targeted
	// requests are excluded from room-fallback reply matching.
	Targeted bool
	// Filter overrides the default task-response matching rule.
	Filter Filter
}

// Request stamps a client_request_id into the message, sends it, and
// waits for the correlated reply. Exactly one outcome occurs: a reply,
// a timeout, or a connection loss.
func (s *Session) Request(ctx context.Context, msg *protocol.Message, opts RequestOptions) (*protocol.Message, error) {
	s.mu.Lock()
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	id := uuid.New().String()
	msg.SetData("client_request_id", id)
	req := s.pending.add(id, msg.Room, opts.Targeted, opts.Filter)

	if err := s.Send(msg); err != nil {
		s.pending.remove(id)
		return nil, err
	}
	s.log.Debug("request sent", logger.RequestID(id), logger.MessageType(string(msg.Type)))

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-req.ch:
		return res.msg, res.err
	case <-timer.C:
		if s.pending.remove(id) {
			return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
		}
		// The reply won the race with the timer; it is already buffered.
		res := <-req.ch
		return res.msg, res.err
	case <-ctx.Done():
		if s.pending.remove(id) {
			return nil, ctx.Err()
		}
		res := <-req.ch
		return res.msg, res.err
	}
}

// write serializes the frame onto the socket.
func (s *Session) write(msg *protocol.Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	idle := 2 * s.cfg.HeartbeatInterval
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		s.handleFrame(raw)
	}
}

func (s *Session) handleFrame(raw []byte) {
	msg, known, err := protocol.Decode(raw)
	if err != nil {
		s.log.Warn("dropping invalid frame", logger.Error(err))
		if s.cfg.InboundError != nil {
			s.cfg.InboundError(raw, err)
		}
		return
	}
	if !known {
		s.log.Debug("ignoring unknown message type", logger.MessageType(string(msg.Type)))
		return
	}

	// Transport-owned frames never reach the application layer.
	switch msg.Type {
	case protocol.TypeChallenge:
		s.handleChallenge(msg)
		return
	case protocol.TypePing:
		_ = s.write(protocol.New(protocol.TypePong))
		return
	case protocol.TypePong:
		return
	}

	proceed := true
	if s.cfg.Inbound != nil {
		proceed = s.cfg.Inbound(msg)
	}
	if !proceed {
		return
	}

	switch msg.Type {
	case protocol.TypeAuth, protocol.TypeAuthSuccess:
		s.handleAuthResult(msg)
		return
	case protocol.TypeAuthError:
		s.handleAuthError(msg)
		return
	case protocol.TypeAgentSelected:
		s.pending.bind(msg.ClientRequestID(), msg.TaskID())
	case protocol.TypeError:
		if id := msg.ClientRequestID(); id != "" {
			if s.pending.fail(id, fmt.Errorf("%w: %s", ErrServerError, errorText(msg))) {
				return
			}
		}
	}

	s.pending.resolve(msg, s.Address())
}

func (s *Session) handleChallenge(msg *protocol.Message) {
	challenge := msg.DataString("challenge")
	if err := s.machine.Fire(context.Background(), evChallenge, challenge); err != nil {
		s.log.Debug("challenge ignored in current state",
			slog.String("state", s.State()))
		return
	}
	s.notify(Note{Kind: NoteChallenge, Challenge: challenge})

	signedString := ChallengePrefix + challenge
	signature, err := s.cfg.Oracle.Sign(signedString)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSignFailed, err)
		s.machine.Set(StateFailed)
		s.notify(Note{Kind: NoteAuthError, Err: err})
		s.signalAuth(err)
		return
	}

	auth := protocol.New(protocol.TypeAuth)
	auth.SetData("address", s.Address())
	auth.SetData("signature", signature)
	auth.SetData("message", signedString)
	auth.SetData("client_type", string(s.cfg.ClientType))
	if err := s.write(auth); err != nil {
		s.signalAuth(err)
		return
	}
	_ = s.machine.Fire(context.Background(), evAuthSent, nil)
}

// isAuthGrant reports whether an auth frame carries identity for this
// client: an id, an address, a cached-auth marker, or a "to" naming us.
func (s *Session) isAuthGrant(msg *protocol.Message) bool {
	if msg.Type == protocol.TypeAuthSuccess {
		return true
	}
	if msg.DataString("id") != "" || msg.DataString("address") != "" || msg.DataBool("cached_auth") {
		return true
	}
	return msg.To != "" && strings.EqualFold(msg.To, s.Address())
}

func (s *Session) handleAuthResult(msg *protocol.Message) {
	if !s.isAuthGrant(msg) {
		return
	}
	if err := s.machine.Fire(context.Background(), evAuthOK, nil); err != nil {
		return // already authenticated or a stale frame
	}
	s.mu.Lock()
	s.established = true
	s.attempts = 0
	s.mu.Unlock()
	s.signalAuth(nil)
	s.log.Info("authenticated", slog.String("address", s.Address()))
}

func (s *Session) handleAuthError(msg *protocol.Message) {
	err := fmt.Errorf("%w: %s", ErrAuthFailed, errorText(msg))
	if fireErr := s.machine.Fire(context.Background(), evAuthErr, nil); fireErr != nil {
		s.machine.Set(StateFailed)
	}
	s.setLastError(err)
	s.notify(Note{Kind: NoteAuthError, Err: err})
	s.signalAuth(err)
}

// cachedAuthNudge requests a challenge if the server has sent neither a
// challenge nor a cached-auth grant shortly after open. Some
// deployments only issue challenges on request.
func (s *Session) cachedAuthNudge(gen int, done chan struct{}) {
	timer := time.NewTimer(s.cfg.CachedAuthWait)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
	}
	if s.currentGeneration() != gen || s.machine.Current() != StateAwaitingAuth {
		return
	}
	if err := s.write(protocol.New(protocol.TypeRequestChallenge)); err == nil {
		s.log.Debug("requested authentication challenge")
	}
}

func (s *Session) heartbeat(conn *websocket.Conn, gen int, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		if s.currentGeneration() != gen {
			return
		}
		deadline := time.Now().Add(DefaultWriteTimeout)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

// handleDisconnect is the single funnel for a dying socket: it clears
// state, rejects pending requests, and decides whether to reconnect.
func (s *Session) handleDisconnect(gen int, cause error) {
	s.mu.Lock()
	if gen != s.generation || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.detachConnLocked()
	wasEstablished := s.established
	s.established = false
	closed := s.closed
	if cause != nil && !closed {
		s.lastErr = cause
	}
	reconnect := !closed && s.cfg.ReconnectEnabled && wasEstablished && !s.reconnecting
	s.mu.Unlock()

	closeQuietly(conn)
	s.machine.Set(StateDisconnected)
	s.pending.failAll(ErrConnectionLost)
	s.signalAuth(fmt.Errorf("%w: %w", ErrConnectionLost, cause))

	if !closed {
		s.notify(Note{Kind: NoteClose, Err: cause})
	}
	if reconnect {
		go s.reconnectLoop()
	}
}

func (s *Session) reconnectLoop() {
	s.mu.Lock()
	if s.closed || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	cancel := make(chan struct{})
	s.reconnectCancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		if s.reconnectCancel == cancel {
			s.reconnectCancel = nil
		}
		s.mu.Unlock()
	}()

	for attempt := 1; attempt <= s.cfg.ReconnectMaxAttempts; attempt++ {
		s.mu.Lock()
		s.attempts = attempt
		s.mu.Unlock()
		s.notify(Note{Kind: NoteReconnecting, Attempt: attempt})

		delay := s.cfg.ReconnectStrategy.Delay(attempt)
		s.log.Info("reconnecting", logger.Attempt(attempt), slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-cancel:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancelCtx := context.WithTimeout(context.Background(),
			s.cfg.ConnectTimeout+s.cfg.AuthTimeout)
		err := s.connectOnce(ctx)
		cancelCtx()
		if err == nil {
			s.notify(Note{Kind: NoteReconnected, Attempt: attempt})
			return
		}
		s.log.Warn("reconnect attempt failed", logger.Attempt(attempt), logger.Error(err))

		select {
		case <-cancel:
			return
		default:
		}
	}

	s.setLastError(ErrReconnectExhausted)
	s.notify(Note{Kind: NoteFatal, Err: ErrReconnectExhausted})
}

// Must be called with the lock held. Returns the detached conn, which
// the caller closes outside the lock.
func (s *Session) detachConnLocked() *websocket.Conn {
	conn := s.conn
	s.conn = nil
	s.established = false
	if s.connDone != nil {
		close(s.connDone)
		s.connDone = nil
	}
	s.generation++
	return conn
}

// Must be called with the lock held.
func (s *Session) cancelReconnectLocked() {
	if s.reconnectCancel != nil {
		close(s.reconnectCancel)
		s.reconnectCancel = nil
	}
}

func (s *Session) dropConn(gen int) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	conn := s.detachConnLocked()
	s.mu.Unlock()
	closeQuietly(conn)
	s.machine.Set(StateDisconnected)
}

func (s *Session) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// signalAuth completes the in-flight Connect wait at most once.
func (s *Session) signalAuth(err error) {
	s.mu.Lock()
	ch := s.authResult
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (s *Session) notify(note Note) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(note)
	}
}

func closeQuietly(conn *websocket.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func errorText(msg *protocol.Message) string {
	for _, key := range []string{"error", "message"} {
		if v := msg.DataString(key); v != "" {
			return v
		}
	}
	if msg.Content != "" {
		return msg.Content
	}
	return "unspecified error"
}
