package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teneoprotocol/teneo-go/pkg/backoff"
)

// Event names surfaced by the dispatcher.
const (
	EventSent    = "webhook:sent"
	EventSuccess = "webhook:success"
	EventError   = "webhook:error"
	EventRetry   = "webhook:retry"
)

// Payload is the JSON body POSTed to the webhook endpoint.
type Payload struct {
	Event     string         `json:"event"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DeliveryEvent is the payload of every webhook:* event.
type DeliveryEvent struct {
	ID      string
	Event   string
	Attempt int
	Err     error
}

// EventSink receives dispatcher events. Must not block.
type EventSink func(name string, ev DeliveryEvent)

// Status is a point-in-time snapshot of the dispatcher.
type Status struct {
	Configured   bool         `json:"configured"`
	Enabled      bool         `json:"enabled"`
	URL          string       `json:"url,omitempty"`
	Queued       int          `json:"queued"`
	Delivered    int64        `json:"delivered"`
	Failed       int64        `json:"failed"`
	Dropped      int64        `json:"dropped"`
	CircuitState CircuitState `json:"circuit_state"`
}

type target struct {
	url     string
	headers map[string]string
	enabled bool
}

// Dispatcher owns the queue, the worker, the breaker, and the retry
// policy. Construct with New, point it somewhere with Configure, and
// feed it with Enqueue.
type Dispatcher struct {
	queue    *Queue
	breaker  *CircuitBreaker
	strategy backoff.Strategy
	client   *http.Client
	logger   *slog.Logger
	sink     EventSink

	maxAttempts   int
	timeout       time.Duration
	allowInsecure bool

	mu     sync.RWMutex
	target target

	delivered atomic.Int64
	failed    atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueCapacity bounds the pending queue.
func WithQueueCapacity(n int) Option {
	return func(d *Dispatcher) { d.queue = NewQueue(n) }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *CircuitBreaker) Option {
	return func(d *Dispatcher) {
		if cb != nil {
			d.breaker = cb
		}
	}
}

// WithRetry sets the per-delivery backoff strategy and attempt cap.
func WithRetry(strategy backoff.Strategy, maxAttempts int) Option {
	return func(d *Dispatcher) {
		if strategy != nil {
			d.strategy = strategy
		}
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
	}
}

// WithHTTPClient replaces the default client, for tests and proxies.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEventSink wires dispatcher events to the caller's emitter.
func WithEventSink(sink EventSink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// WithAllowInsecure permits loopback targets, for local development.
func WithAllowInsecure(allow bool) Option {
	return func(d *Dispatcher) { d.allowInsecure = allow }
}

// New creates a dispatcher and starts its worker. It accepts no
// deliveries until Configure succeeds.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:       NewQueue(DefaultQueueCapacity),
		breaker:     NewCircuitBreaker(0, 0, 0),
		strategy:    backoff.ForWebhook(),
		maxAttempts: 5,
		timeout:     10 * time.Second,
		logger:      slog.Default(),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.work(ctx)
	return d
}

// Configure validates and atomically swaps the delivery target. A URL
// that fails validation clears the target and disables the dispatcher
// until a later Configure succeeds; while disabled, new events are not
// queued and each delivery the worker takes from the queue fails with
// ErrDisabled.
func (d *Dispatcher) Configure(rawURL string, headers map[string]string) error {
	if err := ValidateURL(rawURL, d.allowInsecure); err != nil {
		d.mu.Lock()
		d.target = target{}
		d.mu.Unlock()
		d.logger.Error("webhook target rejected", slog.String("url", rawURL), slog.Any("error", err))
		return err
	}

	d.mu.Lock()
	d.target = target{url: rawURL, headers: maps.Clone(headers), enabled: true}
	d.mu.Unlock()
	d.breaker.Reset()
	return nil
}

// Enqueue queues one event for delivery. Non-blocking and
// fire-and-forget: without a configured target it is a no-op, and
// overflow silently evicts the oldest pending delivery.
func (d *Dispatcher) Enqueue(event string, data any, metadata map[string]any) {
	d.mu.RLock()
	enabled := d.target.enabled
	d.mu.RUnlock()
	if !enabled {
		return
	}

	delivery := &Delivery{
		ID: uuid.New().String(),
		Payload: Payload{
			Event:     event,
			Data:      data,
			Metadata:  metadata,
			Timestamp: time.Now().UTC(),
		},
		EnqueuedAt: time.Now(),
	}
	if d.queue.Push(delivery) {
		d.logger.Warn("webhook queue full, dropped oldest delivery",
			slog.String("event", event))
	}
}

// Status returns a snapshot of counters and breaker state.
func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	t := d.target
	d.mu.RUnlock()
	return Status{
		Configured:   t.url != "",
		Enabled:      t.enabled,
		URL:          t.url,
		Queued:       d.queue.Len(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.queue.Dropped(),
		CircuitState: d.breaker.State(),
	}
}

// ClearQueue discards pending deliveries and returns how many.
func (d *Dispatcher) ClearQueue() int {
	return d.queue.Clear()
}

// Close stops the worker. Pending deliveries are discarded. Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
	})
}

func (d *Dispatcher) work(ctx context.Context) {
	defer close(d.done)
	for {
		delivery, err := d.queue.Pop(ctx)
		if err != nil {
			return
		}
		d.attempt(ctx, delivery)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, delivery *Delivery) {
	d.mu.RLock()
	t := d.target
	d.mu.RUnlock()

	if !t.enabled {
		d.fail(delivery, ErrDisabled)
		return
	}

	if !d.breaker.Allow() {
		d.fail(delivery, ErrCircuitOpen)
		return
	}

	if delivery.Attempts == 0 {
		d.emit(EventSent, DeliveryEvent{ID: delivery.ID, Event: delivery.Payload.Event, Attempt: 1})
	}
	delivery.Attempts++

	status, err := d.post(ctx, t, delivery.Payload)
	if err == nil {
		d.breaker.RecordSuccess()
		d.delivered.Add(1)
		d.emit(EventSuccess, DeliveryEvent{ID: delivery.ID, Event: delivery.Payload.Event, Attempt: delivery.Attempts})
		return
	}

	d.breaker.RecordFailure()

	if isPermanentStatus(status) {
		d.fail(delivery, fmt.Errorf("%w: %w", ErrPermanentFailure, err))
		return
	}
	if delivery.Attempts >= d.maxAttempts {
		d.fail(delivery, fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, delivery.Attempts, err))
		return
	}

	delay := d.strategy.Delay(delivery.Attempts)
	delivery.NextAttemptAt = time.Now().Add(delay)
	d.queue.Push(delivery)
	d.emit(EventRetry, DeliveryEvent{ID: delivery.ID, Event: delivery.Payload.Event, Attempt: delivery.Attempts, Err: err})
	d.logger.Debug("webhook delivery retry scheduled",
		slog.String("event", delivery.Payload.Event),
		slog.Int("attempt", delivery.Attempts),
		slog.Duration("delay", delay))
}

func (d *Dispatcher) fail(delivery *Delivery, err error) {
	d.failed.Add(1)
	d.emit(EventError, DeliveryEvent{ID: delivery.ID, Event: delivery.Payload.Event, Attempt: delivery.Attempts, Err: err})
	d.logger.Warn("webhook delivery failed",
		slog.String("event", delivery.Payload.Event),
		slog.Int("attempts", delivery.Attempts),
		slog.Any("error", err))
}

func (d *Dispatcher) post(ctx context.Context, t target, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "teneo-go-webhook/1.0")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) emit(name string, ev DeliveryEvent) {
	if d.sink != nil {
		d.sink(name, ev)
	}
}

// isPermanentStatus reports 4xx codes that retrying cannot fix. 408,
// 425, and 429 are timing or rate problems and stay retryable.
func isPermanentStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
