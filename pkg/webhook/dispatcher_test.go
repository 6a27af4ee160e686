package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teneoprotocol/teneo-go/pkg/backoff"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []string
}

func (s *sinkRecorder) sink(name string, _ DeliveryEvent) {
	s.mu.Lock()
	s.events = append(s.events, name)
	s.mu.Unlock()
}

func (s *sinkRecorder) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev == name {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestDispatcher_DeliversPayload(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.Store(string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := &sinkRecorder{}
	d := New(WithAllowInsecure(true), WithEventSink(rec.sink))
	defer d.Close()

	require.NoError(t, d.Configure(server.URL, map[string]string{"X-Api-Key": "secret"}))
	d.Enqueue("agent_selected", map[string]any{"agent_id": "a-1"}, map[string]any{"sdk_version": "test"})

	waitFor(t, func() bool { return d.Status().Delivered == 1 })

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(got.Load().(string)), &payload))
	assert.Equal(t, "agent_selected", payload.Event)
	assert.Equal(t, 1, rec.count(EventSent))
	assert.Equal(t, 1, rec.count(EventSuccess))
}

func TestDispatcher_RetriesThenFails(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &sinkRecorder{}
	d := New(
		WithAllowInsecure(true),
		WithEventSink(rec.sink),
		WithRetry(backoff.Constant{Interval: 10 * time.Millisecond}, 3),
		WithBreaker(NewCircuitBreaker(100, 2, time.Minute)),
	)
	defer d.Close()

	require.NoError(t, d.Configure(server.URL, nil))
	d.Enqueue("task_response", map[string]any{"x": 1}, nil)

	waitFor(t, func() bool { return d.Status().Failed == 1 })
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 2, rec.count(EventRetry))
	assert.Equal(t, 1, rec.count(EventError), "exactly one error after exhaustion")
}

func TestDispatcher_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	rec := &sinkRecorder{}
	d := New(WithAllowInsecure(true), WithEventSink(rec.sink),
		WithRetry(backoff.Constant{Interval: 10 * time.Millisecond}, 5))
	defer d.Close()

	require.NoError(t, d.Configure(server.URL, nil))
	d.Enqueue("task_response", nil, nil)

	waitFor(t, func() bool { return d.Status().Failed == 1 })
	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, rec.count(EventRetry))
}

func TestDispatcher_BreakerOpensAndBlocksDeliveries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &sinkRecorder{}
	d := New(
		WithAllowInsecure(true),
		WithEventSink(rec.sink),
		WithRetry(backoff.Constant{Interval: time.Millisecond}, 1),
		WithBreaker(NewCircuitBreaker(5, 2, time.Minute)),
	)
	defer d.Close()

	require.NoError(t, d.Configure(server.URL, nil))
	for i := 0; i < 6; i++ {
		d.Enqueue("task_response", map[string]any{"n": i}, nil)
	}

	waitFor(t, func() bool { return d.Status().Failed == 6 })
	assert.Equal(t, CircuitOpen, d.Status().CircuitState)
	assert.Equal(t, int32(5), hits.Load(), "6th delivery rejected without a POST")
	assert.Equal(t, 6, rec.count(EventError))
}

func TestDispatcher_SSRFTargetDisablesDispatcher(t *testing.T) {
	t.Parallel()

	d := New()
	defer d.Close()

	err := d.Configure("http://169.254.169.254/latest/meta-data/", nil)
	require.ErrorIs(t, err, ErrForbiddenTarget)

	status := d.Status()
	assert.False(t, status.Enabled)
	assert.False(t, status.Configured)

	// Enqueue on a disabled dispatcher is a silent no-op.
	d.Enqueue("task_response", nil, nil)
	assert.Zero(t, d.Status().Queued)
}

func TestDispatcher_UnconfiguredDropsEvents(t *testing.T) {
	t.Parallel()

	d := New()
	defer d.Close()

	d.Enqueue("task_response", nil, nil)
	assert.Zero(t, d.Status().Queued)
	assert.Zero(t, d.Status().Delivered)
}

func TestDispatcher_ClearQueue(t *testing.T) {
	t.Parallel()

	// Point at a server that never answers quickly so entries pile up.
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	d := New(WithAllowInsecure(true), WithTimeout(5*time.Second))
	defer d.Close()

	require.NoError(t, d.Configure(server.URL, nil))
	for i := 0; i < 5; i++ {
		d.Enqueue("task_response", nil, nil)
	}
	assert.GreaterOrEqual(t, d.ClearQueue(), 4)
	assert.Zero(t, d.Status().Queued)
}
