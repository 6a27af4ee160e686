package emitter

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Listener receives the payload of an emitted event.
type Listener func(payload any)

type registration struct {
	id   string
	fn   Listener
	once bool
}

// Emitter dispatches named events to registered listeners synchronously.
// Safe for concurrent use; listeners themselves run outside the lock so
// they may subscribe and unsubscribe freely.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]registration
	closed    bool
	logger    *slog.Logger
}

// New creates an emitter. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		listeners: make(map[string][]registration),
		logger:    logger,
	}
}

// On registers a listener and returns its id for Off.
func (e *Emitter) On(event string, fn Listener) string {
	return e.register(event, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (e *Emitter) Once(event string, fn Listener) string {
	return e.register(event, fn, true)
}

func (e *Emitter) register(event string, fn Listener, once bool) string {
	if fn == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ""
	}
	id := uuid.New().String()
	e.listeners[event] = append(e.listeners[event], registration{id: id, fn: fn, once: once})
	return id
}

// Off removes the listener with the given id from the event.
func (e *Emitter) Off(event, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.id == id {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(e.listeners[event]) == 0 {
		delete(e.listeners, event)
	}
}

// Emit invokes the event's listeners in registration order. Once
// listeners are removed before invocation so a listener re-emitting the
// same event cannot run them twice.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	regs := e.listeners[event]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	remaining := regs[:0:0]
	for _, reg := range regs {
		if !reg.once {
			remaining = append(remaining, reg)
		}
	}
	if len(remaining) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = remaining
	}
	e.mu.Unlock()

	for _, reg := range snapshot {
		e.invoke(event, reg, payload)
	}
}

func (e *Emitter) invoke(event string, reg registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked",
				slog.String("event", event),
				slog.Any("panic", r))
		}
	}()
	reg.fn(payload)
}

// ListenerCount returns how many listeners the event currently has.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Close drops all listeners. Subsequent On/Emit calls are no-ops.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.listeners = make(map[string][]registration)
}
