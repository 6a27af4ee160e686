package ws

import (
	"container/list"
	"log/slog"
	"strings"
	"sync"

	"github.com/teneoprotocol/teneo-go/pkg/logger"
	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

// Filter decides whether an inbound message completes a request. A nil
// filter uses the default task-response matching rules.
type Filter func(*protocol.Message) bool

// pendingRequest is one waiting send. A request is completed exactly
// once: by a matching reply, by timeout, or by session teardown;
// whichever happens first removes it from the table under the lock, so
// a late reply cannot race a timeout.
type pendingRequest struct {
	id       string
	room     string
	targeted bool
	filter   Filter
	elem     *list.Element
	ch       chan result
}

type result struct {
	msg *protocol.Message
	err error
}

// pendingTable correlates replies to in-flight requests. task_id
// bindings are installed when an agent_selected echoes the request id,
// letting a later task_response match even though it only carries the
// task id.
type pendingTable struct {
	mu     sync.Mutex
	byID   map[string]*pendingRequest
	byTask map[string]*pendingRequest
	order  *list.List // insertion order, for room-fallback matching
	logger *slog.Logger
}

func newPendingTable(log *slog.Logger) *pendingTable {
	if log == nil {
		log = slog.Default()
	}
	return &pendingTable{
		byID:   make(map[string]*pendingRequest),
		byTask: make(map[string]*pendingRequest),
		order:  list.New(),
		logger: log,
	}
}

func (t *pendingTable) add(id, room string, targeted bool, filter Filter) *pendingRequest {
	req := &pendingRequest{
		id:       id,
		room:     room,
		targeted: targeted,
		filter:   filter,
		ch:       make(chan result, 1),
	}
	t.mu.Lock()
	t.byID[id] = req
	req.elem = t.order.PushBack(req)
	t.mu.Unlock()
	return req
}

// bind associates a coordinator task id with the request that the
// agent_selected frame echoed.
func (t *pendingTable) bind(requestID, taskID string) {
	if requestID == "" || taskID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.byID[requestID]; ok {
		t.byTask[taskID] = req
		t.logger.Debug("bound task to pending request",
			logger.RequestID(requestID), slog.String("task_id", taskID))
	}
}

// remove drops a request, typically after its deadline fired. Reports
// whether the request was still pending.
func (t *pendingTable) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byID[id]
	if !ok {
		return false
	}
	t.dropLocked(req)
	return true
}

// resolve offers an inbound message to the table. Returns true when a
// request was completed with it. selfAddress filters out the client's
// own echoed messages during fallback matching.
func (t *pendingTable) resolve(msg *protocol.Message, selfAddress string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Direct correlation: the reply echoes our request id, or carries a
	// task id an agent_selected previously bound.
	if id := msg.ClientRequestID(); id != "" {
		if req, ok := t.byID[id]; ok && req.accepts(msg) {
			t.completeLocked(req, msg, nil)
			return true
		}
	}
	if taskID := msg.TaskID(); taskID != "" {
		if req, ok := t.byTask[taskID]; ok && req.accepts(msg) {
			t.completeLocked(req, msg, nil)
			return true
		}
	}

	// Filtered requests match on their predicate alone; acks for
	// subscribe or list_rooms do not echo request ids on every server
	// build. Oldest matching request wins.
	for elem := t.order.Front(); elem != nil; elem = elem.Next() {
		req := elem.Value.(*pendingRequest)
		if req.filter != nil && req.filter(msg) {
			t.completeLocked(req, msg, nil)
			return true
		}
	}

	// Fallback: a task_response on the same room that correlates to
	// nothing is given to the oldest untargeted request for that room.
	// Kept because some coordinator builds do not echo request ids on
	// every path. Never applied to sends with an explicit agent target.
	if msg.Type == protocol.TypeTaskResponse && !strings.EqualFold(msg.From, selfAddress) {
		for elem := t.order.Front(); elem != nil; elem = elem.Next() {
			req := elem.Value.(*pendingRequest)
			if req.targeted || req.filter != nil || req.room != msg.Room {
				continue
			}
			t.logger.Warn("matched task_response by room fallback",
				logger.RequestID(req.id), logger.Room(msg.Room))
			t.completeLocked(req, msg, nil)
			return true
		}
	}
	return false
}

// fail rejects one request with err, as when the server returns an
// error frame correlated to it.
func (t *pendingTable) fail(id string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byID[id]
	if !ok {
		return false
	}
	t.completeLocked(req, nil, err)
	return true
}

// failAll rejects every pending request, as on disconnect.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, req := range t.byID {
		req.ch <- result{err: err}
	}
	t.byID = make(map[string]*pendingRequest)
	t.byTask = make(map[string]*pendingRequest)
	t.order.Init()
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// Must be called with the lock held.
func (t *pendingTable) completeLocked(req *pendingRequest, msg *protocol.Message, err error) {
	req.ch <- result{msg: msg, err: err}
	t.dropLocked(req)
}

// Must be called with the lock held.
func (t *pendingTable) dropLocked(req *pendingRequest) {
	delete(t.byID, req.id)
	for taskID, bound := range t.byTask {
		if bound == req {
			delete(t.byTask, taskID)
		}
	}
	if req.elem != nil {
		t.order.Remove(req.elem)
		req.elem = nil
	}
}

// accepts applies the request's filter, defaulting to "a task_response
// or an explicit reply to this request".
func (r *pendingRequest) accepts(msg *protocol.Message) bool {
	if r.filter != nil {
		return r.filter(msg)
	}
	switch msg.Type {
	case protocol.TypeTaskResponse, protocol.TypeMessage:
		return true
	default:
		return false
	}
}
