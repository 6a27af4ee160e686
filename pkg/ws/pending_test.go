package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

const self = "0xSelfAddress00000000000000000000000000000"

func taskResponse(room, crid, taskID string) *protocol.Message {
	msg := protocol.New(protocol.TypeTaskResponse)
	msg.Room = room
	msg.From = "0xAgent"
	msg.Content = "pong"
	if crid != "" {
		msg.SetData("client_request_id", crid)
	}
	if taskID != "" {
		msg.SetData("task_id", taskID)
	}
	return msg
}

func TestPendingTable_DirectRequestIDMatch(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	req := table.add("req-42", "r-1", false, nil)

	assert.True(t, table.resolve(taskResponse("r-1", "req-42", ""), self))
	res := <-req.ch
	require.NoError(t, res.err)
	assert.Equal(t, "pong", res.msg.Content)
	assert.Zero(t, table.len(), "completed request removed")
}

func TestPendingTable_TaskBindingMatch(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	req := table.add("req-42", "r-1", false, nil)
	table.bind("req-42", "t-7")

	// The reply carries only the task id.
	assert.True(t, table.resolve(taskResponse("r-1", "", "t-7"), self))
	res := <-req.ch
	require.NoError(t, res.err)
	assert.Equal(t, "t-7", res.msg.TaskID())
}

func TestPendingTable_BindUnknownRequestIsNoop(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	table.bind("ghost", "t-9")
	assert.False(t, table.resolve(taskResponse("r-1", "", "t-9"), self))
}

func TestPendingTable_RoomFallback(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	older := table.add("req-1", "r-1", false, nil)
	table.add("req-2", "r-1", false, nil)

	// No correlation id at all: the oldest untargeted request for the
	// room wins, exactly once.
	assert.True(t, table.resolve(taskResponse("r-1", "", ""), self))
	res := <-older.ch
	require.NoError(t, res.err)
	assert.Equal(t, 1, table.len(), "only the matched request completed")
}

func TestPendingTable_FallbackSkipsTargetedRequests(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	table.add("req-1", "r-1", true, nil)

	assert.False(t, table.resolve(taskResponse("r-1", "", ""), self))
	assert.Equal(t, 1, table.len())
}

func TestPendingTable_FallbackSkipsOtherRoomsAndSelf(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	table.add("req-1", "r-1", false, nil)

	assert.False(t, table.resolve(taskResponse("r-other", "", ""), self))

	fromSelf := taskResponse("r-1", "", "")
	fromSelf.From = self
	assert.False(t, table.resolve(fromSelf, self))
}

func TestPendingTable_FilterMatch(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	req := table.add("req-1", "", false, func(m *protocol.Message) bool {
		return m.Type == protocol.TypeSubscribe
	})

	ack := protocol.New(protocol.TypeSubscribe)
	ack.SetData("subscriptions", []any{"r-1"})
	assert.True(t, table.resolve(ack, self))
	res := <-req.ch
	require.NoError(t, res.err)
	assert.Equal(t, protocol.TypeSubscribe, res.msg.Type)

	// A filtered request never falls back onto task responses.
	table.add("req-2", "r-1", false, func(m *protocol.Message) bool { return false })
	assert.False(t, table.resolve(taskResponse("r-1", "", ""), self))
}

func TestPendingTable_RemovedRequestCannotMatch(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	table.add("req-1", "r-1", false, nil)

	assert.True(t, table.remove("req-1"))
	assert.False(t, table.remove("req-1"), "second removal reports gone")
	assert.False(t, table.resolve(taskResponse("r-1", "req-1", ""), self),
		"a timed-out slot cannot subsequently be matched")
}

func TestPendingTable_FailAll(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	a := table.add("req-1", "r-1", false, nil)
	b := table.add("req-2", "r-2", false, nil)

	table.failAll(ErrConnectionLost)
	assert.ErrorIs(t, (<-a.ch).err, ErrConnectionLost)
	assert.ErrorIs(t, (<-b.ch).err, ErrConnectionLost)
	assert.Zero(t, table.len())
}

func TestPendingTable_FailSpecific(t *testing.T) {
	t.Parallel()

	table := newPendingTable(nil)
	req := table.add("req-1", "", false, nil)

	assert.True(t, table.fail("req-1", ErrServerError))
	assert.ErrorIs(t, (<-req.ch).err, ErrServerError)
	assert.False(t, table.fail("req-1", ErrServerError))
}
