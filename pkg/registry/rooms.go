package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

// RoomRegistry stores the authoritative room metadata delivered during
// authentication and the set of rooms the coordinator confirmed this
// client is subscribed to. The subscribed set is only ever replaced
// wholesale from server acknowledgements; local subscribe requests do
// not touch it.
type RoomRegistry struct {
	mu            sync.RWMutex
	rooms         map[string]protocol.Room
	subscribed    map[string]struct{}
	privateRoomID string
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[string]protocol.Room),
		subscribed: make(map[string]struct{}),
	}
}

// Seed installs the room metadata and private room id delivered at auth
// time, replacing whatever a previous session left behind.
func (r *RoomRegistry) Seed(rooms []protocol.Room, privateRoomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms = make(map[string]protocol.Room, len(rooms))
	for _, room := range rooms {
		if room.ID != "" {
			r.rooms[room.ID] = room
		}
	}
	r.privateRoomID = privateRoomID
}

// SetRooms replaces the metadata list, as delivered by a list_rooms
// response.
func (r *RoomRegistry) SetRooms(rooms []protocol.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms = make(map[string]protocol.Room, len(rooms))
	for _, room := range rooms {
		if room.ID != "" {
			r.rooms[room.ID] = room
		}
	}
}

// SetSubscriptions replaces the subscribed set from an authoritative
// server acknowledgement.
func (r *RoomRegistry) SetSubscriptions(roomIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribed = make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		if id != "" {
			r.subscribed[id] = struct{}{}
		}
	}
}

// Rooms returns a copy of the metadata list, sorted by id.
func (r *RoomRegistry) Rooms() []protocol.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	slices.SortFunc(out, func(a, b protocol.Room) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Room returns the metadata for one room.
func (r *RoomRegistry) Room(id string) (protocol.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Subscribed returns the confirmed subscription ids, sorted.
func (r *RoomRegistry) Subscribed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subscribed))
	for id := range r.subscribed {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// IsSubscribed reports whether the server has confirmed a subscription
// to the room.
func (r *RoomRegistry) IsSubscribed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribed[id]
	return ok
}

// PrivateRoomID returns the private room assigned at auth, if any.
func (r *RoomRegistry) PrivateRoomID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.privateRoomID
}

// Clear drops all state, as on disconnect.
func (r *RoomRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]protocol.Room)
	r.subscribed = make(map[string]struct{})
	r.privateRoomID = ""
}
