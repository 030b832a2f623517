// Package management implements the room/member lifecycle surface:
// creating and deleting rooms and members, querying room state, and a
// registration heartbeat reporting this relay's capacity to an
// external allocator. It is grounded in
// samp-server-go's Server (room/player bookkeeping behind a mutex) and
// in ocx-backend's use of github.com/google/uuid for request
// correlation ids.
package management

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/objectid"
	"github.com/avkviring/cheetah-relay/internal/room"
	"github.com/avkviring/cheetah-relay/internal/server"
)

var (
	ErrRoomExists        = errors.New("management: room already exists")
	ErrRoomNotFound      = errors.New("management: room not found")
	ErrMemberObjectHasWrongID = errors.New("management: member template contained an id >= CLIENT_OBJECT_ID_OFFSET")
)

// RoomEvent is delivered to WatchCreatedRoomEvent/WatchDeletedRoomEvent
// subscribers.
type RoomEvent struct {
	RoomID       room.ID
	CorrelationID string
	At           time.Time
}

// TemplateObject describes one server-seeded object a member
// registration may request. CreateMember only validates it against the
// id rule; it is not created in the room.
type TemplateObject struct {
	ID           uint32
	TemplateID   uint16
	AccessGroups objectid.AccessGroups
}

// ReadinessState is reported to the external allocator on the
// registration heartbeat.
type ReadinessState byte

const (
	NotReady ReadinessState = iota
	Ready
	Allocated
)

// Manager owns the relay's room table and the lifecycle operations an
// external allocator drives. It is safe for concurrent use.
type Manager struct {
	srv *server.Server

	mu    sync.RWMutex
	rooms map[room.ID]*server.RoomRuntime

	createdSubs []chan RoomEvent
	deletedSubs []chan RoomEvent
}

// New builds a Manager bound to srv, which owns the UDP transport every
// created room's members will actually talk over.
func New(srv *server.Server) *Manager {
	return &Manager{srv: srv, rooms: make(map[room.ID]*server.RoomRuntime)}
}

// CreateRoom registers a new room and notifies WatchCreatedRoomEvent
// subscribers.
func (m *Manager) CreateRoom(id room.ID) (*server.RoomRuntime, error) {
	m.mu.Lock()
	if _, exists := m.rooms[id]; exists {
		m.mu.Unlock()
		return nil, ErrRoomExists
	}
	rt := m.srv.CreateRoom(id)
	m.rooms[id] = rt
	m.mu.Unlock()

	m.publishCreated(RoomEvent{RoomID: id, CorrelationID: uuid.NewString(), At: time.Now()})
	return rt, nil
}

// DeleteRoom tears a room down and notifies WatchDeletedRoomEvent
// subscribers.
func (m *Manager) DeleteRoom(id room.ID) error {
	m.mu.Lock()
	if _, exists := m.rooms[id]; !exists {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(m.rooms, id)
	m.srv.DeleteRoom(id)
	m.mu.Unlock()

	m.publishDeleted(RoomEvent{RoomID: id, CorrelationID: uuid.NewString(), At: time.Now()})
	return nil
}

// RoomStats reports id's live member and object counts, for the
// allocator's health checks. The counts are computed on the room's own
// worker goroutine so the read never races with room execution.
func (m *Manager) RoomStats(id room.ID) (members, objects int, ok bool) {
	m.mu.RLock()
	_, exists := m.rooms[id]
	m.mu.RUnlock()
	if !exists {
		return 0, 0, false
	}
	members, objects, err := m.srv.RoomStats(id)
	if err != nil {
		return 0, 0, false
	}
	return members, objects, true
}

// CreateMember registers a member in roomID, first validating any
// requested template objects against the id rule (a template object
// with id >= ClientObjectIDOffset is a registration error, not a
// room-execution error). Valid template objects are not passed on to
// the room; no object is created for them.
func (m *Manager) CreateMember(roomID room.ID, memberID objectid.MemberID, key [codec.KeySize]byte, groups objectid.AccessGroups, super bool, templates []TemplateObject) error {
	for _, tpl := range templates {
		if tpl.ID >= objectid.ClientObjectIDOffset {
			return ErrMemberObjectHasWrongID
		}
	}

	m.mu.RLock()
	_, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	_, err := m.srv.AddMember(roomID, memberID, key, groups, super, time.Now())
	return err
}

// DeleteMember disconnects a member from roomID, triggering its
// compare-and-set reset sweep.
func (m *Manager) DeleteMember(roomID room.ID, memberID objectid.MemberID) error {
	m.mu.RLock()
	_, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}
	return m.srv.RemoveMember(roomID, memberID)
}

// Probe reports this relay process's readiness for a load balancer's
// health check. maxRooms <= 0 means the process is not configured to
// accept any rooms yet (NotReady). An idle process with no rooms is
// Ready for a fresh allocation; a process already hosting at least one
// room is Allocated, whether or not it still has spare capacity for
// more.
func (m *Manager) Probe(maxRooms int) ReadinessState {
	if maxRooms <= 0 {
		return NotReady
	}
	m.mu.RLock()
	n := len(m.rooms)
	m.mu.RUnlock()
	if n == 0 {
		return Ready
	}
	return Allocated
}

// WatchCreatedRoomEvent returns a channel receiving every future
// CreateRoom event.
func (m *Manager) WatchCreatedRoomEvent() <-chan RoomEvent {
	ch := make(chan RoomEvent, 16)
	m.mu.Lock()
	m.createdSubs = append(m.createdSubs, ch)
	m.mu.Unlock()
	return ch
}

// WatchDeletedRoomEvent returns a channel receiving every future
// DeleteRoom event.
func (m *Manager) WatchDeletedRoomEvent() <-chan RoomEvent {
	ch := make(chan RoomEvent, 16)
	m.mu.Lock()
	m.deletedSubs = append(m.deletedSubs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) publishCreated(ev RoomEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	publish(m.createdSubs, ev)
}

func (m *Manager) publishDeleted(ev RoomEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	publish(m.deletedSubs, ev)
}

func publish(subs []chan RoomEvent, ev RoomEvent) {
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// a slow watcher must not block room lifecycle operations.
		}
	}
}
