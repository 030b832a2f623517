// Package server hosts the per-room scheduling and UDP I/O loop: one
// RoomRuntime per room glues a room.Room to its members' protocol.Peer
// transport state, and Server multiplexes one UDP socket across every
// room by the member/room routing header. It is grounded in
// samp-server-go's Server.listen/updateLoop structure.
package server

import (
	"errors"
	"time"

	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/objectid"
	"github.com/avkviring/cheetah-relay/internal/protocol"
	"github.com/avkviring/cheetah-relay/internal/room"
)

// ErrUnknownPeer is returned when a datagram's routing header names a
// member this RoomRuntime has never registered.
var ErrUnknownPeer = errors.New("server: unknown peer for room")

// RoomRuntime is not safe for concurrent use; Server serializes access
// to each room onto its own goroutine.
type RoomRuntime struct {
	Room  *room.Room
	Peers map[objectid.MemberID]*protocol.Peer
}

// NewRoomRuntime creates an empty runtime for a freshly created room.
func NewRoomRuntime(id room.ID) *RoomRuntime {
	return &RoomRuntime{
		Room:  room.NewRoom(id),
		Peers: make(map[objectid.MemberID]*protocol.Peer),
	}
}

// AddMember registers a connecting member's room state and transport
// peer together; they are always created and torn down in lockstep.
func (rt *RoomRuntime) AddMember(memberID objectid.MemberID, key [codec.KeySize]byte, groups objectid.AccessGroups, super bool, now time.Time) (*protocol.Peer, error) {
	peer, err := protocol.NewPeer(memberID, uint64(rt.Room.ID), key, now)
	if err != nil {
		return nil, err
	}
	peer.State = protocol.StateConnected
	rt.Room.AddMember(memberID, key, groups, super)
	rt.Peers[memberID] = peer
	return peer, nil
}

// RemoveMember tears down a member's room and transport state.
func (rt *RoomRuntime) RemoveMember(memberID objectid.MemberID) {
	rt.Room.RemoveMember(memberID)
	delete(rt.Peers, memberID)
}

// HandleDatagram decrypts and applies one inbound datagram from
// memberID, executing every decoded command against the room, then
// returns the outbound datagrams — to the sender and to anyone the
// commands fanned out to — now ready for the transport layer to send.
// Each member may have more than one datagram queued (a primary frame
// plus any due retransmits).
func (rt *RoomRuntime) HandleDatagram(memberID objectid.MemberID, datagram []byte, now time.Time) (map[objectid.MemberID][][]byte, error) {
	peer, ok := rt.Peers[memberID]
	if !ok {
		return nil, ErrUnknownPeer
	}

	commands, err := peer.HandleIncoming(datagram, now)
	if err != nil {
		return nil, err
	}

	for _, c := range commands {
		// A rejected command (bad permission, unknown object, ...) is
		// dropped without notifying the client and is not a transport
		// fault: the connection stays up and processing continues with
		// the next command.
		_ = rt.Room.ExecuteCommand(memberID, c)
	}

	return rt.flush(now)
}

// Tick drains every member's pending out-commands into a fresh outbound
// datagram even with no new input, so retransmits, acks, and keepalive
// headers still go out on schedule.
func (rt *RoomRuntime) Tick(now time.Time) (map[objectid.MemberID][][]byte, error) {
	return rt.flush(now)
}

func (rt *RoomRuntime) flush(now time.Time) (map[objectid.MemberID][][]byte, error) {
	out := make(map[objectid.MemberID][][]byte, len(rt.Room.Members))
	for id, member := range rt.Room.Members {
		peer, ok := rt.Peers[id]
		if !ok {
			continue
		}
		pending := member.DrainOutCommands()
		datagrams, err := peer.BuildOutgoing(now, pending)
		if err != nil {
			return nil, err
		}
		out[id] = datagrams
	}
	return out, nil
}
