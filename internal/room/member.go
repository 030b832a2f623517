package room

import (
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/command"
	"github.com/avkviring/cheetah-relay/internal/objectid"
)

// Member is a room-scoped connection. The protocol/transport
// state (frame ids, replay window, etc.) lives one layer up in
// internal/protocol; Room only tracks what the execution engine needs.
type Member struct {
	ID           objectid.MemberID
	PrivateKey   [codec.KeySize]byte
	AccessGroups objectid.AccessGroups
	SuperMember  bool

	Connected bool
	Attached  bool

	// OutCommands queues S2C commands fanned out to this member, drained
	// by the protocol/server layer once per tick.
	OutCommands []command.Command
}

func newMember(id objectid.MemberID, key [codec.KeySize]byte, groups objectid.AccessGroups, super bool) *Member {
	if super {
		groups |= objectid.SuperBit
	}
	return &Member{ID: id, PrivateKey: key, AccessGroups: groups, SuperMember: super}
}

func (m *Member) enqueue(c command.Command) {
	m.OutCommands = append(m.OutCommands, c)
}

// DrainOutCommands removes and returns every command queued for this
// member.
func (m *Member) DrainOutCommands() []command.Command {
	out := m.OutCommands
	m.OutCommands = nil
	return out
}
