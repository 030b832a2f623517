package server

import (
	"testing"
	"time"

	"github.com/avkviring/cheetah-relay/internal/channel"
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/command"
	"github.com/avkviring/cheetah-relay/internal/objectid"
	"github.com/avkviring/cheetah-relay/internal/protocol"
)

func TestRoomRuntimeDeliversAndFansOutThroughTransport(t *testing.T) {
	now := time.Unix(0, 0)
	rt := NewRoomRuntime(1)

	var key1, key2 [codec.KeySize]byte
	key2[0] = 1
	const groupA objectid.AccessGroups = 0b1

	peer1, err := rt.AddMember(1, key1, groupA, false, now)
	if err != nil {
		t.Fatalf("AddMember 1: %v", err)
	}
	peer2, err := rt.AddMember(2, key2, groupA, false, now)
	if err != nil {
		t.Fatalf("AddMember 2: %v", err)
	}

	attach := []command.Command{{Kind: command.AttachToRoom, Channel: channel.Channel{Discipline: channel.ReliableUnordered}}}

	datagram1, err := buildDatagram(peer1, now, attach)
	if err != nil {
		t.Fatalf("build attach 1: %v", err)
	}
	if _, err := rt.HandleDatagram(1, datagram1[0], now); err != nil {
		t.Fatalf("HandleDatagram attach 1: %v", err)
	}

	datagram2, err := buildDatagram(peer2, now, attach)
	if err != nil {
		t.Fatalf("build attach 2: %v", err)
	}
	if _, err := rt.HandleDatagram(2, datagram2[0], now); err != nil {
		t.Fatalf("HandleDatagram attach 2: %v", err)
	}

	objID := objectid.GameObjectID{ID: 1, Owner: objectid.MemberOwner(1)}
	create := []command.Command{
		{Kind: command.CreateGameObject, ObjectID: objID, TemplateID: 1, AccessGroups: groupA, Channel: channel.Channel{Discipline: channel.ReliableUnordered}},
		{Kind: command.CreatedGameObject, ObjectID: objID, Channel: channel.Channel{Discipline: channel.ReliableUnordered}},
	}
	datagram1, err = buildDatagram(peer1, now, create)
	if err != nil {
		t.Fatalf("build create: %v", err)
	}
	out, err := rt.HandleDatagram(1, datagram1[0], now)
	if err != nil {
		t.Fatalf("HandleDatagram create: %v", err)
	}

	fanOutDatagrams, ok := out[2]
	if !ok || len(fanOutDatagrams) == 0 {
		t.Fatalf("no outbound datagram queued for member 2: %+v", out)
	}

	peer2Shadow, err := protocol.NewPeer(2, 1, key2, now)
	if err != nil {
		t.Fatalf("NewPeer shadow: %v", err)
	}
	received, err := peer2Shadow.HandleIncoming(fanOutDatagrams[0], now)
	if err != nil {
		t.Fatalf("shadow decode: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("member 2 received %d commands, want 2 (Create, Created): %+v", len(received), received)
	}
	if received[0].Kind != command.CreateGameObject || received[1].Kind != command.CreatedGameObject {
		t.Errorf("received kinds = %v, %v, want CreateGameObject, CreatedGameObject", received[0].Kind, received[1].Kind)
	}
}

func buildDatagram(p *protocol.Peer, now time.Time, commands []command.Command) ([][]byte, error) {
	return p.BuildOutgoing(now, commands)
}
