// Package protocol glues the codec, frame, reliable, and channel
// packages into one per-peer state machine: the connection lifecycle,
// keepalive/disconnect handling, and the encode/decode path that turns
// outbound commands into wire datagrams and wire datagrams back into
// inbound commands. It is grounded in the connection-state and
// per-session bookkeeping of samp-server-go's RakNetHandler session map.
package protocol

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/avkviring/cheetah-relay/internal/channel"
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/command"
	"github.com/avkviring/cheetah-relay/internal/frame"
	"github.com/avkviring/cheetah-relay/internal/objectid"
	"github.com/avkviring/cheetah-relay/internal/reliable"
)

// State is a peer's connection lifecycle position. Attached/detached is
// tracked independently by the room, not here.
type State byte

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

// KeepaliveInterval is a keepalive period for a peer with nothing else
// to send. Nothing in this package reads it: BuildOutgoing emits a frame
// (headers only when there are no commands) on every call, which keeps
// NAT bindings alive and drives RTT sampling.
const KeepaliveInterval = 3 * time.Second

// ErrNotConnected is returned by operations that require a connected
// peer.
var ErrNotConnected = errors.New("protocol: peer not connected")

// Peer holds the transport-layer state for one connected member: frame
// ids, replay protection, retransmission, RTT/congestion, and the
// ordering collectors for commands flowing in each direction. Room
// execution state (objects, permissions) lives in internal/room and is
// deliberately not reachable from here.
type Peer struct {
	MemberID objectid.MemberID
	RoomID   uint64
	cipher   *codec.Cipher

	State        State
	lastActivity time.Time

	nextFrameID uint64
	sentBodies  map[uint64][]byte

	replay       *reliable.ReplayProtection
	acks         *reliable.AckBuilder
	retransmit   *reliable.Retransmitter
	congestion   reliable.CongestionControl
	rtt          *reliable.RTTHandler

	outSeq *channel.OutCollector
	inSeq  *channel.InCollector[command.Command]
}

// DefaultAckWait seeds the retransmitter before any RTT sample exists.
const DefaultAckWait = 200 * time.Millisecond

// NewPeer builds a peer in StateConnecting for a member about to join
// roomID, keyed with its private key.
func NewPeer(memberID objectid.MemberID, roomID uint64, key [codec.KeySize]byte, now time.Time) (*Peer, error) {
	cipher, err := codec.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Peer{
		MemberID:     memberID,
		RoomID:       roomID,
		cipher:       cipher,
		State:        StateConnecting,
		lastActivity: now,
		sentBodies:   make(map[uint64][]byte),
		replay:       reliable.NewReplayProtection(),
		acks:         &reliable.AckBuilder{},
		retransmit:   reliable.NewRetransmitter(DefaultAckWait),
		rtt:          reliable.NewRTTHandler(now),
		outSeq:       channel.NewOutCollector(),
		inSeq:        channel.NewInCollector[command.Command](),
	}, nil
}

// EncodeDatagram prefixes an encoded frame with its cleartext frame id,
// since routing headers (and therefore the AEAD associated data) must
// be readable before any ciphertext is touched but the id itself never
// appears as plaintext inside the frame payload.
func EncodeDatagram(f *frame.Frame, cipher *codec.Cipher) ([]byte, error) {
	wire, err := f.Encode(cipher)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(wire))
	binary.BigEndian.PutUint64(out, f.FrameID)
	copy(out[8:], wire)
	return out, nil
}

// DecodeDatagram splits a raw UDP payload into its cleartext frame id
// and the remaining (still encrypted) wire frame.
func DecodeDatagram(datagram []byte) (frameID uint64, wire []byte, ok bool) {
	if len(datagram) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(datagram), datagram[8:], true
}

// BuildOutgoing assembles the outbound datagrams for this peer for one
// tick: a primary frame (group sequences stamped on outgoing commands,
// pending acks, an RTT request/response) at index 0, followed by one
// retransmit datagram per reliable frame whose ack wait has elapsed.
// Each retransmit datagram reuses the original frame id and carries the
// original frame's body verbatim, so the peer that dropped it receives
// the same commands again rather than an empty retransmit marker.
func (p *Peer) BuildOutgoing(now time.Time, outgoing []command.Command) ([][]byte, error) {
	p.congestion.Rebalance(now, p.rtt, p.retransmit)

	var datagrams [][]byte

	f := frame.New(p.nextFrameID)
	p.nextFrameID++

	f.AddHeader(frame.Header{Kind: frame.HeaderMemberAndRoomID, MemberID: uint16(p.MemberID), RoomID: p.RoomID})

	for _, h := range p.acks.BuildHeaders() {
		f.AddHeader(h)
	}
	f.AddHeader(frame.Header{Kind: frame.HeaderRTTRequest, SelfTimeMs: p.rtt.BuildRequest(now)})
	if selfTimeMs, ok := p.rtt.PendingResponse(); ok {
		f.AddHeader(frame.Header{Kind: frame.HeaderRTTResponse, SelfTimeMs: selfTimeMs})
	}

	for i := range outgoing {
		if outgoing[i].Channel.Discipline.Grouped() {
			outgoing[i].Sequence = p.outSeq.NextSequence(outgoing[i].Channel)
		}
	}
	f.Body = command.EncodeBatch(outgoing)

	if containsReliable(outgoing) {
		p.retransmit.OnSend(f.FrameID, now)
		p.sentBodies[f.FrameID] = f.Body
	}

	encoded, err := EncodeDatagram(f, p.cipher)
	if err != nil {
		return nil, err
	}
	datagrams = append(datagrams, encoded)

	for _, originalID := range p.retransmit.DueForRetransmit(now) {
		body, ok := p.sentBodies[originalID]
		if !ok {
			// Already acked between DueForRetransmit's scan and here, or
			// never tracked (shouldn't happen); nothing left to resend.
			continue
		}
		rf := frame.New(originalID)
		rf.AddHeader(frame.Header{Kind: frame.HeaderMemberAndRoomID, MemberID: uint16(p.MemberID), RoomID: p.RoomID})
		rf.AddHeader(frame.Header{Kind: frame.HeaderRetransmit, OriginalFrameID: originalID})
		rf.Body = body

		encoded, err := EncodeDatagram(rf, p.cipher)
		if err != nil {
			return nil, err
		}
		datagrams = append(datagrams, encoded)
	}

	return datagrams, nil
}

func containsReliable(commands []command.Command) bool {
	for _, c := range commands {
		if c.Channel.Discipline.Reliable() {
			return true
		}
	}
	return false
}

// HandleIncoming decrypts and applies one received datagram, returning
// the commands ready for room execution in delivery order. A duplicate
// frame yields (nil, nil). A decrypt failure returns codec.ErrDecrypt,
// and only that datagram is dropped; a replay-too-old frame
// (reliable.ErrTooOldFrame) or a full reorder buffer
// (channel.ErrReorderBufferFull) returns an error the caller should
// treat as fatal for this peer.
func (p *Peer) HandleIncoming(datagram []byte, now time.Time) ([]command.Command, error) {
	frameID, wire, ok := DecodeDatagram(datagram)
	if !ok {
		return nil, errors.New("protocol: datagram too short")
	}

	if err := p.replay.Check(frameID); err != nil {
		if errors.Is(err, reliable.ErrDuplicate) {
			// The sender is retransmitting because our ack never arrived;
			// re-ack it so it stops, even though we already delivered it.
			p.acks.OnFrameReceived(frameID)
			return nil, nil
		}
		return nil, err
	}

	f, err := frame.Decode(frameID, wire, p.cipher)
	if err != nil {
		return nil, err
	}

	p.lastActivity = now
	p.acks.OnFrameReceived(frameID)

	for _, h := range f.All(frame.HeaderAck) {
		for _, acked := range h.Frames() {
			p.retransmit.OnAck(acked)
			delete(p.sentBodies, acked)
		}
	}
	for _, h := range f.All(frame.HeaderRTTRequest) {
		p.rtt.OnRequestReceived(h.SelfTimeMs)
	}
	for _, h := range f.All(frame.HeaderRTTResponse) {
		p.rtt.OnResponseReceived(h.SelfTimeMs, now)
	}
	if _, disconnecting := f.First(frame.HeaderDisconnect); disconnecting {
		p.State = StateDisconnected
	}

	decoded, err := command.DecodeBatch(f.Body)
	if err != nil {
		return nil, err
	}

	var ready []command.Command
	for _, c := range decoded {
		delivered, err := p.inSeq.Accept(c.Channel, c.Sequence, c)
		if err != nil {
			return nil, err
		}
		ready = append(ready, delivered...)
	}
	return ready, nil
}

// Exhausted reports the frame ids whose retransmit deadline has passed
// DisconnectTimeout; a non-empty result means the caller must tear this
// peer down.
func (p *Peer) Exhausted(now time.Time) []uint64 {
	return p.retransmit.Exhausted(now, reliable.DisconnectTimeout)
}

// IdleFor reports how long it has been since anything was received from
// this peer.
func (p *Peer) IdleFor(now time.Time) time.Duration {
	return now.Sub(p.lastActivity)
}
