package frame

import (
	"errors"
	"fmt"

	"github.com/avkviring/cheetah-relay/internal/codec"
)

// HeaderKind tags the variant carried by a Header. Headers are modeled as
// a closed sum type (a tag plus per-kind fields) rather than an
// interface: a fixed set of variants is enough and it avoids per-frame
// allocation.
type HeaderKind byte

const (
	HeaderMemberAndRoomID HeaderKind = iota + 1
	HeaderHello
	HeaderAck
	HeaderDisconnect
	HeaderRTTRequest
	HeaderRTTResponse
	HeaderRetransmit
)

// DisconnectReason is carried by a Disconnect header.
type DisconnectReason byte

const (
	DisconnectClientStopped DisconnectReason = iota
	DisconnectRoomDeleted
	DisconnectMemberDeleted
)

// AckCapacity is the number of frames a single Ack header can confirm
// beyond start_frame_id (8 bytes * 8 bits).
const AckCapacity = 8 * 8

// Header is a single wire header. Only the fields relevant to Kind are
// meaningful; the rest are zero.
type Header struct {
	Kind HeaderKind

	// HeaderMemberAndRoomID
	MemberID uint16
	RoomID   uint64

	// HeaderAck
	AckStartFrameID uint64
	AckBits         [8]byte

	// HeaderDisconnect
	DisconnectReason DisconnectReason

	// HeaderRTTRequest / HeaderRTTResponse
	SelfTimeMs uint64

	// HeaderRetransmit
	OriginalFrameID uint64
}

var errHeaderDecode = errors.New("frame: header decode error")

// Encode appends the wire form of h to *buf.
func (h Header) Encode(buf *[]byte) {
	*buf = append(*buf, byte(h.Kind))
	switch h.Kind {
	case HeaderMemberAndRoomID:
		codec.WriteVarUint(buf, uint64(h.MemberID))
		codec.WriteVarUint(buf, h.RoomID)
	case HeaderHello:
		// no payload
	case HeaderAck:
		codec.WriteVarUint(buf, h.AckStartFrameID)
		*buf = append(*buf, h.AckBits[:]...)
	case HeaderDisconnect:
		*buf = append(*buf, byte(h.DisconnectReason))
	case HeaderRTTRequest, HeaderRTTResponse:
		codec.WriteVarUint(buf, h.SelfTimeMs)
	case HeaderRetransmit:
		codec.WriteVarUint(buf, h.OriginalFrameID)
	default:
		panic(fmt.Sprintf("frame: unknown header kind %d", h.Kind))
	}
}

// DecodeHeader reads one header from the front of b, returning the
// header and the number of bytes consumed.
func DecodeHeader(b []byte) (Header, int, error) {
	if len(b) < 1 {
		return Header{}, 0, errHeaderDecode
	}
	kind := HeaderKind(b[0])
	off := 1
	h := Header{Kind: kind}
	switch kind {
	case HeaderMemberAndRoomID:
		memberID, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Header{}, 0, errHeaderDecode
		}
		off += n
		roomID, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Header{}, 0, errHeaderDecode
		}
		off += n
		h.MemberID = uint16(memberID)
		h.RoomID = roomID
	case HeaderHello:
		// no payload
	case HeaderAck:
		start, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Header{}, 0, errHeaderDecode
		}
		off += n
		if len(b) < off+8 {
			return Header{}, 0, errHeaderDecode
		}
		h.AckStartFrameID = start
		copy(h.AckBits[:], b[off:off+8])
		off += 8
	case HeaderDisconnect:
		if len(b) < off+1 {
			return Header{}, 0, errHeaderDecode
		}
		h.DisconnectReason = DisconnectReason(b[off])
		off++
	case HeaderRTTRequest, HeaderRTTResponse:
		t, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Header{}, 0, errHeaderDecode
		}
		off += n
		h.SelfTimeMs = t
	case HeaderRetransmit:
		orig, n, err := codec.ReadVarUint(b[off:])
		if err != nil {
			return Header{}, 0, errHeaderDecode
		}
		off += n
		h.OriginalFrameID = orig
	default:
		return Header{}, 0, errHeaderDecode
	}
	return h, off, nil
}

// NewAckHeader builds an Ack header confirming frameIDs relative to
// start (start itself plus any of start+1..start+AckCapacity present in
// frameIDs). frameIDs outside that window are skipped here
// (reliable.AckBuilder only passes ids inside the window).
func NewAckHeader(start uint64, frameIDs []uint64) Header {
	h := Header{Kind: HeaderAck, AckStartFrameID: start}
	for _, id := range frameIDs {
		if id <= start {
			continue
		}
		offset := id - start - 1
		if offset >= AckCapacity {
			continue
		}
		byteOff := offset / 8
		bitOff := offset % 8
		h.AckBits[byteOff] |= 1 << bitOff
	}
	return h
}

// Frames returns every frame id acknowledged by h: start_frame_id plus
// each set bit, in ascending order.
func (h Header) Frames() []uint64 {
	if h.Kind != HeaderAck {
		return nil
	}
	result := []uint64{h.AckStartFrameID}
	for i := 0; i < AckCapacity; i++ {
		byteOff := i / 8
		bitOff := uint(i % 8)
		if h.AckBits[byteOff]&(1<<bitOff) != 0 {
			result = append(result, h.AckStartFrameID+uint64(i)+1)
		}
	}
	return result
}
