// Package frame implements the wire framing: a varuint header count, a
// sequence of tagged headers, and an opaque (ciphertext) body.
package frame

import (
	"errors"

	"github.com/avkviring/cheetah-relay/internal/codec"
)

const (
	// FrameBodyCapacity is the target max body size, chosen to keep an
	// encoded frame under a typical path MTU after IP/UDP overhead.
	FrameBodyCapacity = 1200

	// MaxFrameSize is the hard ceiling on an encoded frame, headers
	// included.
	MaxFrameSize = 1472
)

var (
	ErrFrameTooLarge = errors.New("frame: encoded frame exceeds MaxFrameSize")
	errDecode        = errors.New("frame: decode error")
)

// Frame is one UDP datagram's worth of protocol state: a monotonic id,
// a set of headers, and an (encrypted) body.
type Frame struct {
	FrameID uint64
	Headers []Header
	Body    []byte
}

// New creates an empty frame with the given id.
func New(frameID uint64) *Frame {
	return &Frame{FrameID: frameID}
}

// AddHeader appends h to the frame.
func (f *Frame) AddHeader(h Header) {
	f.Headers = append(f.Headers, h)
}

// First returns the first header of the given kind, if any.
func (f *Frame) First(kind HeaderKind) (Header, bool) {
	for _, h := range f.Headers {
		if h.Kind == kind {
			return h, true
		}
	}
	return Header{}, false
}

// All returns every header of the given kind.
func (f *Frame) All(kind HeaderKind) []Header {
	var out []Header
	for _, h := range f.Headers {
		if h.Kind == kind {
			out = append(out, h)
		}
	}
	return out
}

// encodeHeaders writes the frame's header block (count + entries). This
// block doubles as AEAD associated data, so it never includes the body.
func (f *Frame) encodeHeaders() []byte {
	var buf []byte
	codec.WriteVarUint(&buf, uint64(len(f.Headers)))
	for _, h := range f.Headers {
		h.Encode(&buf)
	}
	return buf
}

// Encode serializes the frame to its wire form, encrypting the body with
// cipher keyed for the peer. headers + encrypted body must not exceed
// MaxFrameSize.
func (f *Frame) Encode(cipher *codec.Cipher) ([]byte, error) {
	headerBlock := f.encodeHeaders()
	ciphertext := cipher.Seal(f.FrameID, headerBlock, f.Body)

	out := make([]byte, 0, len(headerBlock)+len(ciphertext))
	out = append(out, headerBlock...)
	out = append(out, ciphertext...)
	if len(out) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}

// Decode parses a wire frame. frameID is the physical frame id taken
// from the datagram transport (not part of the wire payload itself —
// callers typically track it out of band, e.g. sequentially per peer);
// ordering callers that multiplex many peers on one socket should pass
// the id recovered from their own framing. For this protocol the frame
// id is supplied by the caller because headers (not the body) carry
// routing information (MemberAndRoomId) needed before the id can even be
// associated with a peer's cipher.
func Decode(frameID uint64, wire []byte, cipher *codec.Cipher) (*Frame, error) {
	count, off, err := codec.ReadVarUint(wire)
	if err != nil {
		return nil, errDecode
	}
	if count > 64 {
		return nil, errDecode
	}
	headers := make([]Header, 0, count)
	for i := uint64(0); i < count; i++ {
		h, n, err := DecodeHeader(wire[off:])
		if err != nil {
			return nil, errDecode
		}
		headers = append(headers, h)
		off += n
	}
	headerBlock := wire[:off]
	ciphertext := wire[off:]

	plaintext, err := cipher.Open(frameID, headerBlock, ciphertext)
	if err != nil {
		return nil, err
	}

	return &Frame{FrameID: frameID, Headers: headers, Body: plaintext}, nil
}

// PeekRouting extracts the MemberAndRoomId header from a still-encrypted
// wire frame without decrypting the body, since routing must happen
// before the room (and its member key) is known.
func PeekRouting(wire []byte) (memberID uint16, roomID uint64, ok bool) {
	count, off, err := codec.ReadVarUint(wire)
	if err != nil {
		return 0, 0, false
	}
	for i := uint64(0); i < count; i++ {
		h, n, err := DecodeHeader(wire[off:])
		if err != nil {
			return 0, 0, false
		}
		if h.Kind == HeaderMemberAndRoomID {
			return h.MemberID, h.RoomID, true
		}
		off += n
	}
	return 0, 0, false
}
