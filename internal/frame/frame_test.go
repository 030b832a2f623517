package frame

import (
	"testing"

	"github.com/avkviring/cheetah-relay/internal/codec"
)

func testCipher(t *testing.T) *codec.Cipher {
	t.Helper()
	var key [codec.KeySize]byte
	for i := range key {
		key[i] = byte(i * 3)
	}
	c, err := codec.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	c := testCipher(t)

	f := New(42)
	f.AddHeader(Header{Kind: HeaderMemberAndRoomID, MemberID: 1, RoomID: 7})
	f.AddHeader(Header{Kind: HeaderHello})
	f.Body = []byte("set_long object=1 field=10 value=100")

	wire, err := f.Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(42, wire, c)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if string(decoded.Body) != string(f.Body) {
		t.Errorf("Body = %q, want %q", decoded.Body, f.Body)
	}
	mr, ok := decoded.First(HeaderMemberAndRoomID)
	if !ok || mr.MemberID != 1 || mr.RoomID != 7 {
		t.Errorf("MemberAndRoomId header = %+v, ok=%v", mr, ok)
	}
	if _, ok := decoded.First(HeaderHello); !ok {
		t.Error("expected Hello header to survive round trip")
	}
}

func TestFrameDecodeWrongFrameIDFails(t *testing.T) {
	c := testCipher(t)
	f := New(1)
	f.AddHeader(Header{Kind: HeaderMemberAndRoomID, MemberID: 1, RoomID: 1})
	f.Body = []byte("payload")

	wire, err := f.Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(2, wire, c); err != codec.ErrDecrypt {
		t.Errorf("Decode with mismatched frame id = %v, want ErrDecrypt", err)
	}
}

func TestPeekRoutingWithoutDecrypting(t *testing.T) {
	c := testCipher(t)
	f := New(5)
	f.AddHeader(Header{Kind: HeaderMemberAndRoomID, MemberID: 99, RoomID: 123})
	f.Body = []byte("body")

	wire, err := f.Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	memberID, roomID, ok := PeekRouting(wire)
	if !ok {
		t.Fatal("PeekRouting failed")
	}
	if memberID != 99 || roomID != 123 {
		t.Errorf("PeekRouting = (%d, %d), want (99, 123)", memberID, roomID)
	}
}

func TestAckHeaderStoreAllFrames(t *testing.T) {
	start := uint64(100)
	set := []uint64{101, 102, 105, 164}
	h := NewAckHeader(start, set)
	got := h.Frames()

	want := append([]uint64{start}, set...)
	if len(got) != len(want) {
		t.Fatalf("Frames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Frames()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAckHeaderIgnoresOutOfWindow(t *testing.T) {
	h := NewAckHeader(10, []uint64{10, 5, 11, 10 + AckCapacity + 1})
	got := h.Frames()
	if len(got) != 2 {
		t.Fatalf("Frames() = %v, want [10, 11]", got)
	}
	if got[0] != 10 || got[1] != 11 {
		t.Errorf("Frames() = %v, want [10, 11]", got)
	}
}
