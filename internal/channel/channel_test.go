package channel

import (
	"errors"
	"testing"
)

// TestSequencedOutOfOrderDelivery verifies that out-of-order wire
// arrival order 2,1,3 on group 7 must be released to the application as
// 1,2,3.
func TestSequencedOutOfOrderDelivery(t *testing.T) {
	in := NewInCollector[string]()
	ch := Channel{Discipline: ReliableSequence, Group: 7}

	var delivered []string

	got, err := in.Accept(ch, 1, "two")
	if err != nil {
		t.Fatal(err)
	}
	delivered = append(delivered, got...)
	if len(got) != 0 {
		t.Fatalf("seq 1 arrived before seq 0: should buffer, got %v", got)
	}

	got, err = in.Accept(ch, 0, "one")
	if err != nil {
		t.Fatal(err)
	}
	delivered = append(delivered, got...)

	got, err = in.Accept(ch, 2, "three")
	if err != nil {
		t.Fatal(err)
	}
	delivered = append(delivered, got...)

	want := []string{"one", "two", "three"}
	if len(delivered) != len(want) {
		t.Fatalf("delivered = %v, want %v", delivered, want)
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, delivered[i], want[i])
		}
	}
}

func TestOrderedDiscardsOlder(t *testing.T) {
	in := NewInCollector[string]()
	ch := Channel{Discipline: ReliableOrdered, Group: 1}

	got, _ := in.Accept(ch, 5, "five")
	if len(got) != 1 {
		t.Fatalf("expected seq 5 delivered, got %v", got)
	}
	got, _ = in.Accept(ch, 3, "three-late")
	if len(got) != 0 {
		t.Errorf("older-by-group command should be discarded, got %v", got)
	}
	got, _ = in.Accept(ch, 6, "six")
	if len(got) != 1 {
		t.Errorf("expected seq 6 delivered, got %v", got)
	}
}

func TestUnorderedAlwaysDelivers(t *testing.T) {
	in := NewInCollector[int]()
	ch := Channel{Discipline: ReliableUnordered}
	for i := 0; i < 3; i++ {
		got, err := in.Accept(ch, 0, i)
		if err != nil || len(got) != 1 {
			t.Fatalf("Accept(%d) = %v, %v", i, got, err)
		}
	}
}

func TestSequencedReorderBufferCap(t *testing.T) {
	in := NewInCollector[int]()
	ch := Channel{Discipline: ReliableSequence, Group: 0}

	// Never deliver seq 0, so every later item piles up in the reorder
	// buffer until it overflows.
	var lastErr error
	for seq := uint32(1); seq <= MaxReorderPerGroup+1; seq++ {
		_, err := in.Accept(ch, seq, int(seq))
		if err != nil {
			lastErr = err
		}
	}
	if !errors.Is(lastErr, ErrReorderBufferFull) {
		t.Fatalf("expected ErrReorderBufferFull, got %v", lastErr)
	}
}

func TestOutCollectorAssignsPerGroupSequences(t *testing.T) {
	out := NewOutCollector()
	chA := Channel{Discipline: ReliableSequence, Group: 1}
	chB := Channel{Discipline: ReliableSequence, Group: 2}

	if s := out.NextSequence(chA); s != 0 {
		t.Errorf("first seq on group 1 = %d, want 0", s)
	}
	if s := out.NextSequence(chA); s != 1 {
		t.Errorf("second seq on group 1 = %d, want 1", s)
	}
	if s := out.NextSequence(chB); s != 0 {
		t.Errorf("first seq on group 2 = %d, want 0", s)
	}
}

func TestOutCollectorUngroupedAlwaysZero(t *testing.T) {
	out := NewOutCollector()
	ch := Channel{Discipline: ReliableUnordered}
	if s := out.NextSequence(ch); s != 0 {
		t.Errorf("ungrouped sequence = %d, want 0", s)
	}
	if s := out.NextSequence(ch); s != 0 {
		t.Errorf("ungrouped sequence = %d, want 0", s)
	}
}
