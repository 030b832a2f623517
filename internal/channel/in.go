package channel

import "errors"

// MaxReorderPerGroup bounds the number of out-of-order
// ReliableSequence items buffered per (sender, group), so a stuck
// sequence base cannot grow this buffer without bound.
const MaxReorderPerGroup = 256

// ErrReorderBufferFull is returned when a sender's sequence reorder
// buffer for a group would exceed MaxReorderPerGroup; the caller must
// disconnect that sender.
var ErrReorderBufferFull = errors.New("channel: reorder buffer full")

// InCollector holds one sender's per-group ordering state on the
// receive side: discard-if-older for Ordered channels, and
// a reorder buffer releasing contiguous runs for Sequence channels.
type InCollector[T any] struct {
	lastOrderedSeq   map[uint8]uint32
	haveLastOrdered  map[uint8]bool
	lastDeliveredSeq map[uint8]uint32
	reorder          map[uint8]map[uint32]T
}

// NewInCollector builds an empty collector.
func NewInCollector[T any]() *InCollector[T] {
	return &InCollector[T]{
		lastOrderedSeq:   make(map[uint8]uint32),
		haveLastOrdered:  make(map[uint8]bool),
		lastDeliveredSeq: make(map[uint8]uint32),
		reorder:          make(map[uint8]map[uint32]T),
	}
}

// Accept applies ch's ordering discipline to one incoming item tagged
// with sequence seq (meaningless for ungrouped disciplines), returning
// the items now ready for delivery to the application, in order.
func (c *InCollector[T]) Accept(ch Channel, seq uint32, item T) ([]T, error) {
	switch ch.Discipline {
	case ReliableUnordered, UnreliableUnordered:
		return []T{item}, nil

	case ReliableOrdered, UnreliableOrdered:
		if c.haveLastOrdered[ch.Group] && seq <= c.lastOrderedSeq[ch.Group] {
			return nil, nil // older-by-group: silently discarded, not an error
		}
		c.lastOrderedSeq[ch.Group] = seq
		c.haveLastOrdered[ch.Group] = true
		return []T{item}, nil

	case ReliableSequence:
		return c.acceptSequenced(ch.Group, seq, item)

	default:
		return nil, nil
	}
}

func (c *InCollector[T]) acceptSequenced(group uint8, seq uint32, item T) ([]T, error) {
	next := c.lastDeliveredSeq[group]
	if seq < next {
		return nil, nil // already delivered
	}
	if seq == next {
		delivered := []T{item}
		next++
		bucket := c.reorder[group]
		for {
			v, ok := bucket[next]
			if !ok {
				break
			}
			delivered = append(delivered, v)
			delete(bucket, next)
			next++
		}
		c.lastDeliveredSeq[group] = next
		return delivered, nil
	}

	// Out of order: buffer it.
	bucket, ok := c.reorder[group]
	if !ok {
		bucket = make(map[uint32]T)
		c.reorder[group] = bucket
	}
	if len(bucket) >= MaxReorderPerGroup {
		return nil, ErrReorderBufferFull
	}
	bucket[seq] = item
	return nil, nil
}
