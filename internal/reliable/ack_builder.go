package reliable

import "github.com/avkviring/cheetah-relay/internal/frame"

// AckBuilder coalesces recently received frame ids into as few Ack
// headers as possible (the "the ack builder coalesces recent
// receives into as few headers as possible").
type AckBuilder struct {
	pending []uint64
}

// OnFrameReceived records that frameID was accepted and should be
// acknowledged on the next outbound frame.
func (b *AckBuilder) OnFrameReceived(frameID uint64) {
	b.pending = append(b.pending, frameID)
}

// HasPending reports whether there is anything left to acknowledge.
func (b *AckBuilder) HasPending() bool {
	return len(b.pending) > 0
}

// BuildHeaders drains the pending set into the minimum number of Ack
// headers, each covering a start id plus up to AckCapacity following
// ids.
func (b *AckBuilder) BuildHeaders() []frame.Header {
	if len(b.pending) == 0 {
		return nil
	}
	ids := append([]uint64(nil), b.pending...)
	b.pending = nil
	sortUint64s(ids)

	var headers []frame.Header
	i := 0
	for i < len(ids) {
		start := ids[i]
		j := i + 1
		var group []uint64
		for j < len(ids) && ids[j]-start <= frame.AckCapacity {
			group = append(group, ids[j])
			j++
		}
		headers = append(headers, frame.NewAckHeader(start, group))
		i = j
	}
	return headers
}

func sortUint64s(ids []uint64) {
	// Insertion sort: ack batches are small (bounded by frames received
	// in one tick), so this stays cheap and allocation-free.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
