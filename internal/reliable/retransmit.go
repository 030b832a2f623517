package reliable

import (
	"time"
)

// DisconnectTimeout is the default duration a reliable frame may remain
// unacknowledged before the peer is declared disconnected.
const DisconnectTimeout = 180 * time.Second

// pendingFrame tracks one outstanding reliable send.
type pendingFrame struct {
	sentAt        time.Time
	lastRetryAt   time.Time
	retransmitted bool
}

// Retransmitter tracks frames sent on reliable channels until they are
// acknowledged, resending them with a Retransmit header once
// ackWaitDuration has elapsed.
type Retransmitter struct {
	pending         map[uint64]*pendingFrame
	ackWaitDuration time.Duration

	sentInWindow         int
	retransmittedInWindow int
}

// NewRetransmitter builds a Retransmitter with a starting ack-wait
// duration; congestion control adjusts it afterwards.
func NewRetransmitter(initialAckWait time.Duration) *Retransmitter {
	return &Retransmitter{
		pending:         make(map[uint64]*pendingFrame),
		ackWaitDuration: initialAckWait,
	}
}

// OnSend records that originalFrameID was just sent on a reliable
// channel.
func (r *Retransmitter) OnSend(originalFrameID uint64, now time.Time) {
	r.pending[originalFrameID] = &pendingFrame{sentAt: now, lastRetryAt: now}
	r.sentInWindow++
}

// OnAck marks originalFrameID as acknowledged. Only that one id is
// cleared; other pending ids are not affected.
func (r *Retransmitter) OnAck(originalFrameID uint64) {
	delete(r.pending, originalFrameID)
}

// SetAckWaitDuration updates the retransmit timer, called by
// CongestionControl.Rebalance.
func (r *Retransmitter) SetAckWaitDuration(d time.Duration) {
	r.ackWaitDuration = d
}

// AckWaitDuration returns the current retransmit timer value.
func (r *Retransmitter) AckWaitDuration() time.Duration {
	return r.ackWaitDuration
}

// DueForRetransmit returns the original frame ids whose ack wait has
// elapsed and marks them retransmitted as of now, so a Retransmit
// header can be built and a new physical frame sent for each.
func (r *Retransmitter) DueForRetransmit(now time.Time) []uint64 {
	var due []uint64
	for id, pf := range r.pending {
		if now.Sub(pf.lastRetryAt) >= r.ackWaitDuration {
			pf.lastRetryAt = now
			pf.retransmitted = true
			r.retransmittedInWindow++
			due = append(due, id)
		}
	}
	return due
}

// Exhausted returns the original frame ids that have been outstanding
// for at least DisconnectTimeout; the caller must disconnect the peer.
func (r *Retransmitter) Exhausted(now time.Time, timeout time.Duration) []uint64 {
	var out []uint64
	for id, pf := range r.pending {
		if now.Sub(pf.sentAt) >= timeout {
			out = append(out, id)
		}
	}
	return out
}

// GetRedundantFramesPercent returns the fraction of frames sent in the
// current window that required at least one retransmission, or false if
// nothing has been sent yet. The window resets after being read so each
// CongestionControl.Rebalance call observes a fresh measurement period.
func (r *Retransmitter) GetRedundantFramesPercent() (float64, bool) {
	if r.sentInWindow == 0 {
		return 0, false
	}
	pct := float64(r.retransmittedInWindow) / float64(r.sentInWindow)
	r.sentInWindow = 0
	r.retransmittedInWindow = 0
	return pct, true
}

// Pending reports how many reliable frames are still unacknowledged.
func (r *Retransmitter) Pending() int {
	return len(r.pending)
}
