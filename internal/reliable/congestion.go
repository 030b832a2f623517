package reliable

import "time"

// RebalancePeriod is the interval between congestion rebalances.
const RebalancePeriod = 500 * time.Millisecond

// CongestionControl periodically recomputes a peer's ack-wait duration
// from smoothed RTT and the retransmit redundancy ratio.
type CongestionControl struct {
	lastBalanced time.Time
	hasBalanced  bool
}

// Rebalance recomputes the retransmitter's ack-wait duration if
// RebalancePeriod has elapsed since the last rebalance. It is a no-op
// otherwise, and a no-op if no RTT sample is available yet.
func (c *CongestionControl) Rebalance(now time.Time, rtt *RTTHandler, retransmitter *Retransmitter) {
	if !c.canRebalance(now) {
		return
	}
	avgRTT, ok := rtt.RTT()
	if !ok {
		return
	}
	k := coefficientFor(redundancyRatio(retransmitter))
	retransmitter.SetAckWaitDuration(time.Duration(float64(avgRTT) * k))
}

func (c *CongestionControl) canRebalance(now time.Time) bool {
	if !c.hasBalanced {
		c.lastBalanced = now
		c.hasBalanced = true
		return false
	}
	if now.Sub(c.lastBalanced) < RebalancePeriod {
		return false
	}
	c.lastBalanced = now
	return true
}

func redundancyRatio(r *Retransmitter) float64 {
	pct, ok := r.GetRedundantFramesPercent()
	if !ok {
		return 0
	}
	return pct
}

// coefficientFor maps a redundant-frame ratio to an ack-wait multiplier.
func coefficientFor(redundancy float64) float64 {
	switch {
	case redundancy <= 0.10:
		return 1.1
	case redundancy <= 0.20:
		return 1.5
	case redundancy <= 0.30:
		return 2.0
	case redundancy <= 0.80:
		return 2.5
	default:
		return 3.0
	}
}
