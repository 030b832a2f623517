package reliable

import "time"

// RTTHandler tracks one peer's round-trip time by piggy-backing request
// and response headers on outgoing frames (grounded in
// original_source's RoundTripTimeHandler).
type RTTHandler struct {
	startTime time.Time

	scheduledResponse   *uint64 // self_time_ms of a pending echo, if any
	smoothedRTT         time.Duration
	hasRTT              bool
}

// NewRTTHandler builds a handler anchored at now.
func NewRTTHandler(now time.Time) *RTTHandler {
	return &RTTHandler{startTime: now}
}

func (h *RTTHandler) elapsedMs(now time.Time) uint64 {
	return uint64(now.Sub(h.startTime).Milliseconds())
}

// OnRequestReceived records a RoundTripTimeRequest header from the peer,
// to be echoed back as a RoundTripTimeResponse on the next outbound
// frame.
func (h *RTTHandler) OnRequestReceived(selfTimeMs uint64) {
	v := selfTimeMs
	h.scheduledResponse = &v
}

// OnResponseReceived records our own RoundTripTimeResponse coming back
// from the peer, updating the smoothed RTT estimate.
func (h *RTTHandler) OnResponseReceived(selfTimeMs uint64, now time.Time) {
	current := h.elapsedMs(now)
	if current < selfTimeMs {
		return
	}
	sample := time.Duration(current-selfTimeMs) * time.Millisecond
	if !h.hasRTT {
		h.smoothedRTT = sample
		h.hasRTT = true
		return
	}
	// Exponential moving average: the new sample carries weight 1/4.
	h.smoothedRTT = (h.smoothedRTT*3 + sample) / 4
}

// BuildRequest returns the self_time_ms to stamp on an outbound
// RoundTripTimeRequest header.
func (h *RTTHandler) BuildRequest(now time.Time) uint64 {
	return h.elapsedMs(now)
}

// PendingResponse returns the self_time_ms to echo in a
// RoundTripTimeResponse header, clearing it, or ok=false if none is due.
func (h *RTTHandler) PendingResponse() (selfTimeMs uint64, ok bool) {
	if h.scheduledResponse == nil {
		return 0, false
	}
	v := *h.scheduledResponse
	h.scheduledResponse = nil
	return v, true
}

// RTT returns the current smoothed round-trip time, if any sample has
// been observed yet.
func (h *RTTHandler) RTT() (time.Duration, bool) {
	return h.smoothedRTT, h.hasRTT
}
