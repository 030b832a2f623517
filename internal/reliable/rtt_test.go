package reliable

import (
	"testing"
	"time"
)

func TestRTTHandlerRoundTrip(t *testing.T) {
	now := time.Now()
	a := NewRTTHandler(now)
	b := NewRTTHandler(now)

	// A builds a request and sends it to B.
	reqTime := a.BuildRequest(now)
	b.OnRequestReceived(reqTime)

	// B echoes the response back to A 100ms later.
	respTime, ok := b.PendingResponse()
	if !ok {
		t.Fatal("expected a pending response on B")
	}
	a.OnResponseReceived(respTime, now.Add(100*time.Millisecond))

	rtt, ok := a.RTT()
	if !ok {
		t.Fatal("expected A to have an RTT sample")
	}
	if rtt != 100*time.Millisecond {
		t.Errorf("RTT = %v, want 100ms", rtt)
	}
}

func TestRTTHandlerNoSampleInitially(t *testing.T) {
	h := NewRTTHandler(time.Now())
	if _, ok := h.RTT(); ok {
		t.Error("expected no RTT sample before any response")
	}
	if _, ok := h.PendingResponse(); ok {
		t.Error("expected no pending response before any request")
	}
}
