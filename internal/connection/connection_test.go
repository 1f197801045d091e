package connection

import (
	"sync"
	"testing"

	"github.com/xrrelay/xrrelay/internal/wire"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeSender) SendUpMessage(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSender) last(t *testing.T) wire.UpMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatalf("no payloads sent")
	}
	msg, err := wire.DecodeUp(f.payloads[len(f.payloads)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestSendTrackingAssignsIncrementingIDs(t *testing.T) {
	sender := &fakeSender{}
	conn := New(sender)

	if err := conn.SendTracking(wire.TrackingReport{Pose: xrtypes.Pose{Orientation: xrtypes.IdentityQuat}, PredictedDisplayTime: 100}); err != nil {
		t.Fatalf("SendTracking: %v", err)
	}
	if err := conn.SendTracking(wire.TrackingReport{PredictedDisplayTime: 200}); err != nil {
		t.Fatalf("SendTracking: %v", err)
	}

	if sender.count() != 2 {
		t.Fatalf("expected 2 payloads, got %d", sender.count())
	}
	first, err := wire.DecodeUp(sender.payloads[0])
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	second := sender.last(t)
	if first.UpMessageID != 1 || second.UpMessageID != 2 {
		t.Fatalf("expected ids 1,2 got %d,%d", first.UpMessageID, second.UpMessageID)
	}
	if second.Tracking.PredictedDisplayTime != 200 {
		t.Fatalf("unexpected predicted display time: %d", second.Tracking.PredictedDisplayTime)
	}
}

func TestHeartbeatCarriesNeitherVariant(t *testing.T) {
	sender := &fakeSender{}
	conn := New(sender)

	if err := conn.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	msg := sender.last(t)
	if msg.Tracking != nil || msg.Frame != nil {
		t.Fatalf("expected a bare heartbeat, got %+v", msg)
	}
}

func TestRefreshRateHintUnsetUntilRecorded(t *testing.T) {
	conn := New(&fakeSender{})

	if _, ok := conn.RefreshRateHint(); ok {
		t.Fatalf("expected no hint before SetRefreshRateHint")
	}
	conn.SetRefreshRateHint(90)
	hz, ok := conn.RefreshRateHint()
	if !ok || hz != 90 {
		t.Fatalf("got hz=%v ok=%v", hz, ok)
	}
}

func TestSendFrameTiming(t *testing.T) {
	sender := &fakeSender{}
	conn := New(sender)

	if err := conn.SendFrameTiming(wire.FrameTimingReport{FrameSequenceID: 42, DisplayTime: 500}); err != nil {
		t.Fatalf("SendFrameTiming: %v", err)
	}

	msg := sender.last(t)
	if msg.Frame == nil || msg.Frame.FrameSequenceID != 42 {
		t.Fatalf("unexpected frame report: %+v", msg.Frame)
	}
}
