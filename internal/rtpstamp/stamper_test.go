package rtpstamp

import (
	"strings"
	"testing"

	"github.com/pion/rtp"
	"github.com/xrrelay/xrrelay/internal/wire"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

func packet(seq uint16, marker bool) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Marker: marker},
		Payload: []byte{0xAA},
	}
}

// TestStampOnMarkerOnly reproduces S3: 3 AUs, marker pattern
// [false,false,true, false,true, true] -> extensions on packets 3,5,6 only.
func TestStampOnMarkerOnly(t *testing.T) {
	s := New(1)
	if err := s.SetDownMessage(wire.DownMessage{Meta: wire.FrameMeta{FrameSequenceID: 1}}); err != nil {
		t.Fatalf("SetDownMessage: %v", err)
	}

	markers := []bool{false, false, true, false, true, true}
	var stampedSeqs []uint16
	for i, m := range markers {
		pkt := packet(uint16(i+1), m)
		s.Stamp(pkt)
		if len(pkt.Header.GetExtension(1)) > 0 {
			stampedSeqs = append(stampedSeqs, pkt.SequenceNumber)
		}
	}

	want := []uint16{3, 5, 6}
	if len(stampedSeqs) != len(want) {
		t.Fatalf("got %d stamped packets, want %d: %v", len(stampedSeqs), len(want), stampedSeqs)
	}
	for i, seq := range want {
		if stampedSeqs[i] != seq {
			t.Fatalf("stamped packet %d: got seq %d want %d", i, stampedSeqs[i], seq)
		}
	}
}

// TestOversizeToleratesAndPassesThrough reproduces §8 property 5.
func TestOversizeToleratesAndPassesThrough(t *testing.T) {
	s := New(1)
	// Force an oversize payload by publishing it directly, bypassing the
	// normal encode path which would never produce one this large.
	big := make([]byte, MaxExtensionSize+10)
	s.current.Store(&big)

	pkt := packet(1, true)
	s.Stamp(pkt)

	if len(pkt.Header.GetExtension(1)) != 0 {
		t.Fatalf("expected packet to pass through unstamped when oversize")
	}
}

func TestLiftRoundTrip(t *testing.T) {
	s := New(2)
	dm := wire.DownMessage{Meta: wire.FrameMeta{
		FrameSequenceID: 77,
		Poses:           [2]xrtypes.Pose{{Orientation: xrtypes.IdentityQuat}, {Orientation: xrtypes.IdentityQuat}},
	}}
	if err := s.SetDownMessage(dm); err != nil {
		t.Fatalf("SetDownMessage: %v", err)
	}

	pkt := packet(1, true)
	s.Stamp(pkt)

	got, ok := Lift(pkt, 2)
	if !ok {
		t.Fatalf("expected to lift a DownMessage from the stamped packet")
	}
	if got.Meta.FrameSequenceID != 77 {
		t.Fatalf("seq mismatch: got %d", got.Meta.FrameSequenceID)
	}
}

func TestNewPanicsOnOutOfRangeID(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic for out-of-range extension id")
		}
		if !strings.Contains(r.(string), "[1,15]") {
			t.Fatalf("unexpected panic message: %v", r)
		}
	}()
	New(16)
}
