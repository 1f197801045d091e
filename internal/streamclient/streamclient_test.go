package streamclient

import (
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/xrrelay/xrrelay/internal/glscope"
	"github.com/xrrelay/xrrelay/internal/rtpstamp"
	"github.com/xrrelay/xrrelay/internal/wire"
)

type fakeDecoder struct {
	mu       sync.Mutex
	next     Texture
	released []Texture
	fail     bool
	noOutput bool
}

func (d *fakeDecoder) Decode(accessUnit []byte) (Texture, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return 0, false, errDecodeFailed
	}
	if d.noOutput {
		return 0, false, nil
	}
	d.next++
	return d.next, true, nil
}

func (d *fakeDecoder) Release(tex Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = append(d.released, tex)
}

func (d *fakeDecoder) Close() error { return nil }

var errDecodeFailed = fakeErr("decode failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func markerPacketWithMeta(t *testing.T, extID uint8, seq int64) *rtp.Packet {
	t.Helper()
	s := rtpstamp.New(extID)
	if err := s.SetDownMessage(wire.DownMessage{Meta: wire.FrameMeta{FrameSequenceID: seq}}); err != nil {
		t.Fatalf("SetDownMessage: %v", err)
	}
	pkt := &rtp.Packet{Header: rtp.Header{Marker: true}}
	s.Stamp(pkt)
	return pkt
}

func TestHandleAccessUnitPairsMetaFromMarkerPacket(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)

	pkt := markerPacketWithMeta(t, 1, 42)
	c.HandleAccessUnit([]byte{0, 0, 0, 1, 0x65}, pkt)

	sample, ok := c.TryPullSample()
	if !ok {
		t.Fatalf("expected a ready sample")
	}
	if !sample.HasMeta || sample.Meta.FrameSequenceID != 42 {
		t.Fatalf("unexpected sample meta: %+v", sample)
	}
}

func TestHandleAccessUnitWithoutExtensionYieldsUnsetMeta(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)

	pkt := &rtp.Packet{Header: rtp.Header{Marker: true}}
	c.HandleAccessUnit([]byte{0, 0, 0, 1, 0x65}, pkt)

	sample, ok := c.TryPullSample()
	if !ok {
		t.Fatalf("expected a ready sample")
	}
	if sample.HasMeta {
		t.Fatalf("expected no meta when extension absent")
	}
}

func TestUnconsumedSampleIsDroppedNotQueued(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)

	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})
	c.HandleAccessUnit([]byte{2}, &rtp.Packet{Header: rtp.Header{Marker: true}})

	decoder.mu.Lock()
	released := len(decoder.released)
	decoder.mu.Unlock()
	if released != 1 {
		t.Fatalf("expected the first unconsumed sample's texture to be released, got %d releases", released)
	}

	sample, ok := c.TryPullSample()
	if !ok {
		t.Fatalf("expected the second sample to still be ready")
	}
	if sample.Texture != 2 {
		t.Fatalf("expected texture 2 to survive, got %d", sample.Texture)
	}
}

func TestTryPullSampleAutoReleasesPreviouslyCheckedOut(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)

	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})
	first, ok := c.TryPullSample()
	if !ok {
		t.Fatalf("expected first sample")
	}

	// No release yet; a second sample arrives and is pulled without the
	// caller ever releasing `first`.
	c.HandleAccessUnit([]byte{2}, &rtp.Packet{Header: rtp.Header{Marker: true}})
	second, ok := c.TryPullSample()
	if !ok {
		t.Fatalf("expected second sample")
	}

	decoder.mu.Lock()
	defer decoder.mu.Unlock()
	found := false
	for _, tex := range decoder.released {
		if tex == first.Texture {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected previously checked-out sample %v to be auto-released, released=%v", first.Texture, decoder.released)
	}
	if second.Texture == first.Texture {
		t.Fatalf("expected a distinct texture for the second sample")
	}
}

func TestReleaseSampleClearsCheckout(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)

	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})
	sample, _ := c.TryPullSample()
	c.ReleaseSample(sample)

	decoder.mu.Lock()
	defer decoder.mu.Unlock()
	if len(decoder.released) != 1 || decoder.released[0] != sample.Texture {
		t.Fatalf("expected explicit release to reach the decoder, got %v", decoder.released)
	}
}

func TestStopIsIdempotentAndDrainsReadySample(t *testing.T) {
	decoder := &fakeDecoder{}
	c := New(decoder, glscope.New(), 1)
	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if _, ok := c.TryPullSample(); ok {
		t.Fatalf("expected no sample after Stop drained the slot")
	}
}

func TestDecodeErrorDoesNotPublishSample(t *testing.T) {
	decoder := &fakeDecoder{fail: true}
	c := New(decoder, glscope.New(), 1)
	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})

	if _, ok := c.TryPullSample(); ok {
		t.Fatalf("expected no sample after a decode error")
	}
}

func TestNoOutputDoesNotPublishSample(t *testing.T) {
	decoder := &fakeDecoder{noOutput: true}
	c := New(decoder, glscope.New(), 1)
	c.HandleAccessUnit([]byte{1}, &rtp.Packet{Header: rtp.Header{Marker: true}})

	if _, ok := c.TryPullSample(); ok {
		t.Fatalf("expected no sample when decoder produced no output yet")
	}
}
