// Package streamclient implements the stream client (C5, §4.5): the
// client-side receive pipeline that depayloads RTP, decodes access units,
// lifts each AU's FrameMeta extension, and hands the render loop a
// one-deep queue of ready Samples — "drop frames, never queue", grounded
// on the framebus package's DropOld philosophy.
package streamclient

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/xrrelay/xrrelay/internal/glscope"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/rtpstamp"
	"github.com/xrrelay/xrrelay/internal/utils"
	"github.com/xrrelay/xrrelay/internal/wire"
)

// Sample pairs one decoded access unit's texture with the FrameMeta lifted
// from its RTP extension (§4.5 pairing rule, §5 Sample semantics).
type Sample struct {
	Texture            Texture
	Meta               wire.FrameMeta
	HasMeta            bool
	DecodeCompleteTime time.Time
}

// StreamClient owns the receive pipeline and the at-most-one-ready Sample
// slot the render loop polls.
type StreamClient struct {
	decoder     Decoder
	scope       glscope.Scope
	extensionID uint8

	ready atomic.Pointer[Sample]

	checkoutMu  sync.Mutex
	checkedOut  *Sample
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// New builds a StreamClient around decoder, reading the FrameMeta
// extension at extensionID. scope is the shared EGL-equivalent context
// (§5) — the same instance the render loop composites under — so
// HandleAccessUnit's decode/texture-upload and the render loop's composite
// never run concurrently.
func New(decoder Decoder, scope glscope.Scope, extensionID uint8) *StreamClient {
	return &StreamClient{
		decoder:     decoder,
		scope:       scope,
		extensionID: extensionID,
		stopCh:      make(chan struct{}),
	}
}

// SpawnThread runs the receive pipeline's main loop on a dedicated
// goroutine, reading RTP packets off track until it ends or Stop is called
// (§4.5 spawn_thread).
func (c *StreamClient) SpawnThread(track *webrtc.TrackRemote) {
	utils.GoSafe("streamclient-receive", func() {
		c.receiveLoop(track)
	})
}

func (c *StreamClient) receiveLoop(track *webrtc.TrackRemote) {
	depacketizer := &codecs.H264Packet{}
	var accessUnit []byte
	var lastPacket *rtp.Packet

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			logx.Info("streamclient: receive loop ending: %v", err)
			return
		}

		nal, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil {
			logx.Error("streamclient: depacketize error: %v", err)
			continue
		}
		accessUnit = append(accessUnit, nal...)
		lastPacket = pkt

		if !pkt.Header.Marker {
			continue
		}

		c.HandleAccessUnit(accessUnit, lastPacket)
		accessUnit = nil
		lastPacket = nil
	}
}

// HandleAccessUnit pairs one reassembled access unit with the FrameMeta
// lifted from markerPacket (the AU's last RTP packet) and decodes it,
// publishing a Sample if decoding produced output. Exposed as a public
// entry point (rather than folded entirely into the receive loop) so
// alternate transports — a recorded fixture replay, for instance — can
// drive the same pairing and decode path.
func (c *StreamClient) HandleAccessUnit(accessUnit []byte, markerPacket *rtp.Packet) {
	var meta wire.FrameMeta
	hasMeta := false
	if dm, ok := rtpstamp.Lift(markerPacket, c.extensionID); ok {
		meta = dm.Meta
		hasMeta = true
	}

	c.EGLBeginPbuffer()
	tex, ok, err := c.decoder.Decode(accessUnit)
	c.EGLEnd()
	if err != nil {
		logx.Error("streamclient: decode error: %v", err)
		return
	}
	if !ok {
		return
	}

	sample := &Sample{
		Texture:            tex,
		Meta:               meta,
		HasMeta:            hasMeta,
		DecodeCompleteTime: time.Now(),
	}

	old := c.ready.Swap(sample)
	if old != nil {
		// A sample that was never checked out is replaced, never queued.
		c.decoder.Release(old.Texture)
		metrics.SamplesDropped.Add(1)
	}
	metrics.SamplesProduced.Add(1)
}

// TryPullSample returns the most recent unconsumed Sample, transferring a
// reference the caller must eventually pass to ReleaseSample (§4.5
// try_pull_sample). Non-blocking. At most one Sample may be checked out at
// a time; a second call before the matching release auto-releases the
// previously checked-out sample first, mirroring §7's "no decoder-owned
// texture is ever leaked or double-released" invariant.
func (c *StreamClient) TryPullSample() (Sample, bool) {
	next := c.ready.Swap(nil)
	if next == nil {
		return Sample{}, false
	}

	c.checkoutMu.Lock()
	prev := c.checkedOut
	c.checkedOut = next
	c.checkoutMu.Unlock()

	if prev != nil {
		c.decoder.Release(prev.Texture)
	}
	return *next, true
}

// ReleaseSample returns the decoder-owned texture behind s to the pool
// (§4.5 release_sample).
func (c *StreamClient) ReleaseSample(s Sample) {
	c.checkoutMu.Lock()
	if c.checkedOut != nil && c.checkedOut.Texture == s.Texture {
		c.checkedOut = nil
	}
	c.checkoutMu.Unlock()
	c.decoder.Release(s.Texture)
}

// EGLBeginPbuffer scopes the calling thread's access to the shared
// EGL-equivalent context (§4.5, §5).
func (c *StreamClient) EGLBeginPbuffer() {
	c.scope.Begin()
}

// EGLEnd releases the scope acquired by EGLBeginPbuffer.
func (c *StreamClient) EGLEnd() {
	c.scope.End()
}

// Stop ends the receive loop and releases any outstanding sample. Safe to
// call more than once; subsequent TryPullSample calls return none without
// panicking (§8 S4).
func (c *StreamClient) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	if last := c.ready.Swap(nil); last != nil {
		c.decoder.Release(last.Texture)
	}

	if err := c.decoder.Close(); err != nil {
		return fmt.Errorf("streamclient: close decoder: %w", err)
	}
	return nil
}
