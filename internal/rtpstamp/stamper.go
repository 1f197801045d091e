// Package rtpstamp implements the RTP header extension stamper (§4.2): a
// strategy attached to the payloader's outbound packet path that appends the
// current DownMessage to the last packet of every Access Unit.
//
// The GStreamer original attaches this as a buffer probe on the payloader's
// src pad. pion/webrtc has no pad-probe concept, so the same strategy is
// expressed as a plain function applied to each *rtp.Packet just before it
// is written to a track — the "probe" is just the call site in wrtcpeer.
package rtpstamp

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/wire"
)

// MaxExtensionSize is the two-byte RTP header extension payload ceiling (§6).
const MaxExtensionSize = 255

// MinExtensionID and MaxExtensionID bound the locally-assigned element id
// the server picks for the metadata extension (§6: "a fixed value in [1,15]").
const (
	MinExtensionID = 1
	MaxExtensionID = 15
)

// Stamper publishes a DownMessage snapshot and stamps it onto marker-bit
// packets. The published bytes are swapped with a single atomic pointer
// store; a reader that already loaded the old slice keeps it alive for as
// long as it holds the reference (ordinary Go GC semantics satisfy §5's
// "old buffers kept live until their last probe read completes" without any
// extra bookkeeping), grounded on the framebus "swap, never lock the hot
// path" pattern.
type Stamper struct {
	extensionID uint8
	current     atomic.Pointer[[]byte]
}

// New creates a Stamper that will stamp packets with extensionID, which must
// be in [MinExtensionID, MaxExtensionID].
func New(extensionID uint8) *Stamper {
	if extensionID < MinExtensionID || extensionID > MaxExtensionID {
		panic("rtpstamp: extension id out of [1,15] range")
	}
	s := &Stamper{extensionID: extensionID}
	empty := []byte{}
	s.current.Store(&empty)
	return s
}

// SetDownMessage encodes dm and publishes it for subsequent Stamp calls.
// Safe to call from any goroutine (§4.2 concurrency note); the probe may be
// reading concurrently on the streaming thread.
func (s *Stamper) SetDownMessage(dm wire.DownMessage) error {
	b, err := wire.EncodeDown(dm)
	if err != nil {
		return err
	}
	s.current.Store(&b)
	return nil
}

// Stamp appends the current DownMessage to pkt if pkt's marker bit is set
// and the encoded message fits in a two-byte extension. It never drops pkt:
// on oversize or a mapping failure it logs and lets the packet pass
// unstamped (§4.2 Failure, §8 property 5).
func (s *Stamper) Stamp(pkt *rtp.Packet) {
	if pkt == nil || !pkt.Header.Marker {
		return
	}

	payload := s.current.Load()
	if payload == nil || len(*payload) == 0 {
		return
	}
	if len(*payload) > MaxExtensionSize {
		logx.Error("rtpstamp: down message too large (%d > %d bytes), passing AU unstamped", len(*payload), MaxExtensionSize)
		metrics.FrameMetaOversize.Add(1)
		return
	}

	if err := pkt.Header.SetExtension(s.extensionID, *payload); err != nil {
		logx.Error("rtpstamp: set extension failed: %v", err)
		metrics.FrameMetaMapErr.Add(1)
		return
	}
	metrics.FrameMetaStamped.Add(1)
}

// Lift reads back the metadata element from a received packet, if present.
// Used client-side by streamclient when pairing a decoded Access Unit with
// its FrameMeta (§4.5).
func Lift(pkt *rtp.Packet, extensionID uint8) (wire.DownMessage, bool) {
	if pkt == nil {
		return wire.DownMessage{}, false
	}
	raw := pkt.Header.GetExtension(extensionID)
	if len(raw) == 0 {
		return wire.DownMessage{}, false
	}
	dm, err := wire.DecodeDown(raw)
	if err != nil {
		logx.Error("rtpstamp: failed to decode extension element: %v", err)
		return wire.DownMessage{}, false
	}
	return dm, true
}
