package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/xrrelay/xrrelay/internal/annexb"
	"github.com/xrrelay/xrrelay/internal/framesource"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/rtpstamp"
	"github.com/xrrelay/xrrelay/internal/wire"
	"github.com/xrrelay/xrrelay/internal/wrtcpeer"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// peerSession bundles the per-client state the render pump and the data
// channel's inbound pose reports both touch: the stamper and keyframe gate
// a Peer was built with, plus the most recently reported head pose to
// render against (§4.6 step 2's tracking report, consumed server-side).
type peerSession struct {
	peer       *wrtcpeer.Peer
	stamper    *rtpstamp.Stamper
	gate       *rtpstamp.KeyframeGate
	packetizer rtp.Packetizer
	source     framesource.Source

	lastPose atomic.Pointer[xrtypes.Pose]
	forceIDR atomic.Bool
}

// newPeerSession builds the session's gate and packetizer up front around
// the caller's stamper, so
// the KeyframeRequester closure handed to wrtcpeer.NewServerPeer can close
// over it before the Peer itself exists. Callers must set s.peer once the
// Peer is constructed, before calling run.
func newPeerSession(stamper *rtpstamp.Stamper, source framesource.Source, keyframeEvery int) *peerSession {
	s := &peerSession{
		stamper: stamper,
		source:  source,
		packetizer: rtp.NewPacketizer(
			1200, 96, uint32(time.Now().UnixNano()),
			&codecs.H264Payloader{}, rtp.NewRandomSequencer(), 90000,
		),
	}
	s.gate = rtpstamp.NewKeyframeGate(func() { s.forceIDR.Store(true) }, keyframeEvery)
	// A newly joined peer has no idea where the GOP currently stands, so the
	// gate starts in the waiting-for-IDR state rather than delivering
	// whatever mid-GOP AU happens to render first.
	s.gate.RequestKeyframeNow()
	s.lastPose.Store(&xrtypes.Pose{Orientation: xrtypes.IdentityQuat})
	return s
}

// onTrackingReport is the data-channel inbound side of §4.6 step 2: the
// client's predicted pose, used as the render target for subsequent frames.
func (s *peerSession) onTrackingReport(payload []byte) {
	msg, err := wire.DecodeUp(payload)
	if err != nil {
		logx.Error("xr-server: decode up message: %v", err)
		return
	}
	if msg.Tracking != nil {
		pose := msg.Tracking.Pose
		s.lastPose.Store(&pose)
	}
}

// run drives the render-side FrameMeta production loop (§6 supplement):
// render one access unit, gate it on keyframe-wait state, stamp its
// FrameMeta, packetize and write it, on a fixed cadence. Stops when ctx is
// canceled.
func (s *peerSession) run(ctx context.Context, clientID string) {
	ticker := time.NewTicker(framesource.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.produceOne(ctx, clientID, now)
		}
	}
}

func (s *peerSession) produceOne(ctx context.Context, clientID string, now time.Time) {
	forceIDR := s.forceIDR.Swap(false)
	pose := *s.lastPose.Load()

	frame, err := s.source.RenderFrame(ctx, clientID, pose, forceIDR)
	if err != nil {
		logx.Error("xr-server: render frame for %s: %v", clientID, err)
		return
	}

	nalus := annexb.SplitNALUs(frame.NALUs)
	if len(nalus) == 0 {
		return
	}

	for _, n := range nalus {
		if annexb.Type(n) == annexb.TypeSPS || annexb.Type(n) == annexb.TypePPS {
			s.gate.ObserveParameterSets(paramSetIfType(n, annexb.TypeSPS), paramSetIfType(n, annexb.TypePPS))
		}
	}
	if !s.gate.ShouldDeliver(frame.IsIDR || annexb.IsIDR(nalus)) {
		return
	}

	if err := s.stamper.SetDownMessage(wire.DownMessage{Meta: frame.Meta}); err != nil {
		logx.Error("xr-server: set down message for %s: %v", clientID, err)
		return
	}

	ts := uint32(now.UnixNano() / int64(time.Second/90000))
	for i, n := range nalus {
		pkts := s.packetizer.Packetize(n, 0)
		for j, pkt := range pkts {
			pkt.Timestamp = ts
			pkt.Marker = i == len(nalus)-1 && j == len(pkts)-1
			if err := s.peer.WriteRTP(pkt); err != nil {
				logx.Error("xr-server: write rtp for %s: %v", clientID, err)
				return
			}
		}
	}
}

// paramSetIfType returns n when n's NAL type matches want, else nil — a
// small helper keeping the ObserveParameterSets call a one-liner per NALU.
func paramSetIfType(n []byte, want uint8) []byte {
	if annexb.Type(n) == want {
		return n
	}
	return nil
}
