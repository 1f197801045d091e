// Package framesource defines the contract between the pose-stamped frame
// pipeline and the actual scene renderer + H.264 encoder, both of which are
// out of scope for this module (the spec's Non-goals: "the actual H.264
// encoder... the GL/EGL context and swapchain creation wrappers"). The real
// implementation is an external collaborator; Stub below exists only so the
// server binary has something concrete to wire and exercise end-to-end.
package framesource

import (
	"context"
	"time"

	"github.com/xrrelay/xrrelay/internal/wire"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// Source renders and encodes one access unit for the client identified by
// clientID, against that client's most recently reported pose. forceIDR
// asks the implementation to cut a fresh keyframe (in response to PLI/FIR
// or a newly joined client) regardless of its own GOP schedule.
type Source interface {
	RenderFrame(ctx context.Context, clientID string, latestPose xrtypes.Pose, forceIDR bool) (Frame, error)
}

// Frame is one encoded access unit plus the metadata the stamper will
// attach to it (§4.1/§4.2).
type Frame struct {
	NALUs []byte // Annex-B byte stream for the whole access unit
	Meta  wire.FrameMeta
	IsIDR bool
}

// Stub is a placeholder Source: it never touches a GPU or an encoder, just
// produces a minimal valid Annex-B IDR slice NALU on a fixed cadence so the
// rest of the pipeline (stamping, packetizing, RTCP-driven keyframe
// requests) has something real to exercise. A production deployment
// replaces this with a binding to the actual renderer/encoder.
type Stub struct {
	seq int64
}

// NewStub returns a Stub frame source.
func NewStub() *Stub { return &Stub{} }

// minimalIDRSlice is a syntactically-valid (if content-free) Annex-B H.264
// IDR slice NALU: start code + NAL header (type 5, IDR) + one zero byte of
// payload. Real encoders never need this; it exists purely so depacketizers
// downstream have a well-formed NALU to parse during local testing.
var minimalIDRSlice = []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x00}

func (s *Stub) RenderFrame(_ context.Context, _ string, pose xrtypes.Pose, _ bool) (Frame, error) {
	s.seq++
	return Frame{
		NALUs: minimalIDRSlice,
		Meta: wire.FrameMeta{
			FrameSequenceID: s.seq,
			Poses:           [2]xrtypes.Pose{pose, pose},
			EnvBlendMode:    xrtypes.BlendModeOpaque,
		},
		IsIDR: true,
	}, nil
}

// FrameInterval is the Stub's fixed production cadence. A real renderer
// paces itself against vsync/predicted display time instead.
const FrameInterval = 11 * time.Millisecond
