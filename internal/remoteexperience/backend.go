// Package remoteexperience implements the client-side render loop (C6,
// §4.6) — the algorithmic heart of the headset client. Every OpenXR/EGL/GL
// call this package needs is expressed as a small interface; the real
// bindings are an external collaborator this module never implements
// (there is no OpenXR/EGL loader in the Go ecosystem to depend on).
package remoteexperience

import (
	"time"

	"github.com/xrrelay/xrrelay/internal/passthrough"
	"github.com/xrrelay/xrrelay/internal/streamclient"
	"github.com/xrrelay/xrrelay/internal/swapchain"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// FrameState is the result of xrWaitFrame (§4.6 step 1).
type FrameState struct {
	PredictedDisplayTime int64
	ShouldRender         bool
}

// ProjectionView is one eye's contribution to the projection layer
// (§4.6 step 7c): pose and fov come from XrView, SubImage identifies which
// half of the single side-by-side swapchain image this eye reads.
type ProjectionView struct {
	Pose    xrtypes.Pose
	Fov     xrtypes.Fov
	SubImage SubImageRect
}

// SubImageRect is a side-by-side half of the shared swapchain image
// (§6.2 "Side-by-side projection via two views into one swapchain image").
type SubImageRect struct {
	X, Y, Width, Height int
}

// FrameLayers is the layer list handed to xrEndFrame (§4.6 steps 8-9).
type FrameLayers struct {
	Passthrough *passthrough.CompositionLayer
	Projection  *ProjectionLayerContribution
}

// ProjectionLayerContribution carries the two eyes' views, present only
// when inner_render signaled a layer is includable (NEW_SAMPLE or
// REUSED_SAMPLE).
type ProjectionLayerContribution struct {
	Views [2]ProjectionView
}

// XRBackend is the OpenXR/session contract this package drives. The real
// implementation (loader, instance, session, swapchain creation) lives
// outside this module (§2 Non-goals); a test double or a thin cgo/Android
// NDK binding can satisfy it.
type XRBackend interface {
	BeginSession() error
	EndSession() error

	WaitFrame() (FrameState, error)
	BeginFrame() error
	LocateViews(predictedDisplayTime int64) ([2]xrtypes.View, error)
	LocateViewSpacePose(predictedDisplayTime int64) (xrtypes.Pose, error)
	EndFrame(displayTime int64, blendMode xrtypes.EnvBlendMode, layers FrameLayers) error

	AcquireSwapchainImage() (imageIndex int, err error)
	WaitSwapchainImage(imageIndex int) error
	ReleaseSwapchainImage() error

	// ConvertToXRTime maps a wall-clock instant to the XR runtime's time
	// base (xrConvertTimespecTimeToTimeKHR). ok=false means the conversion
	// failed and the timing report for this frame should be omitted
	// (§4.6 failure semantics), not treated as a fatal error.
	ConvertToXRTime(t time.Time) (xrTime int64, ok bool)
}

// Compositor issues the actual GL draw calls for one composited frame
// (§4.6 step 7e-f). Left as an interface per the Open Question decision on
// frame_texture_target: the core only passes TextureTarget through, the
// compositor decides which shader path runs.
type Compositor interface {
	BindFramebuffer(fb swapchain.Framebuffer) error
	SetViewport(widthPx, heightPx int)
	Clear(c passthrough.Color)
	DrawSample(target xrtypes.TextureTarget, texture streamclient.Texture, blackThreshold *float32) error
}
