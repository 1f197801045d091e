// The OpenXR runtime, EGL context, and GL driver this binary would bind to
// on an actual headset have no Go loader to depend on (§2 Non-goals); demoBackend
// and demoCompositor stand in for them so the render loop in
// internal/remoteexperience can run end to end off this machine's CPU clock
// instead of a real HMD's frame signal.
package main

import (
	"time"

	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/passthrough"
	"github.com/xrrelay/xrrelay/internal/remoteexperience"
	"github.com/xrrelay/xrrelay/internal/streamclient"
	"github.com/xrrelay/xrrelay/internal/swapchain"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// demoFrameInterval paces WaitFrame in lieu of a compositor's vsync signal.
const demoFrameInterval = 11 * time.Millisecond

// demoBackend fakes the OpenXR session/frame-loop contract: a fixed head
// pose, a steady synthetic vsync, and a display-time clock derived from the
// wall clock rather than a runtime-provided one.
type demoBackend struct {
	frameSeq int64
}

func newDemoBackend() *demoBackend {
	return &demoBackend{}
}

func (b *demoBackend) BeginSession() error {
	logx.Info("xr-client: session begin")
	return nil
}

func (b *demoBackend) EndSession() error {
	logx.Info("xr-client: session end")
	return nil
}

func (b *demoBackend) WaitFrame() (remoteexperience.FrameState, error) {
	time.Sleep(demoFrameInterval)
	b.frameSeq++
	predicted := time.Now().Add(demoFrameInterval).UnixNano()
	return remoteexperience.FrameState{PredictedDisplayTime: predicted, ShouldRender: true}, nil
}

func (b *demoBackend) BeginFrame() error { return nil }

func (b *demoBackend) LocateViews(int64) ([2]xrtypes.View, error) {
	fov := xrtypes.Fov{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.8, AngleDown: -0.8}
	view := xrtypes.View{Pose: xrtypes.Pose{Orientation: xrtypes.IdentityQuat}, Fov: fov}
	return [2]xrtypes.View{view, view}, nil
}

func (b *demoBackend) LocateViewSpacePose(int64) (xrtypes.Pose, error) {
	return xrtypes.Pose{Orientation: xrtypes.IdentityQuat}, nil
}

func (b *demoBackend) EndFrame(_ int64, _ xrtypes.EnvBlendMode, _ remoteexperience.FrameLayers) error {
	return nil
}

func (b *demoBackend) AcquireSwapchainImage() (int, error) {
	return int(b.frameSeq % 3), nil
}

func (b *demoBackend) WaitSwapchainImage(int) error { return nil }

func (b *demoBackend) ReleaseSwapchainImage() error { return nil }

func (b *demoBackend) ConvertToXRTime(t time.Time) (int64, bool) {
	return t.UnixNano(), true
}

// demoCompositor fakes the GL draw calls; there is no GPU context to bind in
// this environment, so it just tracks the frame count it was asked to draw.
type demoCompositor struct {
	drawn int64
}

func (c *demoCompositor) BindFramebuffer(swapchain.Framebuffer) error { return nil }

func (c *demoCompositor) SetViewport(int, int) {}

func (c *demoCompositor) Clear(passthrough.Color) {}

func (c *demoCompositor) DrawSample(_ xrtypes.TextureTarget, tex streamclient.Texture, _ *float32) error {
	c.drawn++
	if c.drawn%90 == 0 {
		logx.Debug("xr-client: composited %d frames, last texture %d", c.drawn, tex)
	}
	return nil
}

// demoSwapchainAllocator stands in for the real EGL/GL framebuffer
// allocation a swapchain image index maps to.
func demoSwapchainAllocator(imageIndex int) (swapchain.Framebuffer, error) {
	return swapchain.Framebuffer(imageIndex), nil
}
