package remoteexperience

import (
	"fmt"
	"time"

	"github.com/xrrelay/xrrelay/internal/connection"
	"github.com/xrrelay/xrrelay/internal/glscope"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/passthrough"
	"github.com/xrrelay/xrrelay/internal/streamclient"
	"github.com/xrrelay/xrrelay/internal/swapchain"
	"github.com/xrrelay/xrrelay/internal/wire"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// RenderOutcome tags what inner_render did this iteration (§6.2, §4.6 step
// 7), letting the outer loop reason about layer inclusion without
// re-deriving it from sample state.
type RenderOutcome int

const (
	OutcomeNewSample RenderOutcome = iota
	OutcomeReusedSample
	OutcomeNoSample
	OutcomeShouldNotRender
	OutcomeError
)

func (o RenderOutcome) String() string {
	switch o {
	case OutcomeNewSample:
		return "NEW_SAMPLE"
	case OutcomeReusedSample:
		return "REUSED_SAMPLE"
	case OutcomeNoSample:
		return "NO_SAMPLE"
	case OutcomeShouldNotRender:
		return "SHOULD_NOT_RENDER"
	case OutcomeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Dimensions holds the per-eye swapchain dimensions (EyeWidth/EyeHeight);
// the shared image is 2*EyeWidth wide, side-by-side (§6.2).
type Dimensions struct {
	EyeWidth  int
	EyeHeight int
}

// RemoteExperience owns one client session's render loop.
type RemoteExperience struct {
	backend    XRBackend
	compositor Compositor
	stream     *streamclient.StreamClient
	mapper     *swapchain.Mapper
	policy     *passthrough.Policy
	conn       *connection.Connection
	scope      glscope.Scope
	dims       Dimensions

	state         xrtypes.SessionState
	heldSample    *streamclient.Sample
	lastProjection *ProjectionLayerContribution

	// OnLatePrediction is an explicitly unwired hook: the core loop never
	// calls it. Left as a documented extension point for adaptive behavior
	// around late predictedDisplayTime, deliberately left undecided (see
	// DESIGN.md Open Question 3).
	OnLatePrediction func(predictedDisplayTime int64)
}

// Config bundles RemoteExperience's collaborators.
type Config struct {
	Backend    XRBackend
	Compositor Compositor
	Stream     *streamclient.StreamClient
	Mapper     *swapchain.Mapper
	Policy     *passthrough.Policy
	Conn       *connection.Connection
	Scope      glscope.Scope
	Dimensions Dimensions
}

// New builds a RemoteExperience in the IDLE state.
func New(cfg Config) *RemoteExperience {
	return &RemoteExperience{
		backend:    cfg.Backend,
		compositor: cfg.Compositor,
		stream:     cfg.Stream,
		mapper:     cfg.Mapper,
		policy:     cfg.Policy,
		conn:       cfg.Conn,
		scope:      cfg.Scope,
		dims:       cfg.Dimensions,
		state:      xrtypes.StateIdle,
	}
}

// HandleSessionStateChange advances the XR session state machine
// (§4.6 "State machine"): READY begins the session, STOPPING ends it,
// LOSS_PENDING/EXITING tear down. The loop only runs from READY up to, but
// not including, STOPPING (xrtypes.SessionState.Runnable).
func (e *RemoteExperience) HandleSessionStateChange(newState xrtypes.SessionState) error {
	switch newState {
	case xrtypes.StateReady:
		if err := e.backend.BeginSession(); err != nil {
			return fmt.Errorf("remoteexperience: begin session: %w", err)
		}
	case xrtypes.StateStopping:
		if err := e.backend.EndSession(); err != nil {
			return fmt.Errorf("remoteexperience: end session: %w", err)
		}
	case xrtypes.StateLossPending, xrtypes.StateExiting:
		e.teardown()
	}
	e.state = newState
	return nil
}

func (e *RemoteExperience) teardown() {
	if e.heldSample != nil {
		e.stream.ReleaseSample(*e.heldSample)
		e.heldSample = nil
	}
}

// Running reports whether the loop should currently iterate.
func (e *RemoteExperience) Running() bool {
	return e.state.Runnable()
}

// PollAndRenderFrame runs one iteration of §4.6's algorithm.
func (e *RemoteExperience) PollAndRenderFrame() error {
	frameState, err := e.backend.WaitFrame()
	if err != nil {
		metrics.RenderErrors.Add(1)
		logx.Error("remoteexperience: wait frame: %v", err)
		return nil // §4.6: wait/locate failure skips this iteration, session continues
	}

	if err := e.backend.BeginFrame(); err != nil {
		return fmt.Errorf("remoteexperience: begin frame (fatal): %w", err)
	}

	beginFrameTime := time.Now()

	views, err := e.backend.LocateViews(frameState.PredictedDisplayTime)
	if err != nil {
		metrics.RenderErrors.Add(1)
		logx.Error("remoteexperience: locate views: %v", err)
		return nil
	}

	e.scope.Begin()
	defer e.scope.End()

	if !frameState.ShouldRender {
		metrics.RenderShouldNotDraw.Add(1)
		if err := e.backend.EndFrame(frameState.PredictedDisplayTime, xrtypes.BlendModeOpaque, FrameLayers{}); err != nil {
			return fmt.Errorf("remoteexperience: end frame (fatal): %w", err)
		}
		e.reportPose(frameState.PredictedDisplayTime)
		return nil
	}

	outcome, frameSeq, decodeCompleteTime := e.innerRender(beginFrameTime, views)

	layers := e.buildLayers(outcome)
	if err := e.backend.EndFrame(frameState.PredictedDisplayTime, layers.effectiveBlendMode(e.policy), layers.toFrameLayers()); err != nil {
		return fmt.Errorf("remoteexperience: end frame (fatal): %w", err)
	}

	e.reportPose(frameState.PredictedDisplayTime)

	if outcome == OutcomeNewSample {
		e.reportFrameTiming(frameSeq, decodeCompleteTime, beginFrameTime, frameState.PredictedDisplayTime)
	}

	return nil
}

// innerRender implements §4.6 step 7. views are the current predicted
// views for this iteration; on REUSED_SAMPLE the held sample's texture is
// recomposited as-is against these current views, per §4.6 step 7a.
func (e *RemoteExperience) innerRender(beginFrameTime time.Time, views [2]xrtypes.View) (RenderOutcome, int64, time.Time) {
	newSample, gotNew := e.stream.TryPullSample()

	// §4.5: a sample that decoded but carries no FrameMeta (the AU was too
	// large to stamp, or the extension failed to lift) is not a renderable
	// new sample — it has no pose to draw at. Replay the no-new-sample path
	// instead of compositing it at the zero-value origin pose.
	if gotNew && !newSample.HasMeta {
		e.stream.ReleaseSample(newSample)
		gotNew = false
	}

	var toDraw streamclient.Sample
	switch {
	case gotNew:
		if newSample.Meta.EnvBlendMode != xrtypes.BlendModeUnset {
			e.policy.SetBlendMode(newSample.Meta.EnvBlendMode)
		}
		toDraw = newSample
	case e.heldSample != nil:
		toDraw = *e.heldSample
	default:
		metrics.RenderNoSample.Add(1)
		return OutcomeNoSample, 0, time.Time{}
	}

	// §4.6 step 7c: projectionViews[i].pose comes from the sample being
	// drawn, fov comes from this iteration's current XrViews, subImage
	// rects are the side-by-side halves of the shared swapchain image.
	e.lastProjection = &ProjectionLayerContribution{
		Views: [2]ProjectionView{
			{
				Pose:     toDraw.Meta.Poses[0],
				Fov:      views[0].Fov,
				SubImage: SubImageRect{X: 0, Y: 0, Width: e.dims.EyeWidth, Height: e.dims.EyeHeight},
			},
			{
				Pose:     toDraw.Meta.Poses[1],
				Fov:      views[1].Fov,
				SubImage: SubImageRect{X: e.dims.EyeWidth, Y: 0, Width: e.dims.EyeWidth, Height: e.dims.EyeHeight},
			},
		},
	}

	imageIndex, err := e.backend.AcquireSwapchainImage()
	if err != nil {
		logx.Fatal("remoteexperience: acquire swapchain image: %v", err)
	}

	waitStart := time.Now()
	if err := e.backend.WaitSwapchainImage(imageIndex); err != nil {
		logx.Fatal("remoteexperience: wait swapchain image: %v", err)
	}
	if waited := time.Since(waitStart); waited > 2*time.Millisecond {
		logx.Info("remoteexperience: wait swapchain image took %v", waited)
	}

	fb, err := e.mapper.FramebufferAt(imageIndex)
	if err != nil {
		logx.Fatal("remoteexperience: framebuffer at %d: %v", imageIndex, err)
	}

	if err := e.compositor.BindFramebuffer(fb); err != nil {
		metrics.RenderErrors.Add(1)
		logx.Error("remoteexperience: bind framebuffer: %v", err)
	}
	e.compositor.SetViewport(2*e.dims.EyeWidth, e.dims.EyeHeight)
	e.compositor.Clear(e.policy.ClearColor())

	var blackThreshold *float32
	if e.policy.UseAlphaBlendForAdditive() {
		blackThreshold = toDraw.Meta.BlackThreshold
	}
	if err := e.compositor.DrawSample(xrtypes.TargetTexture2D, toDraw.Texture, blackThreshold); err != nil {
		metrics.RenderErrors.Add(1)
		logx.Error("remoteexperience: draw sample: %v", err)
	}

	if err := e.backend.ReleaseSwapchainImage(); err != nil {
		logx.Fatal("remoteexperience: release swapchain image: %v", err)
	}

	if !gotNew {
		metrics.RenderReusedSample.Add(1)
		return OutcomeReusedSample, toDraw.Meta.FrameSequenceID, toDraw.DecodeCompleteTime
	}

	// TryPullSample already released the previously held sample's texture
	// (its checkout auto-releases whatever was checked out before it) —
	// releasing e.heldSample here too would double-release the same
	// texture. e.heldSample only needs to track it for REUSED_SAMPLE
	// recompositing and for the one explicit release at teardown.
	held := newSample
	e.heldSample = &held

	metrics.RenderNewSample.Add(1)
	return OutcomeNewSample, newSample.Meta.FrameSequenceID, newSample.DecodeCompleteTime
}

// builtLayers is the outcome of §4.6 steps 8-9: the passthrough policy's
// contribution plus the projection layer, included only when a layer is
// available to draw.
type builtLayers struct {
	passthrough *passthrough.CompositionLayer
	projection  *ProjectionLayerContribution
}

func (b builtLayers) effectiveBlendMode(policy *passthrough.Policy) xrtypes.EnvBlendMode {
	if b.passthrough != nil {
		return b.passthrough.EnvBlendMode
	}
	return policy.BlendMode()
}

func (b builtLayers) toFrameLayers() FrameLayers {
	return FrameLayers{Passthrough: b.passthrough, Projection: b.projection}
}

// buildLayers implements §4.6 steps 8-9.
func (e *RemoteExperience) buildLayers(outcome RenderOutcome) builtLayers {
	cl := e.policy.CompositionLayer()
	out := builtLayers{passthrough: &cl}

	if outcome == OutcomeNewSample || outcome == OutcomeReusedSample {
		out.projection = e.lastProjection
	}
	return out
}

func (e *RemoteExperience) reportPose(predictedDisplayTime int64) {
	pose, err := e.backend.LocateViewSpacePose(predictedDisplayTime)
	if err != nil {
		logx.Error("remoteexperience: locate view space pose: %v", err)
		return
	}
	if err := e.conn.SendTracking(wire.TrackingReport{Pose: pose, PredictedDisplayTime: predictedDisplayTime}); err != nil {
		logx.Error("remoteexperience: send tracking: %v", err)
	}
}

func (e *RemoteExperience) reportFrameTiming(frameSeq int64, decodeCompleteTime, beginFrameTime time.Time, predictedDisplayTime int64) {
	decodeXR, ok := e.backend.ConvertToXRTime(decodeCompleteTime)
	if !ok {
		logx.Error("remoteexperience: convert decode complete time to XR time failed, omitting timing report")
		return
	}
	beginXR, ok := e.backend.ConvertToXRTime(beginFrameTime)
	if !ok {
		logx.Error("remoteexperience: convert begin frame time to XR time failed, omitting timing report")
		return
	}

	report := wire.FrameTimingReport{
		FrameSequenceID:    frameSeq,
		DecodeCompleteTime: decodeXR,
		BeginFrameTime:     beginXR,
		DisplayTime:        predictedDisplayTime,
	}
	if err := e.conn.SendFrameTiming(report); err != nil {
		logx.Error("remoteexperience: send frame timing: %v", err)
	}
}
