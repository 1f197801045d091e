// Package passthrough implements the passthrough policy (C9, §4.9):
// tracks the active environment blend mode and decides whether a
// passthrough layer belongs under the projection layer.
package passthrough

import "github.com/xrrelay/xrrelay/internal/xrtypes"

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float32
}

// ProjectionLayerFlags mirrors the handful of XrCompositionLayerFlags bits
// the projection layer may need toggled depending on blend mode (e.g.
// premultiplied alpha when compositing over a passthrough layer).
type ProjectionLayerFlags struct {
	BlendTextureSourceAlpha bool
}

// CompositionLayer is the policy's contribution to the frame's layer list:
// an optional passthrough layer plus the blend mode and flags the
// projection layer should use.
type CompositionLayer struct {
	PassthroughLayer     bool
	EnvBlendMode         xrtypes.EnvBlendMode
	ProjectionLayerFlags ProjectionLayerFlags
}

// Policy holds the mutable passthrough state for one session.
type Policy struct {
	blendMode xrtypes.EnvBlendMode

	// passthroughSupported reflects whether the device exposes the
	// passthrough extension; without it ALPHA_BLEND/ADDITIVE degrade to a
	// best-effort opaque clear rather than failing (§4.9).
	passthroughSupported bool
}

// New returns a Policy defaulting to OPAQUE, for a device with the given
// passthrough extension support.
func New(passthroughSupported bool) *Policy {
	return &Policy{blendMode: xrtypes.BlendModeOpaque, passthroughSupported: passthroughSupported}
}

// SetBlendMode updates the active blend mode, normally driven by the
// FrameMeta.EnvBlendMode carried on the freshest sample (§4.6 step 3b).
// BlendModeUnset is ignored — it means "no opinion", not "reset to unset".
func (p *Policy) SetBlendMode(m xrtypes.EnvBlendMode) {
	if m == xrtypes.BlendModeUnset {
		return
	}
	p.blendMode = m
}

// BlendMode reports the currently active blend mode.
func (p *Policy) BlendMode() xrtypes.EnvBlendMode {
	return p.blendMode
}

// CompositionLayer returns the policy's contribution for the current frame
// (§4.9).
func (p *Policy) CompositionLayer() CompositionLayer {
	cl := CompositionLayer{EnvBlendMode: p.blendMode}

	if !p.passthroughSupported {
		return cl
	}

	switch p.blendMode {
	case xrtypes.BlendModeAlphaBlend:
		cl.PassthroughLayer = true
		cl.ProjectionLayerFlags.BlendTextureSourceAlpha = true
	case xrtypes.BlendModeAdditive:
		// Emulated via alpha-key over a passthrough layer (§4.9): the
		// projection shader treats black as transparent rather than relying
		// on true additive blending hardware support.
		cl.PassthroughLayer = true
		cl.ProjectionLayerFlags.BlendTextureSourceAlpha = true
	}
	return cl
}

// ClearColor reports the clear color the render target should use before
// compositing the current sample (§4.6 step 3e).
func (p *Policy) ClearColor() Color {
	if p.passthroughSupported && (p.blendMode == xrtypes.BlendModeAlphaBlend || p.blendMode == xrtypes.BlendModeAdditive) {
		return Color{} // fully transparent, passthrough shows through
	}
	return Color{R: 0, G: 0, B: 0, A: 1}
}

// UseAlphaBlendForAdditive reports whether ADDITIVE is currently being
// emulated via alpha-key over a passthrough layer rather than true additive
// blending (§4.9).
func (p *Policy) UseAlphaBlendForAdditive() bool {
	return p.passthroughSupported && p.blendMode == xrtypes.BlendModeAdditive
}
