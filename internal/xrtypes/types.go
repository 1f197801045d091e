// Package xrtypes holds the small value types shared across the pose-stamped
// frame pipeline and the render loop: positions, orientations, view/blend
// enums. None of it depends on an OpenXR binding — it is the vocabulary the
// core algorithm is written against, per the contracts the real OpenXR/EGL
// collaborators would satisfy.
package xrtypes

// Vec3 is a position in the STAGE reference space, in meters.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a unit orientation quaternion, w-first to match OpenXR's XrQuaternionf
// field order used throughout the corpus this was modeled on.
type Quat struct {
	W, X, Y, Z float32
}

// IdentityQuat is the no-rotation orientation.
var IdentityQuat = Quat{W: 1}

// Pose is a position + orientation pair, as returned by xrLocateViews/xrLocateSpace.
type Pose struct {
	Position    Vec3
	Orientation Quat
}

// Fov mirrors XrFovf: four half-angles in radians.
type Fov struct {
	AngleLeft, AngleRight, AngleUp, AngleDown float32
}

// View is one eye's pose+fov, as returned by xrLocateViews.
type View struct {
	Pose Pose
	Fov  Fov
}

// EnvBlendMode mirrors XrEnvironmentBlendMode plus an UNSET sentinel that
// means "client keeps current policy" on the wire (§3).
type EnvBlendMode uint8

const (
	BlendModeUnset EnvBlendMode = iota
	BlendModeOpaque
	BlendModeAdditive
	BlendModeAlphaBlend
)

func (m EnvBlendMode) String() string {
	switch m {
	case BlendModeOpaque:
		return "OPAQUE"
	case BlendModeAdditive:
		return "ADDITIVE"
	case BlendModeAlphaBlend:
		return "ALPHA_BLEND"
	default:
		return "UNSET"
	}
}

// TextureTarget identifies the GL bind target of a decoded frame's texture.
// Open Question #1 in SPEC_FULL.md: the decoder may produce either. The core
// passes this through unchanged to the (external) compositor.
type TextureTarget uint8

const (
	TargetTexture2D TextureTarget = iota
	TargetExternalOES
)

// SessionState mirrors the OpenXR session state machine driven by runtime
// events (§4.6). The render loop only runs while Runnable: from Ready up to,
// but not including, Stopping.
type SessionState uint8

const (
	StateIdle SessionState = iota
	StateReady
	StateSynchronized
	StateVisible
	StateFocused
	StateStopping
	StateLossPending
	StateExiting
)

func (s SessionState) Runnable() bool {
	return s >= StateReady && s < StateStopping
}
