package passthrough

import (
	"testing"

	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

func TestDefaultIsOpaque(t *testing.T) {
	p := New(true)
	if p.BlendMode() != xrtypes.BlendModeOpaque {
		t.Fatalf("expected default OPAQUE, got %v", p.BlendMode())
	}
	cl := p.CompositionLayer()
	if cl.PassthroughLayer {
		t.Fatalf("OPAQUE should not request a passthrough layer")
	}
	if p.ClearColor().A != 1 {
		t.Fatalf("OPAQUE clear color should be opaque")
	}
}

func TestSetBlendModeIgnoresUnset(t *testing.T) {
	p := New(true)
	p.SetBlendMode(xrtypes.BlendModeAdditive)
	p.SetBlendMode(xrtypes.BlendModeUnset)
	if p.BlendMode() != xrtypes.BlendModeAdditive {
		t.Fatalf("BlendModeUnset should not override the active mode, got %v", p.BlendMode())
	}
}

// TestS2AdditiveEmulation reproduces §8 S2: ADDITIVE on a passthrough-capable
// device gets a transparent clear and alpha-blend emulation.
func TestS2AdditiveEmulation(t *testing.T) {
	p := New(true)
	p.SetBlendMode(xrtypes.BlendModeAdditive)

	cl := p.CompositionLayer()
	if !cl.PassthroughLayer {
		t.Fatalf("expected ADDITIVE to insert a passthrough layer on a supporting device")
	}
	if cl.EnvBlendMode != xrtypes.BlendModeAdditive {
		t.Fatalf("expected reported blend mode ADDITIVE, got %v", cl.EnvBlendMode)
	}
	if p.ClearColor().A != 0 {
		t.Fatalf("expected transparent clear alpha for ADDITIVE passthrough, got %v", p.ClearColor())
	}
	if !p.UseAlphaBlendForAdditive() {
		t.Fatalf("expected UseAlphaBlendForAdditive true on a passthrough-capable device")
	}
}

func TestNoPassthroughSupportDegradesToOpaqueClear(t *testing.T) {
	p := New(false)
	p.SetBlendMode(xrtypes.BlendModeAlphaBlend)

	cl := p.CompositionLayer()
	if cl.PassthroughLayer {
		t.Fatalf("device without passthrough support must never request a passthrough layer")
	}
	if p.ClearColor().A != 1 {
		t.Fatalf("without passthrough support, clear should stay opaque")
	}
	if p.UseAlphaBlendForAdditive() {
		t.Fatalf("without passthrough support, additive emulation must be false")
	}
}
