package rtpstamp

import "testing"

func TestObserveParameterSetsDetectsChange(t *testing.T) {
	var requests int
	g := NewKeyframeGate(func() { requests++ }, 0)

	if changed := g.ObserveParameterSets([]byte("sps1"), []byte("pps1")); !changed {
		t.Fatalf("expected first observation to report a change")
	}
	if requests != 1 {
		t.Fatalf("expected 1 keyframe request, got %d", requests)
	}

	if changed := g.ObserveParameterSets([]byte("sps1"), []byte("pps1")); changed {
		t.Fatalf("expected repeated identical parameter sets to report no change")
	}
	if requests != 1 {
		t.Fatalf("expected no additional keyframe request, got %d", requests)
	}

	if changed := g.ObserveParameterSets([]byte("sps2"), []byte("pps1")); !changed {
		t.Fatalf("expected SPS change to be detected")
	}
}

func TestShouldDeliverBlocksUntilIDR(t *testing.T) {
	var requests int
	g := NewKeyframeGate(func() { requests++ }, 0)
	g.RequestKeyframeNow()
	if requests != 1 {
		t.Fatalf("expected RequestKeyframeNow to request once, got %d", requests)
	}

	if g.ShouldDeliver(false) {
		t.Fatalf("expected non-IDR access units to be blocked while waiting")
	}
	if g.ShouldDeliver(false) {
		t.Fatalf("expected continued blocking")
	}
	if !g.ShouldDeliver(true) {
		t.Fatalf("expected an IDR access unit to be delivered and clear the wait")
	}
	if !g.ShouldDeliver(false) {
		t.Fatalf("expected normal delivery to resume after the IDR")
	}
}

func TestShouldDeliverReRequestsPeriodically(t *testing.T) {
	var requests int
	g := NewKeyframeGate(func() { requests++ }, 0)
	g.RequestKeyframeNow()
	requests = 0

	for i := 0; i < defaultRequestPeriod; i++ {
		g.ShouldDeliver(false)
	}
	if requests != 1 {
		t.Fatalf("expected exactly one re-request after %d frames, got %d", defaultRequestPeriod, requests)
	}
}

func TestShouldDeliverHonorsCustomRequestPeriod(t *testing.T) {
	var requests int
	g := NewKeyframeGate(func() { requests++ }, 5)
	g.RequestKeyframeNow()
	requests = 0

	for i := 0; i < 5; i++ {
		g.ShouldDeliver(false)
	}
	if requests != 1 {
		t.Fatalf("expected exactly one re-request after 5 frames, got %d", requests)
	}
}

func TestShouldDeliverAlwaysTrueWhenNotWaiting(t *testing.T) {
	g := NewKeyframeGate(nil, 0)
	if !g.ShouldDeliver(false) {
		t.Fatalf("expected delivery to proceed when no keyframe is pending")
	}
}
