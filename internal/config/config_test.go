package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeReader struct {
	uri   string
	ok    bool
	err   error
	delay time.Duration
}

func (f fakeReader) ReadProperty(ctx context.Context, name string) (string, bool, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return f.uri, f.ok, f.err
}

func TestResolveSignalingURIUsesPropertyWhenPresent(t *testing.T) {
	got := ResolveSignalingURI(context.Background(), fakeReader{uri: "ws://device:9000/ws", ok: true})
	if got != "ws://device:9000/ws" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveSignalingURIFallsBackWhenAbsent(t *testing.T) {
	got := ResolveSignalingURI(context.Background(), fakeReader{ok: false})
	if got != defaultSignalingURI {
		t.Fatalf("got %q, want default", got)
	}
}

func TestResolveSignalingURIFallsBackOnError(t *testing.T) {
	got := ResolveSignalingURI(context.Background(), fakeReader{err: errors.New("boom")})
	if got != defaultSignalingURI {
		t.Fatalf("got %q, want default", got)
	}
}

func TestResolveSignalingURIWaitsForSlowReadWithinBudget(t *testing.T) {
	got := ResolveSignalingURI(context.Background(), fakeReader{uri: "ws://slow", ok: true, delay: 50 * time.Millisecond})
	if got != "ws://slow" {
		t.Fatalf("expected the read to still win since it's well under the 5s budget, got %q", got)
	}
}

func TestServerConfigValidateRejectsOutOfRangeExtID(t *testing.T) {
	c := ServerConfig{ExtensionID: 0}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for ext id 0")
	}
	c.ExtensionID = 16
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for ext id 16")
	}
	c.ExtensionID = 1
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvPropertyReaderReadsMappedVariable(t *testing.T) {
	t.Setenv("XR_DEBUG_ELECTRIC_MAPLE_WEBSOCKET_URI", "ws://from-env/ws")
	v, ok, err := (EnvPropertyReader{}).ReadProperty(context.Background(), websocketURIProperty)
	if err != nil || !ok || v != "ws://from-env/ws" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
}
