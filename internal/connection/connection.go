// Package connection implements the client-side half of the data channel
// (§4.7): sending UpMessage telemetry, receiving DownMessage-adjacent
// control, and a heartbeat generalized from the teacher's
// scrcpy_session.go monitorControlHealth/sendGetClipboard pair.
package connection

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/utils"
	"github.com/xrrelay/xrrelay/internal/wire"
)

// Sender is the narrow part of wrtcpeer.Peer this package depends on —
// sending an already-encoded payload over the data channel.
type Sender interface {
	SendUpMessage(payload []byte) error
}

// staleAfter mirrors the teacher's controlStaleAfter: once this long has
// passed since the last inbound message, the connection sends a heartbeat
// rather than waiting indefinitely for the next real one.
const staleAfter = 3 * time.Second

const healthTick = 1 * time.Second

// Connection tracks one client's data-channel traffic and keeps it from
// going idle for long enough that either side gives up on it.
type Connection struct {
	sender Sender

	lastReceived  atomic.Int64 // unix nanos
	upMessageID   atomic.Int64
	refreshHintHz atomic.Uint64 // math.Float64bits, 0 means "no hint yet"

	stopCh chan struct{}
}

// New wraps sender with heartbeat/health bookkeeping. StartHealthLoop must
// be called separately to begin the background ticker (mirrors
// StartControlLoops being a distinct step from session construction).
func New(sender Sender) *Connection {
	c := &Connection{sender: sender, stopCh: make(chan struct{})}
	c.lastReceived.Store(time.Now().UnixNano())
	return c
}

// StartHealthLoop begins the background ticker that sends a heartbeat
// UpMessage whenever the connection has been silent for longer than
// staleAfter (generalized from monitorControlHealth).
func (c *Connection) StartHealthLoop() {
	utils.GoSafe("connection-health", func() {
		t := time.NewTicker(healthTick)
		defer t.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-t.C:
				last := time.Unix(0, c.lastReceived.Load())
				if time.Since(last) > staleAfter {
					if err := c.Heartbeat(); err != nil {
						logx.Error("connection: heartbeat failed: %v", err)
					}
				}
			}
		}
	})
}

// Stop ends the health loop. Safe to call once.
func (c *Connection) Stop() {
	close(c.stopCh)
}

// OnMessageReceived should be called whenever any inbound payload arrives
// on the data channel, resetting the staleness clock.
func (c *Connection) OnMessageReceived() {
	c.lastReceived.Store(time.Now().UnixNano())
}

// Heartbeat sends an UpMessage carrying no tracking or frame-timing payload
// (generalized from sendGetClipboard's COPY_KEY_NONE probe) purely to keep
// the channel from looking dead to the peer.
func (c *Connection) Heartbeat() error {
	return c.sendUp(wire.UpMessage{})
}

// SendTracking sends the client's current pose prediction (§4.6 step 2).
func (c *Connection) SendTracking(report wire.TrackingReport) error {
	return c.sendUp(wire.UpMessage{Tracking: &report})
}

// SendFrameTiming reports decode/display timing for one rendered frame
// (§4.6 step 12).
func (c *Connection) SendFrameTiming(report wire.FrameTimingReport) error {
	return c.sendUp(wire.UpMessage{Frame: &report})
}

// SetRefreshRateHint records the display's negotiated refresh rate, purely
// as read-only telemetry (§6 supplement, grounded on
// em_display_refresh_rates.cpp): this repo has no adaptive-bitrate Non-goal
// override, so the hint is never consulted by any rendering or encoding
// decision, only observable via RefreshRateHint.
func (c *Connection) SetRefreshRateHint(hz float64) {
	c.refreshHintHz.Store(math.Float64bits(hz))
}

// RefreshRateHint returns the last hint set by SetRefreshRateHint, or
// (0, false) if none has been recorded yet.
func (c *Connection) RefreshRateHint() (float64, bool) {
	bits := c.refreshHintHz.Load()
	if bits == 0 {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

func (c *Connection) sendUp(msg wire.UpMessage) error {
	msg.UpMessageID = c.upMessageID.Add(1)
	payload, err := wire.EncodeUp(msg)
	if err != nil {
		return fmt.Errorf("connection: encode up message: %w", err)
	}
	if err := c.sender.SendUpMessage(payload); err != nil {
		metrics.UpMessagesDropped.Add(1)
		return fmt.Errorf("connection: send up message: %w", err)
	}
	return nil
}
