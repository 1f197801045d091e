package rtpstamp

import (
	"bytes"
	"sync"

	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
)

// defaultRequestPeriod matches the teacher's "re-request every 30 frames"
// cadence in streaming.go's waitKF branch; used when NewKeyframeGate is
// given a non-positive period.
const defaultRequestPeriod = 30

// KeyframeGate tracks the SPS/PPS-resend-on-change and keyframe-wait state
// a newly joined or just-desynced peer needs, folded in as a supplement to
// the stamping contract (it gates AU delivery, it does not change the
// stamped extension itself). Grounded on the teacher's
// NeedKeyframe/FramesSinceKF state machine in streaming.go and
// internal/stream/reader.go.
type KeyframeGate struct {
	requestKeyframe func()
	requestPeriod   int

	mu            sync.Mutex
	lastSPS       []byte
	lastPPS       []byte
	needKeyframe  bool
	framesSinceKF int
}

// NewKeyframeGate returns a gate that calls requestKeyframe whenever it
// decides the encoder needs to cut a fresh IDR (on SPS change, on a new
// peer joining mid-GOP, or periodically every requestPeriod frames while
// waiting). requestPeriod <= 0 falls back to defaultRequestPeriod.
func NewKeyframeGate(requestKeyframe func(), requestPeriod int) *KeyframeGate {
	if requestPeriod <= 0 {
		requestPeriod = defaultRequestPeriod
	}
	return &KeyframeGate{requestKeyframe: requestKeyframe, requestPeriod: requestPeriod}
}

// ObserveParameterSets records the current SPS/PPS and returns true if
// either changed since the last call, in which case the caller must
// request a fresh keyframe (teacher's "gotNewSPS" branch).
func (g *KeyframeGate) ObserveParameterSets(sps, pps []byte) (changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	spsChanged := len(sps) > 0 && !bytes.Equal(g.lastSPS, sps)
	ppsChanged := len(pps) > 0 && !bytes.Equal(g.lastPPS, pps)
	if spsChanged {
		g.lastSPS = append([]byte(nil), sps...)
	}
	if ppsChanged {
		g.lastPPS = append([]byte(nil), pps...)
	}

	changed = spsChanged || ppsChanged
	if changed {
		g.needKeyframe = true
		g.framesSinceKF = 0
		logx.Info("rtpstamp: parameter sets changed, requesting keyframe")
		g.requestKeyframeLocked()
	}
	return changed
}

// ShouldDeliver reports whether the access unit currently being stamped
// should be forwarded, given isIDR. While waiting for a keyframe it blocks
// non-IDR access units, periodically re-requesting one (teacher's waitKF
// loop, request every requestPeriod frames).
func (g *KeyframeGate) ShouldDeliver(isIDR bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.needKeyframe {
		return true
	}
	if isIDR {
		g.needKeyframe = false
		g.framesSinceKF = 0
		return true
	}

	g.framesSinceKF++
	if g.framesSinceKF%g.requestPeriod == 0 {
		g.requestKeyframeLocked()
	}
	return false
}

// RequestKeyframeNow marks the gate as waiting and asks for an IDR
// immediately, used when a new peer joins mid-GOP.
func (g *KeyframeGate) RequestKeyframeNow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.needKeyframe = true
	g.framesSinceKF = 0
	g.requestKeyframeLocked()
}

func (g *KeyframeGate) requestKeyframeLocked() {
	metrics.KeyframeRequests.Add(1)
	if g.requestKeyframe != nil {
		g.requestKeyframe()
	}
}

