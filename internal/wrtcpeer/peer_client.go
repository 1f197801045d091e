package wrtcpeer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
)

// TrackHandler reacts to the inbound video track once the server starts
// sending it (§4.4 step 3, client/answerer side).
type TrackHandler func(track *webrtc.TrackRemote)

// ICECandidateHandler receives one locally-gathered ICE candidate to
// trickle back to the peer over signaling (§4.3).
type ICECandidateHandler func(candidate string, mLineIndex uint16)

// ClientPeer is the answerer-side counterpart to Peer: it receives an
// offer from the signaling bridge, never creates its own video track (the
// server is the sender), and exposes the data channel the server opens for
// UpMessage telemetry delivery.
type ClientPeer struct {
	pc          *webrtc.PeerConnection
	dataChannel *webrtc.DataChannel
	dcReady     atomic.Bool
	dcMu        sync.RWMutex
	closeOnce   sync.Once

	onTrack        TrackHandler
	onDataMessage  DataHandler
	onICECandidate ICECandidateHandler
}

// ClientConfig bundles a ClientPeer's collaborators.
type ClientConfig struct {
	ICEServers     []webrtc.ICEServer
	OnTrack        TrackHandler
	OnDataMessage  DataHandler
	OnICECandidate ICECandidateHandler
}

// NewClientPeer creates an answerer-side PeerConnection with the same H.264
// codec registered as NewServerPeer, RTCP feedback (NACK/PLI) handled by
// pion's default interceptors rather than the hand-rolled reader the server
// side uses, since here the peer is the track's receiver, not its sender.
func NewClientPeer(cfg ClientConfig) (*ClientPeer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     videoCodec.MimeType,
			ClockRate:    videoCodec.ClockRate,
			SDPFmtpLine:  videoCodec.SDPFmtpLine,
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "ccm", Parameter: "fir"}},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("wrtcpeer: register codec: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("wrtcpeer: register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(interceptorRegistry))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   cfg.ICEServers,
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("wrtcpeer: new peer connection: %w", err)
	}

	p := &ClientPeer{pc: pc, onTrack: cfg.OnTrack, onDataMessage: cfg.OnDataMessage, onICECandidate: cfg.OnICECandidate}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logx.Info("wrtcpeer: inbound track %s (%s)", track.ID(), track.Codec().MimeType)
		if p.onTrack != nil {
			p.onTrack(track)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.bindDataChannel(dc)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || p.onICECandidate == nil {
			return
		}
		init := c.ToJSON()
		var mLineIndex uint16
		if init.SDPMLineIndex != nil {
			mLineIndex = *init.SDPMLineIndex
		}
		p.onICECandidate(init.Candidate, mLineIndex)
	})

	return p, nil
}

func (p *ClientPeer) bindDataChannel(dc *webrtc.DataChannel) {
	p.dcMu.Lock()
	p.dataChannel = dc
	p.dcMu.Unlock()

	dc.OnOpen(func() { p.dcReady.Store(true) })
	dc.OnClose(func() { p.dcReady.Store(false) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.onDataMessage != nil {
			p.onDataMessage(msg.Data)
		}
	})
}

// SetOffer applies the server's SDP offer (§4.3 sdp-offer).
func (p *ClientPeer) SetOffer(sdp string) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("wrtcpeer: set remote description: %w", err)
	}
	return nil
}

// CreateAnswer answers the already-applied offer (§4.3 step 4).
func (p *ClientPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("wrtcpeer: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("wrtcpeer: set local description: %w", err)
	}
	return answer, nil
}

// AddICECandidate forwards a trickled candidate from the server.
func (p *ClientPeer) AddICECandidate(candidate string, mLineIndex uint16) error {
	if err := p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMLineIndex: &mLineIndex,
	}); err != nil {
		return fmt.Errorf("wrtcpeer: add ice candidate: %w", err)
	}
	return nil
}

// SendUpMessage satisfies connection.Sender: sends an already-encoded
// UpMessage over the data channel the server opened.
func (p *ClientPeer) SendUpMessage(payload []byte) error {
	if !p.dcReady.Load() {
		metrics.UpMessagesDropped.Add(1)
		return nil
	}
	p.dcMu.RLock()
	dc := p.dataChannel
	p.dcMu.RUnlock()
	if dc == nil {
		metrics.UpMessagesDropped.Add(1)
		return nil
	}
	if err := dc.Send(payload); err != nil {
		return fmt.Errorf("wrtcpeer: data channel send: %w", err)
	}
	metrics.UpMessagesSent.Add(1)
	return nil
}

// OnConnectionStateChange registers fn to observe PeerConnection state
// transitions.
func (p *ClientPeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

// Close tears down the peer connection. Safe to call more than once.
func (p *ClientPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pc.Close()
	})
	return err
}
