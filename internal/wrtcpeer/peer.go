// Package wrtcpeer implements the per-client WebRTC peer connection (§4.4):
// one send-only H.264 video track plus one reliable-ordered data channel,
// wired to the signaling Bus and to rtpstamp for outbound metadata.
package wrtcpeer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/rtpstamp"
	"github.com/xrrelay/xrrelay/internal/utils"
)

// dataChannelLabel is the single reliable-ordered channel carrying UpMessage
// telemetry (§4.3/§6): pose reports and frame timing reports.
const dataChannelLabel = "channel"

// videoCodec is the H.264 profile the server encodes to and advertises
// (§6: payload type 96, clock rate 90000, packetization-mode=1,
// profile-level-id=42e01f — constrained baseline, matching the teacher's
// codecs.H264Payloader usage).
var videoCodec = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeH264,
	ClockRate:   90000,
	SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
}

// KeyframeRequester is invoked when the peer's downstream track requester
// sends RTCP PLI/FIR, asking the render/encode side to cut a fresh IDR
// frame (§6 supplement, grounded in handlers_gin.go's requestKeyframe).
type KeyframeRequester func()

// DataHandler reacts to one inbound UpMessage payload (raw msgpack bytes;
// decoding is left to the handler — cmd/xr-server's peerSession decodes it
// with wire.DecodeUp — so this peer doesn't need to know the wire schema).
type DataHandler func(payload []byte)

// Peer wraps one client's PeerConnection, video track and data channel.
type Peer struct {
	ID string

	pc           *webrtc.PeerConnection
	videoTrack   *webrtc.TrackLocalStaticRTP
	dataChannel  *webrtc.DataChannel
	stamper      *rtpstamp.Stamper
	keyframeReq  KeyframeRequester
	onDataOpen   func()
	onDataClose  func()
	onDataError  func(error)
	dataHandler  DataHandler
	dcMu         sync.RWMutex
	dcReady      atomic.Bool
	closeOnce    sync.Once
}

// Config bundles the dependencies a new Peer needs. Stamper and
// KeyframeRequest may be nil: WriteRTP then forwards packets unstamped, and
// PLI/FIR only bump the keyframe_requests counter. (The headset side uses
// ClientPeer/ClientConfig instead.)
type Config struct {
	ICEServers     []webrtc.ICEServer
	Stamper        *rtpstamp.Stamper
	KeyframeRequest KeyframeRequester
	OnDataOpen      func()
	OnDataClose     func()
	OnDataError     func(error)
	OnDataMessage   DataHandler
}

// NewServerPeer creates a Peer with a send-only video track and an
// offering-side data channel, bundled on a single ICE/DTLS transport
// (§4.4: "bundle policy max-bundle").
func NewServerPeer(id string, cfg Config) (*Peer, error) {
	settingEngine := webrtc.SettingEngine{}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: videoCodec,
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("wrtcpeer: register codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   cfg.ICEServers,
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("wrtcpeer: new peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(videoCodec, "video", "xrrelay")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("wrtcpeer: new video track: %w", err)
	}

	// §4.4 step 4: the server only ever sends video, so the transceiver is
	// declared send-only rather than the sendrecv AddTrack would negotiate.
	transceiver, err := pc.AddTransceiverFromTrack(videoTrack, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("wrtcpeer: add transceiver: %w", err)
	}
	rtpSender := transceiver.Sender()

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("wrtcpeer: create data channel: %w", err)
	}

	p := &Peer{
		ID:          id,
		pc:          pc,
		videoTrack:  videoTrack,
		stamper:     cfg.Stamper,
		keyframeReq: cfg.KeyframeRequest,
		onDataOpen:  cfg.OnDataOpen,
		onDataClose: cfg.OnDataClose,
		onDataError: cfg.OnDataError,
		dataHandler: cfg.OnDataMessage,
	}
	p.bindDataChannel(dc)
	p.watchRTCP(rtpSender)

	return p, nil
}

func (p *Peer) bindDataChannel(dc *webrtc.DataChannel) {
	p.dataChannel = dc
	dc.OnOpen(func() {
		p.dcReady.Store(true)
		logx.Info("wrtcpeer: %s data channel open", p.ID)
		if p.onDataOpen != nil {
			p.onDataOpen()
		}
	})
	dc.OnClose(func() {
		p.dcReady.Store(false)
		logx.Info("wrtcpeer: %s data channel closed", p.ID)
		if p.onDataClose != nil {
			p.onDataClose()
		}
	})
	dc.OnError(func(err error) {
		logx.Error("wrtcpeer: %s data channel error: %v", p.ID, err)
		if p.onDataError != nil {
			p.onDataError(err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.dataHandler != nil {
			p.dataHandler(msg.Data)
		}
	})
}

// watchRTCP drains RTCP packets on the video sender and maps PLI/FIR to a
// keyframe request (§6 supplement, grounded in handlers_gin.go).
func (p *Peer) watchRTCP(rtpSender *webrtc.RTPSender) {
	utils.GoSafe("wrtcpeer-rtcp-"+p.ID, func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := rtpSender.Read(buf)
			if err != nil {
				return
			}
			pkts, err := rtcp.Unmarshal(buf[:n])
			if err != nil {
				continue
			}
			for _, pkt := range pkts {
				switch pkt.(type) {
				case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
					metrics.KeyframeRequests.Add(1)
					if p.keyframeReq != nil {
						p.keyframeReq()
					}
				}
			}
		}
	})
}

// CreateOffer starts the offer/answer flow server-side (§4.4 step 2).
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("wrtcpeer: create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("wrtcpeer: set local description: %w", err)
	}
	return offer, nil
}

// SetAnswer applies the client's SDP answer (§4.3 sdp-answer event).
func (p *Peer) SetAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("wrtcpeer: set remote description: %w", err)
	}
	return nil
}

// AddICECandidate forwards a trickled candidate (§4.3 ice-candidate event).
func (p *Peer) AddICECandidate(candidate string, mLineIndex uint16) error {
	if err := p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMLineIndex: &mLineIndex,
	}); err != nil {
		return fmt.Errorf("wrtcpeer: add ice candidate: %w", err)
	}
	return nil
}

// WriteRTP stamps and writes one RTP packet to the video track (§4.2).
// The caller owns the packet's sequence number and timestamp; WriteRTP only
// applies the metadata extension and forwards the write.
func (p *Peer) WriteRTP(pkt *rtp.Packet) error {
	if p.stamper != nil {
		p.stamper.Stamp(pkt)
	}
	if err := p.videoTrack.WriteRTP(pkt); err != nil {
		return fmt.Errorf("wrtcpeer: write rtp: %w", err)
	}
	return nil
}

// SendUpMessage sends a pre-encoded UpMessage payload over the data channel.
// It is a no-op (not an error) if the channel isn't open yet — callers are
// expected to drop telemetry rather than block or queue (§4.6 framebus
// philosophy carried into the uplink direction too).
func (p *Peer) SendUpMessage(payload []byte) error {
	if !p.dcReady.Load() {
		metrics.UpMessagesDropped.Add(1)
		return nil
	}
	if err := p.dataChannel.Send(payload); err != nil {
		return fmt.Errorf("wrtcpeer: data channel send: %w", err)
	}
	metrics.UpMessagesSent.Add(1)
	return nil
}

// OnConnectionStateChange registers fn to observe PeerConnection state
// transitions (§4.4: failed/closed triggers teardown in the Registry).
func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

// Close tears down the peer connection. Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pc.Close()
	})
	return err
}
