package wrtcpeer

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/metrics"
	"github.com/xrrelay/xrrelay/internal/signaling"
)

// Registry tracks one Peer per connected client and wires the signaling
// Bus's events to peer lifecycle, adapted from the teacher's
// internal/device/manager.go Manager — trimmed to a single map since this
// domain has no separate Android-device-session side.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer

	iceServers []webrtc.ICEServer
	bridge     *signaling.Bridge
	factory    PeerFactory
}

// NewRegistry wires a Registry to bus, registering handlers for every
// EventType the bridge emits. Peer construction itself (including the
// per-client rtpstamp.Stamper) is left to the PeerFactory installed via
// SetFactory, so Registry itself never constructs a Stamper.
func NewRegistry(bus *signaling.Bus, bridge *signaling.Bridge, iceServers []webrtc.ICEServer) *Registry {
	r := &Registry{
		peers:      make(map[string]*Peer),
		iceServers: iceServers,
		bridge:     bridge,
	}

	bus.On(signaling.EventClientConnected, r.onClientConnected)
	bus.On(signaling.EventClientDisconnected, r.onClientDisconnected)
	bus.On(signaling.EventSDPAnswer, r.onSDPAnswer)
	bus.On(signaling.EventICECandidate, r.onICECandidate)

	return r
}

// PeerFactory builds the Peer for a newly connected client id. Supplied by
// the server wiring (cmd/xr-server) so Registry doesn't need to know about
// rtpstamp.Stamper construction or keyframe-request plumbing directly.
type PeerFactory func(clientID string) (*Peer, error)

// SetFactory installs the peer constructor used on every
// ws-client-connected event. Must be called before the bridge starts
// accepting connections.
func (r *Registry) SetFactory(f PeerFactory) {
	r.factory = f
}

func (r *Registry) onClientConnected(e signaling.Event) {
	if r.factory == nil {
		logx.Error("wrtcpeer: registry has no peer factory, dropping client %s", e.ClientID)
		return
	}

	peer, err := r.factory(e.ClientID)
	if err != nil {
		logx.Error("wrtcpeer: failed to create peer for %s: %v", e.ClientID, err)
		return
	}

	r.mu.Lock()
	r.peers[e.ClientID] = peer
	r.mu.Unlock()
	metrics.ActivePeers.Add(1)

	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			r.remove(e.ClientID)
		}
	})

	offer, err := peer.CreateOffer()
	if err != nil {
		logx.Error("wrtcpeer: failed to create offer for %s: %v", e.ClientID, err)
		r.remove(e.ClientID)
		return
	}

	if err := r.bridge.SendOffer(context.Background(), e.ClientID, offer.SDP); err != nil {
		logx.Error("wrtcpeer: failed to send offer to %s: %v", e.ClientID, err)
	}
}

func (r *Registry) onClientDisconnected(e signaling.Event) {
	r.remove(e.ClientID)
}

func (r *Registry) onSDPAnswer(e signaling.Event) {
	peer, ok := r.get(e.ClientID)
	if !ok {
		return
	}
	if err := peer.SetAnswer(e.SDP); err != nil {
		logx.Error("wrtcpeer: %s: %v", e.ClientID, err)
	}
}

func (r *Registry) onICECandidate(e signaling.Event) {
	peer, ok := r.get(e.ClientID)
	if !ok {
		return
	}
	if err := peer.AddICECandidate(e.Candidate.Candidate, e.Candidate.SDPMLineIndex); err != nil {
		logx.Error("wrtcpeer: %s: %v", e.ClientID, err)
	}
}

func (r *Registry) get(clientID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[clientID]
	return p, ok
}

func (r *Registry) remove(clientID string) {
	r.mu.Lock()
	peer, ok := r.peers[clientID]
	delete(r.peers, clientID)
	r.mu.Unlock()
	if !ok {
		return
	}
	metrics.ActivePeers.Add(-1)
	if err := peer.Close(); err != nil {
		logx.Error("wrtcpeer: error closing peer %s: %v", clientID, err)
	}
}

// ListClientIDs returns the currently connected client ids (backs the admin
// GET /sessions endpoint).
func (r *Registry) ListClientIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}
