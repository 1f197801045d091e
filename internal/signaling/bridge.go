package signaling

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/utils"
	"nhooyr.io/websocket"
)

// Bridge maps one WebSocket connection per headset client to the Bus events
// named in §6: ws-client-connected/disconnected, sdp-answer, ice-candidate.
// It is the server-side half of §4.3; the per-client WebRTC peer lifecycle
// that reacts to these events lives in internal/wrtcpeer.
type Bridge struct {
	bus *Bus

	mu      sync.RWMutex
	clients map[string]*socketClient
}

// NewBridge wires a Bridge to bus. The caller is expected to register
// handlers on bus (typically wrtcpeer.Registry's wiring) before serving
// any connection.
func NewBridge(bus *Bus) *Bridge {
	return &Bridge{bus: bus, clients: make(map[string]*socketClient)}
}

// ServeHTTP upgrades the request to a WebSocket, assigns a client id, emits
// EventClientConnected, and runs the read loop until the socket closes —
// at which point EventClientDisconnected is emitted exactly once (§8
// property 8: disconnect is idempotent, there is only one path to it).
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logx.Error("signaling: accept failed: %v", err)
		return
	}

	clientID := uuid.NewString()
	client := newSocketClient(clientID, conn)

	b.mu.Lock()
	b.clients[clientID] = client
	b.mu.Unlock()

	logx.Info("signaling: client %s connected", clientID)
	b.bus.Emit(Event{Type: EventClientConnected, ClientID: clientID})

	// r.Context() is canceled as soon as ServeHTTP returns, so the read loop
	// runs on a context detached from that cancellation; it ends when the
	// socket closes.
	readCtx := context.WithoutCancel(r.Context())
	utils.GoSafe("signaling-read-"+clientID, func() {
		b.readLoop(readCtx, client)
	})
}

func (b *Bridge) readLoop(ctx context.Context, client *socketClient) {
	defer b.disconnect(client.id)

	for {
		msg, err := client.read(ctx)
		if err != nil {
			logx.Info("signaling: client %s read loop ending: %v", client.id, err)
			return
		}

		switch msg.Type {
		case "sdp-answer":
			b.bus.Emit(Event{Type: EventSDPAnswer, ClientID: client.id, SDP: msg.SDP})
		case "ice-candidate":
			if msg.Candidate == "" {
				// §4.3: ignore empty candidate strings (end-of-candidates marker).
				continue
			}
			b.bus.Emit(Event{
				Type:     EventICECandidate,
				ClientID: client.id,
				Candidate: ICECandidate{
					SDPMLineIndex: msg.MLineIdx,
					Candidate:     msg.Candidate,
				},
			})
		default:
			logx.Error("signaling: client %s sent unknown message type %q", client.id, msg.Type)
		}
	}
}

func (b *Bridge) disconnect(clientID string) {
	b.mu.Lock()
	_, existed := b.clients[clientID]
	delete(b.clients, clientID)
	b.mu.Unlock()

	if !existed {
		// Idempotent: a second disconnect for the same id is a no-op (§8 property 8).
		return
	}
	logx.Info("signaling: client %s disconnected", clientID)
	b.bus.Emit(Event{Type: EventClientDisconnected, ClientID: clientID})
}

// SendOffer forwards an SDP offer to the named client (§4.3 step 5).
func (b *Bridge) SendOffer(ctx context.Context, clientID, sdp string) error {
	b.mu.RLock()
	client, ok := b.clients[clientID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return client.writeOffer(ctx, sdp)
}
