package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// fakeSocket is an in-memory WSReadWriter: writes go to `sent`, reads are
// served from `inbox` until it is closed, then Read returns errClosed.
type fakeSocket struct {
	mu     sync.Mutex
	sent   []wireMessage
	inbox  chan []byte
	closed bool
}

var errClosed = errors.New("fakeSocket: closed")

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbox: make(chan []byte, 8)}
}

func (f *fakeSocket) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case b, ok := <-f.inbox:
		if !ok {
			return 0, nil, errClosed
		}
		return websocket.MessageText, b, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeSocket) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) push(t *testing.T, msg wireMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.inbox <- b
}

func (f *fakeSocket) close() {
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
}

func TestBridgeDispatchesSDPAnswerAndCandidate(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var events []Event
	bus.On(EventSDPAnswer, func(e Event) { mu.Lock(); events = append(events, e); mu.Unlock() })
	bus.On(EventICECandidate, func(e Event) { mu.Lock(); events = append(events, e); mu.Unlock() })
	bus.On(EventClientDisconnected, func(e Event) { mu.Lock(); events = append(events, e); mu.Unlock() })

	b := NewBridge(bus)
	sock := newFakeSocket()
	client := newSocketClient("client-1", sock)

	b.mu.Lock()
	b.clients[client.id] = client
	b.mu.Unlock()

	sock.push(t, wireMessage{Type: "sdp-answer", SDP: "v=0..."})
	sock.push(t, wireMessage{Type: "ice-candidate", Candidate: "candidate:1 ...", MLineIdx: 0})
	// Empty candidate strings must be ignored, not emitted (§4.3).
	sock.push(t, wireMessage{Type: "ice-candidate", Candidate: ""})
	sock.close()

	b.readLoop(context.Background(), client)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (sdp-answer, ice-candidate, disconnected): %+v", len(events), events)
	}
	if events[0].Type != EventSDPAnswer || events[0].SDP != "v=0..." {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != EventICECandidate || events[1].Candidate.Candidate != "candidate:1 ..." {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Type != EventClientDisconnected {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
}

func TestBridgeDisconnectIsIdempotent(t *testing.T) {
	bus := NewBus()
	var count int
	bus.On(EventClientDisconnected, func(e Event) { count++ })

	b := NewBridge(bus)
	b.clients["client-1"] = newSocketClient("client-1", newFakeSocket())

	b.disconnect("client-1")
	b.disconnect("client-1")

	if count != 1 {
		t.Fatalf("expected disconnect event exactly once, got %d", count)
	}
}

func TestBridgeSendOfferUnknownClientIsNoop(t *testing.T) {
	b := NewBridge(NewBus())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.SendOffer(ctx, "does-not-exist", "v=0..."); err != nil {
		t.Fatalf("SendOffer to unknown client should be a no-op, got: %v", err)
	}
}
