// Package signaling implements the signaling bridge (§4.3): mapping
// WebSocket signaling events to WebRTC peer lifecycle. The wiring itself
// (§4.9 "GObject signal/callback wiring maps to a small event-bus
// abstraction") is a typed event bus modeled on peer-calls' Message/Payload
// pattern — components register handlers per EventType, the Bus dispatches
// synchronously on whichever goroutine called Emit (the read loop's
// goroutine, i.e. "the emitting thread").
package signaling

// EventType enumerates the signaling events named in §6.
type EventType int

const (
	EventClientConnected EventType = iota
	EventClientDisconnected
	EventSDPAnswer
	EventICECandidate
)

func (t EventType) String() string {
	switch t {
	case EventClientConnected:
		return "ws-client-connected"
	case EventClientDisconnected:
		return "ws-client-disconnected"
	case EventSDPAnswer:
		return "sdp-answer"
	case EventICECandidate:
		return "ice-candidate"
	default:
		return "unknown"
	}
}

// ICECandidate carries a trickled candidate (§6).
type ICECandidate struct {
	SDPMLineIndex uint16
	Candidate     string
}

// Event is dispatched on the Bus. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	ClientID  string
	SDP       string
	Candidate ICECandidate
}

// Handler reacts to one Event. Handlers run on the caller of Emit and must
// not block for long — the bridge's read loop calls Emit inline.
type Handler func(Event)

// Bus is the typed event-bus abstraction components register against.
type Bus struct {
	handlers map[EventType][]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// On registers h to run whenever an event of type t is emitted.
func (b *Bus) On(t EventType, h Handler) {
	b.handlers[t] = append(b.handlers[t], h)
}

// Emit dispatches e to every handler registered for e.Type, in registration
// order, on the calling goroutine.
func (b *Bus) Emit(e Event) {
	for _, h := range b.handlers[e.Type] {
		h(e)
	}
}
