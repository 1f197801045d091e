package signaling

import (
	"context"
	"encoding/json"
	"fmt"

	"nhooyr.io/websocket"
)

// ClientConn is the headset client's half of the signaling socket: it dials
// out to the bridge, reads the sdp-offer/ice-candidate messages the server
// sends, and writes back sdp-answer/ice-candidate (§4.3, client side of the
// same wire protocol Bridge speaks).
type ClientConn struct {
	conn *websocket.Conn
}

// Dial opens the signaling WebSocket at uri.
func Dial(ctx context.Context, uri string) (*ClientConn, error) {
	conn, _, err := websocket.Dial(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: dial %s: %w", uri, err)
	}
	return &ClientConn{conn: conn}, nil
}

// ClientEvent is one message read off the signaling socket.
type ClientEvent struct {
	Type      string
	SDP       string
	Candidate ICECandidate
}

// Read blocks for the next message from the server.
func (c *ClientConn) Read(ctx context.Context) (ClientEvent, error) {
	var msg wireMessage
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return ClientEvent{}, fmt.Errorf("signaling: client read: %w", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientEvent{}, fmt.Errorf("signaling: client unmarshal: %w", err)
	}
	return ClientEvent{
		Type:      msg.Type,
		SDP:       msg.SDP,
		Candidate: ICECandidate{SDPMLineIndex: msg.MLineIdx, Candidate: msg.Candidate},
	}, nil
}

// WriteAnswer sends the client's SDP answer (§4.3 step 4).
func (c *ClientConn) WriteAnswer(ctx context.Context, sdp string) error {
	return c.write(ctx, wireMessage{Type: "sdp-answer", SDP: sdp})
}

// WriteICECandidate trickles one local candidate to the server.
func (c *ClientConn) WriteICECandidate(ctx context.Context, candidate string, mLineIndex uint16) error {
	return c.write(ctx, wireMessage{Type: "ice-candidate", Candidate: candidate, MLineIdx: mLineIndex})
}

func (c *ClientConn) write(ctx context.Context, msg wireMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signaling: client marshal: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

// Close ends the signaling socket.
func (c *ClientConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
