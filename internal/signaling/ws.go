package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nhooyr.io/websocket"
)

// WSReader and WSWriter abstract the half of nhooyr.io/websocket this
// package uses, the same seam peer-calls' wsclient.go cuts, so the bridge's
// read/write loops can be tested against a fake socket.
type WSReader interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

type WSWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
}

type WSReadWriter interface {
	WSReader
	WSWriter
}

// wireMessage is the JSON envelope exchanged over the signaling socket. SDP
// and ICE payloads are text, so JSON (rather than the data channel's
// msgpack) keeps this readable on the wire and easy to eyeball in a proxy
// log.
type wireMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	MLineIdx  uint16 `json:"mLineIndex,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

const writeTimeout = 5 * time.Second

// socketClient wraps one signaling WebSocket connection.
type socketClient struct {
	id   string
	conn WSReadWriter
}

func newSocketClient(id string, conn WSReadWriter) *socketClient {
	return &socketClient{id: id, conn: conn}
}

func (c *socketClient) writeOffer(ctx context.Context, sdp string) error {
	return c.write(ctx, wireMessage{Type: "sdp-offer", ClientID: c.id, SDP: sdp})
}

func (c *socketClient) write(ctx context.Context, msg wireMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signaling: marshal: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *socketClient) read(ctx context.Context) (wireMessage, error) {
	var msg wireMessage
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return msg, fmt.Errorf("signaling: read: %w", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("signaling: unmarshal: %w", err)
	}
	return msg, nil
}
