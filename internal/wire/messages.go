// Package wire defines the three records that cross the client/server
// boundary — FrameMeta, UpMessage, DownMessage — and their codec (§3, §4.1).
//
// The encoding is msgpack: a compact, self-describing binary format whose
// map-of-fields shape gives forward compatibility for free (an unrecognized
// key is simply skipped by the decoder) and whose `omitempty` struct tags
// realize "fields with no meaningful value are omitted" directly, without a
// hand-rolled TLV scheme. FrameMeta must still fit in a two-byte RTP header
// extension (≤ 255 bytes, §4.1); Encode does not enforce that itself — the
// stamper (internal/rtpstamp) is the one place that cares, and it checks.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// FrameMeta is the per-frame record authored at render time, carried in-band
// with the encoded video inside a DownMessage on the RTP header extension.
// Nothing in this module sends it over the data channel.
type FrameMeta struct {
	FrameSequenceID int64                `msgpack:"seq"`
	Poses           [2]xrtypes.Pose      `msgpack:"poses"`
	EnvBlendMode    xrtypes.EnvBlendMode `msgpack:"blend,omitempty"`
	BlackThreshold  *float32             `msgpack:"blackThr,omitempty"`
}

// Encode serializes a FrameMeta to its wire form.
func Encode(m FrameMeta) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode frame meta: %w", err)
	}
	return b, nil
}

// Decode parses a FrameMeta previously produced by Encode. Unknown fields
// (from a newer server) are skipped by the underlying msgpack decoder, and a
// FrameMeta decoded from bytes that never set EnvBlendMode comes back as
// BlendModeUnset, which callers must treat as "keep current policy".
func Decode(b []byte) (FrameMeta, error) {
	var m FrameMeta
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return FrameMeta{}, fmt.Errorf("wire: decode frame meta: %w", err)
	}
	return m, nil
}

// TrackingReport is the HMD viewSpace->worldSpace pose at a given predicted
// display time, reported every frame regardless of whether a new sample
// arrived.
type TrackingReport struct {
	Pose                 xrtypes.Pose `msgpack:"pose"`
	PredictedDisplayTime int64        `msgpack:"pdt"`
}

// FrameTimingReport is emitted only when a NEW_SAMPLE frame was composited
// (§4.6 step 13).
type FrameTimingReport struct {
	FrameSequenceID    int64 `msgpack:"seq"`
	DecodeCompleteTime int64 `msgpack:"decodeTime"`
	BeginFrameTime     int64 `msgpack:"beginTime"`
	DisplayTime        int64 `msgpack:"displayTime"`
}

// UpMessage is a client->server record on the data channel. Exactly one of
// Tracking or Frame is set (§3); UpMessageID is independent of
// FrameSequenceID.
type UpMessage struct {
	UpMessageID int64              `msgpack:"id"`
	Tracking    *TrackingReport    `msgpack:"tracking,omitempty"`
	Frame       *FrameTimingReport `msgpack:"frame,omitempty"`
}

// EncodeUp serializes an UpMessage for transmission on the data channel.
func EncodeUp(m UpMessage) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode up message: %w", err)
	}
	return b, nil
}

// DecodeUp parses an UpMessage received on the data channel.
func DecodeUp(b []byte) (UpMessage, error) {
	var m UpMessage
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return UpMessage{}, fmt.Errorf("wire: decode up message: %w", err)
	}
	return m, nil
}

// DownMessage is server-authored and injected into RTP extensions. It
// currently just wraps a FrameMeta; the separate type leaves room to grow
// per-frame control fields without disturbing FrameMeta's own wire shape
// (§3: "reserved for future per-frame control").
type DownMessage struct {
	Meta FrameMeta `msgpack:"meta"`
}

func EncodeDown(m DownMessage) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode down message: %w", err)
	}
	return b, nil
}

func DecodeDown(b []byte) (DownMessage, error) {
	var m DownMessage
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return DownMessage{}, fmt.Errorf("wire: decode down message: %w", err)
	}
	return m, nil
}
