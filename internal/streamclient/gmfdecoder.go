// GMF-backed Decoder, adapted from the teacher's video/decoder.go: same
// gmf.CodecCtx lifecycle, generalized from returning a raw *gmf.Frame to
// the Texture/Release seam this package's Sample model needs. The frame's
// image data is assumed to already live in a GL texture by the time this
// adapter hands back a Texture id — how gmf's decoded frame becomes a
// bound GL texture is the external EGL/GL collaborator's job (§2
// Non-goals), not this package's.
package streamclient

import (
	"fmt"
	"sync"

	"github.com/3d0c/gmf"
)

// GMFDecoder decodes H.264 access units via ffmpeg (through gmf) and hands
// back Texture handles allocated by uploadToTexture.
type GMFDecoder struct {
	ctx *gmf.CodecCtx

	mu            sync.Mutex
	uploadToTexture func(*gmf.Frame) (Texture, error)
	releaseTexture  func(Texture)
}

// NewGMFDecoder opens an H.264 decode context. upload converts a decoded
// gmf.Frame into a GL texture handle (the external collaborator); release
// returns that handle to its pool. Both are supplied by the caller because
// this module has no GL binding of its own.
func NewGMFDecoder(upload func(*gmf.Frame) (Texture, error), release func(Texture)) (*GMFDecoder, error) {
	codec, err := gmf.FindDecoder(gmf.AV_CODEC_ID_H264)
	if err != nil {
		return nil, fmt.Errorf("streamclient: find decoder: %w", err)
	}
	ctx := gmf.NewCodecCtx(codec)
	if ctx == nil {
		return nil, fmt.Errorf("streamclient: new codec context")
	}
	if err := ctx.Open(nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("streamclient: open codec: %w", err)
	}
	return &GMFDecoder{ctx: ctx, uploadToTexture: upload, releaseTexture: release}, nil
}

// Decode feeds one Annex-B access unit to ffmpeg and uploads the first
// resulting frame to a texture, freeing any extra frames ffmpeg produced
// (matching the teacher's free-the-rest behavior in video/decoder.go).
func (d *GMFDecoder) Decode(accessUnit []byte) (Texture, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pkt := gmf.NewPacket()
	if err := pkt.SetData(accessUnit); err != nil {
		return 0, false, fmt.Errorf("streamclient: set packet data: %w", err)
	}
	pkt.SetSize(len(accessUnit))
	defer pkt.Free()

	frames, err := d.ctx.Decode(pkt)
	if err != nil {
		return 0, false, fmt.Errorf("streamclient: decode: %w", err)
	}
	if len(frames) == 0 {
		return 0, false, nil
	}

	frame := frames[0]
	defer frame.Free()
	for _, f := range frames[1:] {
		f.Free()
	}

	tex, err := d.uploadToTexture(frame)
	if err != nil {
		return 0, false, fmt.Errorf("streamclient: upload frame to texture: %w", err)
	}
	return tex, true, nil
}

// Release returns tex to the texture pool.
func (d *GMFDecoder) Release(tex Texture) {
	if d.releaseTexture != nil {
		d.releaseTexture(tex)
	}
}

// Close releases the decode context.
func (d *GMFDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}
