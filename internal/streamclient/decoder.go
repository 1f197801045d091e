package streamclient

import "io"

// Texture is an opaque handle to a decoder-owned GL texture backing one
// decoded frame (§5 "Sample references a texture owned by the decoder").
// The real value is whatever the concrete Decoder implementation's GL
// context produces; this package never interprets it.
type Texture uint32

// Decoder turns Annex-B access units into decoder-owned textures. Decode
// may return ok=false with no error when the decoder is still accumulating
// reference frames and has not yet produced output (matches gmf's
// possibly-empty frame list on a given packet).
type Decoder interface {
	Decode(accessUnit []byte) (tex Texture, ok bool, err error)
	// Release returns a texture to the decoder's pool once the caller is
	// done compositing it.
	Release(tex Texture)
	io.Closer
}
