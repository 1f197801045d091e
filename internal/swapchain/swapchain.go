// Package swapchain implements the swapchain buffer mapper (C8, §4.8):
// given a fixed-size ring of compositor images, produce an O(1) mapping
// from image index to a reusable framebuffer identity.
package swapchain

import "fmt"

// Framebuffer is an opaque handle to a client-side framebuffer object bound
// to one swapchain image. The real GL object lives behind the Compositor
// this mapping is handed to; this package only tracks identity, not the GL
// call that created it.
type Framebuffer uint32

// Mapper holds a fixed framebuffer identity per swapchain image index,
// enumerated once at construction and valid for the swapchain's lifetime.
type Mapper struct {
	framebuffers []Framebuffer
}

// ImageAllocator allocates a Framebuffer for one swapchain image; called
// exactly once per image at construction time. The concrete allocator
// (real glGenFramebuffers/glFramebufferTexture2D calls) lives outside this
// package, behind the Compositor contract referenced in §4.6 — unavailable
// in this module since there is no Go OpenXR/EGL binding.
type ImageAllocator func(imageIndex int) (Framebuffer, error)

// New enumerates imageCount swapchain images and builds the fixed mapping.
// imageCount must be > 0.
func New(imageCount int, allocate ImageAllocator) (*Mapper, error) {
	if imageCount <= 0 {
		return nil, fmt.Errorf("swapchain: image count must be positive, got %d", imageCount)
	}
	fbs := make([]Framebuffer, imageCount)
	for i := 0; i < imageCount; i++ {
		fb, err := allocate(i)
		if err != nil {
			return nil, fmt.Errorf("swapchain: allocate framebuffer for image %d: %w", i, err)
		}
		fbs[i] = fb
	}
	return &Mapper{framebuffers: fbs}, nil
}

// FramebufferAt returns the framebuffer identity bound to imageIndex. O(1).
func (m *Mapper) FramebufferAt(imageIndex int) (Framebuffer, error) {
	if imageIndex < 0 || imageIndex >= len(m.framebuffers) {
		return 0, fmt.Errorf("swapchain: image index %d out of range [0,%d)", imageIndex, len(m.framebuffers))
	}
	return m.framebuffers[imageIndex], nil
}

// ImageCount reports how many swapchain images this mapper covers.
func (m *Mapper) ImageCount() int {
	return len(m.framebuffers)
}
