// Package sinks provides the two concrete media.Device sinks the player
// drives directly: an ebiten.Image-backed video surface and an
// ebiten/v2/audio-backed audio device, grounded in the same
// image-write/Read-callback patterns the teacher package uses for its own
// video and audio presentation.
package sinks

import (
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/playgraph/tiger/media"
)

// VideoSink presents decoded RGBA video frames onto an *ebiten.Image, the
// same "copy frame into a reused image" pattern the teacher package's
// Player.copyFrame uses, generalized to the media.Device push/pull contract.
type VideoSink struct {
	mu     sync.Mutex
	image  *ebiten.Image
	width  int
	height int
	black  bool
}

var _ media.Device = (*VideoSink)(nil)

// NewVideoSink allocates a width x height surface, filled black until the
// first frame arrives.
func NewVideoSink(width, height int) *VideoSink {
	img := ebiten.NewImage(width, height)
	img.Fill(color.Black)
	return &VideoSink{image: img, width: width, height: height, black: true}
}

// Image returns the current surface. The returned image is reused across
// Push calls, mirroring CurrentFrame's documented reuse contract in the
// teacher package.
func (s *VideoSink) Image() *ebiten.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

func (s *VideoSink) Formats() media.Config {
	return media.Config{media.KeyWidth: s.width, media.KeyHeight: s.height, media.KeyLatency: 0}
}

func (s *VideoSink) Configure(cfg media.Config) error {
	if rotate, ok := cfg.Int(media.KeyRotate); ok {
		_ = rotate // accepted but not applied: frames are written unrotated
	}
	return nil
}

// Push writes frame's first plane (tightly packed RGBA) onto the surface,
// or clears it to black on EOS (nil frame).
func (s *VideoSink) Push(frame *media.MediaFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame == nil {
		if !s.black {
			s.image.Fill(color.Black)
			s.black = true
		}
		return nil
	}
	if frame.Image.Pixel != media.PixelRGBA {
		return media.ErrNotSupported
	}
	if len(frame.Planes[0]) == 0 {
		return media.ErrBadContent
	}
	s.image.WritePixels(frame.Planes[0])
	s.black = false
	return nil
}

// Pull always returns (nil, nil): VideoSink is a write-only terminal device.
func (s *VideoSink) Pull() (*media.MediaFrame, error) { return nil, nil }

func (s *VideoSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image.Fill(color.Black)
	s.black = true
	return nil
}
