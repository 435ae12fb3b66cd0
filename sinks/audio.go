package sinks

import (
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/playgraph/tiger/media"
)

// bufferSize mirrors the teacher package's playerBufferSize: large enough
// to ride out scheduling jitter on desktop, small enough to keep audio/video
// sync tight.
const bufferSize time.Duration = 200 * time.Millisecond

// maxQueuedBytes bounds how far Push may run ahead of what the audio
// backend has actually consumed before signaling ResourceBusy.
const maxQueuedBytes = 1 << 20

// AudioSink adapts raw PCM MediaFrame pushes into an ebiten/v2/audio.Player,
// the same "implement io.Reader, hand it to audio.Context.NewPlayer" pattern
// the teacher package's videoWithAudioController uses for its own playback.
type AudioSink struct {
	mu     sync.Mutex
	queue  []byte
	eof    bool
	paused bool

	player *audio.Player
	format media.AudioFormat
}

var _ media.Device = (*AudioSink)(nil)

// NewAudioSink builds a sink for format, backed by the process's current
// ebiten audio.Context. Returns media.ErrBadFormat if no context exists or
// its sample rate doesn't match format.
func NewAudioSink(format media.AudioFormat) (*AudioSink, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		return nil, media.ErrBadFormat
	}
	if ctx.SampleRate() != format.Freq {
		return nil, media.ErrBadFormat
	}
	s := &AudioSink{format: format}
	player, err := ctx.NewPlayer(&struct{ io.Reader }{s})
	if err != nil {
		return nil, err
	}
	player.SetBufferSize(bufferSize)
	s.player = player
	return s, nil
}

func (s *AudioSink) Formats() media.Config {
	return media.Config{
		media.KeySampleRate: s.format.Freq,
		media.KeyChannels:   s.format.Channels,
		media.KeyLatency:    int(bufferSize / time.Microsecond),
	}
}

func (s *AudioSink) Configure(cfg media.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pause, ok := cfg.Bool(media.KeyPause); ok {
		s.paused = pause
		if pause {
			s.player.Pause()
		} else {
			s.player.Play()
		}
	}
	return nil
}

// Push appends frame's raw samples to the playback queue, or marks EOF on a
// nil frame. Returns ErrResourceBusy if the queue has grown past
// maxQueuedBytes, matching the decoder-style backpressure contract so
// callers retry after a Pull.
func (s *AudioSink) Push(frame *media.MediaFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame == nil {
		s.eof = true
		return nil
	}
	if len(s.queue) > maxQueuedBytes {
		return media.ErrResourceBusy
	}
	for _, plane := range frame.Planes {
		s.queue = append(s.queue, plane...)
	}
	return nil
}

// Pull always returns (nil, nil): AudioSink is a write-only terminal device.
func (s *AudioSink) Pull() (*media.MediaFrame, error) { return nil, nil }

func (s *AudioSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = s.queue[:0]
	s.eof = false
	return nil
}

// Read implements io.Reader for the underlying audio.Player. It is called
// from ebiten's own audio goroutine, never from the render session's
// dispatcher, so it takes the mutex rather than relying on single-dispatcher
// discipline.
func (s *AudioSink) Read(buffer []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := copy(buffer, s.queue)
	remaining := copy(s.queue, s.queue[n:])
	s.queue = s.queue[:remaining]
	return n, nil
}
