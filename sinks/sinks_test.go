package sinks

import (
	"io"
	"testing"

	"github.com/playgraph/tiger/media"
)

func TestVideoSinkPushWritesPixelsAndResetClears(t *testing.T) {
	sink := NewVideoSink(2, 2)
	rgba := make([]byte, 2*2*4)
	for i := range rgba {
		rgba[i] = 0xFF
	}
	frame := &media.MediaFrame{
		Image:  media.ImageFormat{Pixel: media.PixelRGBA, Width: 2, Height: 2},
		Planes: [4][]byte{rgba},
	}
	if err := sink.Push(frame); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := sink.Push(nil); err != nil {
		t.Fatalf("push eos: %v", err)
	}
	if err := sink.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestVideoSinkRejectsUnsupportedFormat(t *testing.T) {
	sink := NewVideoSink(2, 2)
	frame := &media.MediaFrame{Image: media.ImageFormat{Pixel: media.PixelYUV420P}}
	if err := sink.Push(frame); err != media.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

// directAudioSink builds an AudioSink without an ebiten audio.Context,
// exercising only the queue/Read plumbing that NewAudioSink wires up.
func directAudioSink() *AudioSink {
	return &AudioSink{format: media.AudioFormat{Channels: 2, Freq: 44100}}
}

func TestAudioSinkQueuesAndReadsBytes(t *testing.T) {
	s := directAudioSink()
	frame := &media.MediaFrame{Planes: [4][]byte{{1, 2, 3, 4}}}
	if err := s.Push(frame); err != nil {
		t.Fatalf("push: %v", err)
	}

	buf := make([]byte, 2)
	n, err := s.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("read = %d, %v", n, err)
	}
	if buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("unexpected bytes: %v", buf)
	}

	n, err = s.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("second read = %d, %v", n, err)
	}
	if buf[0] != 3 || buf[1] != 4 {
		t.Fatalf("unexpected bytes: %v", buf)
	}
}

func TestAudioSinkReadReturnsEOFAfterDrainedAndEOS(t *testing.T) {
	s := directAudioSink()
	if err := s.Push(nil); err != nil {
		t.Fatalf("push eos: %v", err)
	}
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("expected (0, io.EOF), got (%d, %v)", n, err)
	}
}

func TestAudioSinkPushBackpressure(t *testing.T) {
	s := directAudioSink()
	big := make([]byte, maxQueuedBytes+1)
	if err := s.Push(&media.MediaFrame{Planes: [4][]byte{big}}); err != nil {
		t.Fatalf("first push should succeed: %v", err)
	}
	if err := s.Push(&media.MediaFrame{Planes: [4][]byte{{1}}}); err != media.ErrResourceBusy {
		t.Fatalf("expected ErrResourceBusy, got %v", err)
	}
}
