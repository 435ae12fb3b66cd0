// Package demux adapts github.com/erparts/reisen's ffmpeg-backed container
// reader into the media.File contract the Source session drives. It is
// grounded in the teacher package's controller_yes_audio.go and
// controller_no_audio.go, which each ran their own private
// "read packets until the stream I care about produces a frame" loop
// (internalReadAudioFrame / internalReadVideoFrame); this package
// generalizes that loop into one demuxer that serves every enabled track
// through a single media.File.Read, exactly the shape the Source session
// needs.
//
// reisen's stream.ReadVideoFrame/ReadAudioFrame already perform the actual
// libav decode — there is no separate coded-bytes stage to hand to a
// MediaDevice decoder. File.Read therefore returns fully decoded PCM/RGBA
// MediaFrames, and the Codec session in front of a track built on this
// package should be wired to Passthrough, which satisfies the Codec
// session's push/pull contract without doing any further work.
package demux

import (
	"fmt"
	"time"

	"github.com/erparts/reisen"

	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// Passthrough is a no-op media.Device: Push stores the frame it was handed,
// Pull returns and clears it. It stands in for "decode" on a track whose
// File already decodes while demuxing (see package docs).
type Passthrough struct {
	pending *media.MediaFrame
	eof     bool
	formats media.Config
}

// NewPassthroughDecoder builds a Passthrough reporting the given track
// format as its own Formats(), matching the DecoderFactory signature a
// player.Options.Decoder expects.
func NewPassthroughDecoder(trackFormat media.Config, _ string) (media.Device, error) {
	return &Passthrough{formats: trackFormat}, nil
}

func (p *Passthrough) Formats() media.Config        { return p.formats }
func (p *Passthrough) Configure(media.Config) error { return nil }

func (p *Passthrough) Push(frame *media.MediaFrame) error {
	if frame == nil {
		p.eof = true
		return nil
	}
	p.pending = frame
	return nil
}

func (p *Passthrough) Pull() (*media.MediaFrame, error) {
	if p.pending != nil {
		f := p.pending
		p.pending = nil
		return f, nil
	}
	return nil, nil
}

func (p *Passthrough) Reset() error {
	p.pending = nil
	p.eof = false
	return nil
}

// track indices are assigned contiguously in the order streams are
// discovered: video first (if present), then audio. The Source session
// relies on this contiguity (it iterates formats.Track(0..count-1)).
const (
	videoTrack = 0
	audioTrack = 1
)

// File adapts one opened reisen.Media into a media.File. Construct with
// Open; Formats()/Read() then drive a Source session exactly like any other
// MediaFile collaborator.
type File struct {
	media *reisen.Media
	video *reisen.VideoStream
	audio *reisen.AudioStream

	hasVideo, hasAudio         bool
	videoEnabled, audioEnabled bool
	decodeOpen                 bool
}

// Open opens path with reisen and enumerates its first video and first
// audio stream, mirroring newPlayer's "first stream of each kind, warn on
// extras" behavior in the teacher package.
func Open(path string) (*File, error) {
	m, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fmt.Errorf("demux: opening %q: %w", path, err)
	}

	videoStreams := m.VideoStreams()
	audioStreams := m.AudioStreams()
	if len(videoStreams) == 0 && len(audioStreams) == 0 {
		return nil, fmt.Errorf("%w: %q has no video or audio streams", media.ErrBadFormat, path)
	}

	f := &File{media: m}
	if len(videoStreams) > 0 {
		f.video = videoStreams[0]
		f.hasVideo = true
		f.videoEnabled = true
	}
	if len(audioStreams) > 0 {
		f.audio = audioStreams[0]
		f.hasAudio = true
		f.audioEnabled = true
	}
	return f, nil
}

// Formats implements media.File, publishing one sub-Config per stream found
// by Open (enabled or not) under contiguous track-N keys.
func (f *File) Formats() media.Config {
	cfg := media.Config{}
	count := 0
	if f.hasVideo {
		w, h := f.video.Width(), f.video.Height()
		dur, _ := f.video.Duration()
		cfg[fmt.Sprintf("%s-%d", media.KeyTrack, videoTrack)] = media.Config{
			media.KeyType:     int(media.KindVideo),
			media.KeyWidth:    w,
			media.KeyHeight:   h,
			media.KeyFormat:   int(media.PixelRGBA), // reisen decodes straight to RGBA
			media.KeyDuration: mediatime.FromMicroseconds(dur.Microseconds()),
		}
		count++
	}
	if f.hasAudio {
		dur, _ := f.audio.Duration()
		cfg[fmt.Sprintf("%s-%d", media.KeyTrack, audioTrack)] = media.Config{
			media.KeyType:       int(media.KindAudio),
			media.KeySampleRate: f.audio.SampleRate(),
			media.KeyChannels:   f.audio.ChannelCount(),
			media.KeyDuration:   mediatime.FromMicroseconds(dur.Microseconds()),
		}
		count++
	}
	cfg[media.KeyCount] = count
	return cfg
}

// Configure handles the two keys the Source session writes: Tracks (a
// bitmask of which of videoTrack/audioTrack stay enabled) and Seek
// (rewind every stream found by Open to a microsecond position).
func (f *File) Configure(cfg media.Config) error {
	if mask, ok := cfg.Int(media.KeyTracks); ok {
		f.videoEnabled = f.hasVideo && mask&(1<<videoTrack) != 0
		f.audioEnabled = f.hasAudio && mask&(1<<audioTrack) != 0
	}
	if us, ok := cfg.Int(media.KeySeek); ok {
		return f.rewind(time.Duration(us) * time.Microsecond)
	}
	return nil
}

func (f *File) rewind(pos time.Duration) error {
	if f.hasVideo {
		if err := f.video.Rewind(pos); err != nil {
			return err
		}
	}
	if f.hasAudio {
		if err := f.audio.Rewind(pos); err != nil {
			return err
		}
	}
	return nil
}

// Read implements media.File. It lazily opens the decode context on first
// use, honors ReadClosestSync as a rewind-then-read-next, and otherwise
// reads and decodes packets in container order — generalizing
// internalReadVideoFrame/internalReadAudioFrame from the teacher package
// into one loop that routes by packet.StreamIndex() instead of being
// hardcoded to a single stream.
func (f *File) Read(mode media.ReadMode, ts mediatime.Time) (*media.MediaFrame, error) {
	if !f.decodeOpen {
		if err := f.openDecode(); err != nil {
			return nil, err
		}
	}

	if mode == media.ReadClosestSync && ts.IsValid() {
		if err := f.rewind(time.Duration(ts.Microseconds()) * time.Microsecond); err != nil {
			return nil, fmt.Errorf("%w: seek to %v: %v", media.ErrBadContent, ts, err)
		}
	}

	for {
		packet, found, err := f.media.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", media.ErrBadContent, err)
		}
		if !found {
			return nil, nil // EOF
		}

		switch packet.Type() {
		case reisen.StreamVideo:
			if !f.videoEnabled || f.video == nil || packet.StreamIndex() != f.video.Index() {
				continue
			}
			frame, frameFound, err := f.video.ReadVideoFrame()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", media.ErrBadContent, err)
			}
			if !frameFound || frame == nil {
				continue // frame skip
			}
			pres, err := frame.PresentationOffset()
			if err != nil {
				return nil, err
			}
			return &media.MediaFrame{
				TrackID:  videoTrack,
				Flags:    media.FlagSync,
				Timecode: mediatime.FromMicroseconds(pres.Microseconds()),
				Kind:     media.KindVideo,
				Image:    media.ImageFormat{Pixel: media.PixelRGBA, Width: f.video.Width(), Height: f.video.Height()},
				Planes:   [4][]byte{frame.Data()},
			}, nil

		case reisen.StreamAudio:
			if !f.audioEnabled || f.audio == nil || packet.StreamIndex() != f.audio.Index() {
				continue
			}
			frame, frameFound, err := f.audio.ReadAudioFrame()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", media.ErrBadContent, err)
			}
			if !frameFound || frame == nil {
				continue
			}
			pres, err := frame.PresentationOffset()
			if err != nil {
				return nil, err
			}
			return &media.MediaFrame{
				TrackID:  audioTrack,
				Flags:    media.FlagSync,
				Timecode: mediatime.FromMicroseconds(pres.Microseconds()),
				Kind:     media.KindAudio,
				Audio:    media.AudioFormat{Format: media.SampleS16, Channels: f.audio.ChannelCount(), Freq: f.audio.SampleRate()},
				Planes:   [4][]byte{frame.Data()},
			}, nil

		default:
			continue // uninteresting stream (e.g. subtitles we don't select)
		}
	}
}

func (f *File) openDecode() error {
	if err := f.media.OpenDecode(); err != nil {
		return fmt.Errorf("%w: %v", media.ErrBadFormat, err)
	}
	if f.videoEnabled {
		if err := f.video.Open(); err != nil {
			return err
		}
	}
	if f.audioEnabled {
		if err := f.audio.Open(); err != nil {
			return err
		}
	}
	f.decodeOpen = true
	return nil
}

// Close releases the underlying decode context and the media handle.
func (f *File) Close() error {
	if f.decodeOpen {
		if f.hasVideo {
			_ = f.video.Close()
		}
		if f.hasAudio {
			_ = f.audio.Close()
		}
		_ = f.media.CloseDecode()
	}
	f.media.Close()
	return nil
}
