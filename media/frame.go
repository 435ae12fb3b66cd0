// Package media defines the data types and device contracts that the
// session graph is built around: the unified MediaFrame (packets and
// decoded frames share one representation), audio/image format
// descriptions, and the MediaFile / Device collaborator interfaces that
// demuxers, decoders and sinks must satisfy. Concrete demuxers, codecs and
// sinks are deliberately out of scope here — see the demux and sinks
// packages for the adapters this module ships.
package media

import "github.com/playgraph/tiger/mediatime"

// Flags is a bitset of per-frame properties carried alongside a timecode.
type Flags uint32

const (
	FlagSync          Flags = 1 << iota // keyframe / sync point
	FlagReferenceOnly                   // decode-only, never presented
	FlagDisposable                      // may be dropped under pressure (B-frames)
	FlagLeading                         // leading frame with an unresolved reference
	FlagPredicted                       // P-frame
	FlagBidirectional                   // B-frame
)

// Kind discriminates the payload carried by a MediaFrame.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
	KindSubtitle
	KindHardware // opaque GPU-surface-backed video frame
)

// SampleFormat enumerates the PCM sample encodings a decoder or sink may
// produce/consume.
type SampleFormat int

const (
	SampleU8 SampleFormat = iota
	SampleS16
	SampleS24
	SampleS32
	SampleF32
	SampleF64
)

// AudioFormat describes a PCM stream.
type AudioFormat struct {
	Format   SampleFormat
	Planar   bool
	Channels int
	Freq     int
}

// PixelFormat enumerates the image layouts a decoder or sink may
// produce/consume.
type PixelFormat int

const (
	PixelYUV420P PixelFormat = iota
	PixelYUV422P
	PixelYUV444P
	PixelNV12
	PixelNV21
	PixelRGB565
	PixelBGR565
	PixelRGB
	PixelBGR
	PixelRGBA
	PixelBGRA
	PixelARGB
	PixelABGR
	PixelHardwareSurface // opaque handle in MediaFrame.Opaque, e.g. a VideoToolbox surface
)

// Rect is an integer crop rectangle within the coded frame.
type Rect struct {
	X, Y, W, H int
}

// ImageFormat describes a video frame's pixel layout.
type ImageFormat struct {
	Pixel    PixelFormat
	Width    int
	Height   int
	Crop     Rect
	Rotation int // degrees, one of 0/90/180/270
}

// MediaFrame unifies demuxed packets and decoded frames behind one type: a
// shared header (track id, flags, timecode, duration) plus either an
// AudioFormat or ImageFormat payload in raw Planes, or an opaque hardware
// surface handle. A nil *MediaFrame denotes end-of-stream on whatever link
// it was delivered on.
type MediaFrame struct {
	TrackID  int
	Flags    Flags
	Timecode mediatime.Time
	Duration mediatime.Time

	Kind  Kind
	Audio AudioFormat
	Image ImageFormat

	Planes [4][]byte
	Opaque any // e.g. a GPU surface handle for KindHardware
}

// IsSync reports whether this frame is a random-access/sync point.
func (f *MediaFrame) IsSync() bool { return f != nil && f.Flags&FlagSync != 0 }
