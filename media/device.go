package media

import (
	"errors"

	"github.com/playgraph/tiger/mediatime"
)

// Error kinds. These are domain-level: a given collaborator wraps one of
// these with fmt.Errorf("%w: ...") so callers can classify failures with
// errors.Is without caring which concrete device raised them.
var (
	ErrBadFormat        = errors.New("media: bad format")
	ErrBadContent       = errors.New("media: bad content")
	ErrNotSupported     = errors.New("media: not supported")
	ErrResourceBusy     = errors.New("media: resource busy")
	ErrInvalidOperation = errors.New("media: invalid operation")
	ErrUnknown          = errors.New("media: unknown device error")
)

// Device is the uniform push/pull/reset capability shared by decoders and
// sinks (MediaDevice in the design). Push/Pull follow a backpressure
// protocol: Push may return ErrResourceBusy, meaning "call Pull, then retry
// this same Push"; Pull returns (nil, nil) both for "not ready yet" and for
// "EOS already observed" — callers disambiguate using their own push/EOS
// bookkeeping, exactly as the codec session does in onPacketReady/decode.
type Device interface {
	Formats() Config
	Configure(cfg Config) error
	// Push delivers a frame, or nil to signal EOS.
	Push(frame *MediaFrame) error
	// Pull retrieves a frame. (nil, nil) means "not ready" pre-EOS, or "EOS
	// reached" post-EOS.
	Pull() (*MediaFrame, error)
	// Reset drops internal state; subsequent behavior matches a freshly
	// constructed device with the same configuration.
	Reset() error
}

// ReadMode selects how MediaFile.Read interprets its timestamp argument.
type ReadMode int

const (
	ReadNext ReadMode = iota
	ReadClosestSync
	ReadLastSync
	ReadNextSync
	ReadPeek
	ReadIndex
)

// File is the MediaFile contract a demuxer exposes to a Source session.
type File interface {
	Formats() Config
	Configure(cfg Config) error
	// Read returns the next packet per mode, or (nil, nil) at EOS.
	Read(mode ReadMode, ts mediatime.Time) (*MediaFrame, error)
}
