package media

import "strconv"

// Config is the loosely-typed key/value bag used to describe formats and to
// carry configure() commands to a MediaFile or Device, mirroring the
// Message-style property bag the original engine passes around (file-level
// format, per-track sub-messages, sink tuning knobs like Pause/Seek/Mode).
type Config map[string]any

// Well-known keys. Collaborators may carry additional implementation-defined
// keys; these are the ones the core pipeline itself reads or writes.
const (
	KeyFormat     = "format"   // codec fourcc / PixelFormat / SampleFormat
	KeyType       = "type"     // Kind
	KeyDuration   = "duration" // mediatime.Time
	KeyCount      = "count"    // track count
	KeyTrack      = "track"    // per-track Config, keyed "track-0", "track-1", ...
	KeySampleRate = "sample-rate"
	KeyChannels   = "channels"
	KeyWidth      = "width"
	KeyHeight     = "height"
	KeyCSD        = "csd" // codec-specific-data: avcC / hvcC / ESDS bytes
	KeyLatency    = "latency"
	KeyPause      = "pause"
	KeySeek       = "seek"
	KeyMode       = "mode"
	KeyTracks     = "tracks" // bitmask
	KeyRotate     = "rotate"
)

// Mode values for the "mode" configure key.
const (
	ModeNormal   = "normal"
	ModeSoftware = "software"
	ModePreview  = "preview"
)

func (c Config) Int(key string) (int, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

func (c Config) Bool(key string) (bool, bool) {
	v, ok := c[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (c Config) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c Config) Bytes(key string) ([]byte, bool) {
	v, ok := c[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Track returns the i'th track's sub-Config, as published by MediaFile.Formats().
func (c Config) Track(i int) (Config, bool) {
	v, ok := c[trackKey(i)]
	if !ok {
		return nil, false
	}
	sub, ok := v.(Config)
	return sub, ok
}

func trackKey(i int) string {
	return KeyTrack + "-" + strconv.Itoa(i)
}
