// Package session implements the three pipeline stages of the playback
// graph (Source, Codec, Render), each driven by its own dispatch.Dispatcher
// and wired together purely through event/ push and request-with-reply
// events. No session ever calls another's methods directly; every
// cross-session interaction is a Fire landing on the target's dispatcher.
package session

import (
	"fmt"

	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// Logger is the narrow logging surface every session accepts, mirroring the
// teacher package's own pkgLogger indirection so callers can redirect
// diagnostics without a hard dependency on a specific logging library.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// TrackInfo is the per-track description the Source publishes alongside its
// PacketRequestEvent, mirroring MediaFile.Formats()'s per-track sub-Config.
type TrackInfo struct {
	Index  int
	Kind   media.Kind
	Format media.Config
	Req    *event.PacketRequestEvent
}

// Source adapts a media.File into one PacketRequestEvent per track.
type Source struct {
	disp   *dispatch.Dispatcher
	file   media.File
	logger Logger

	tracks   []*sourceTrack
	lastSeek mediatime.Time

	info *event.SessionInfoEvent
}

type sourceTrack struct {
	index   int
	kind    media.Kind
	format  media.Config
	queue   []*media.MediaFrame
	enabled bool
	req     *event.PacketRequestEvent
}

// NewSource builds a Source session on its own dispatcher and immediately
// runs initialization as the first job, so SessionInfo.Ready/Error is
// delivered asynchronously once the caller starts servicing its own
// dispatcher.
func NewSource(file media.File, info *event.SessionInfoEvent, logger Logger) *Source {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &Source{
		disp:     dispatch.New("source"),
		file:     file,
		logger:   logger,
		lastSeek: mediatime.Invalid,
		info:     info,
	}
	s.disp.Dispatch(dispatch.NewJob("source-init", s.onInit), 0)
	return s
}

// Dispatcher exposes the session's dispatcher so a Player can wire sibling
// sessions and tear this one down in order.
func (s *Source) Dispatcher() *dispatch.Dispatcher { return s.disp }

func (s *Source) onInit() {
	formats := s.file.Formats()
	count, _ := formats.Int(media.KeyCount)

	s.tracks = make([]*sourceTrack, 0, count)
	for i := 0; i < count; i++ {
		trackFmt, ok := formats.Track(i)
		if !ok {
			trackFmt = media.Config{}
		}
		kind := media.KindAudio
		if t, ok := trackFmt.Int(media.KeyType); ok {
			kind = media.Kind(t)
		}
		t := &sourceTrack{index: i, kind: kind, format: trackFmt, enabled: true}
		t.req = event.NewPacketRequest(s.disp,
			func(reply *event.PacketReadyEvent, ts mediatime.Time) { s.onRequestPacket(t, reply, ts) },
			func() { s.onTrackReleased(t) })
		s.tracks = append(s.tracks, t)
	}

	if s.info == nil {
		return
	}
	payload := media.Config{media.KeyCount: count}
	for _, t := range s.tracks {
		sub := media.Config{}
		for k, v := range t.format {
			sub[k] = v
		}
		payload[fmt.Sprintf("%s-%d", media.KeyTrack, t.index)] = sub
	}
	s.info.Fire(event.InfoReady, payload)
}

// Tracks returns one TrackInfo per demuxed track, including each track's
// PacketRequestEvent. Valid only after SessionInfo.Ready has fired.
func (s *Source) Tracks() []TrackInfo {
	out := make([]TrackInfo, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = TrackInfo{Index: t.index, Kind: t.kind, Format: t.format, Req: t.req}
	}
	return out
}

// onRequestPacket implements the per-track packet pull algorithm: seek
// flush, sequential refill-until-requester-nonempty, pop-and-reply,
// single-pass prefetch.
func (s *Source) onRequestPacket(t *sourceTrack, reply *event.PacketReadyEvent, ts mediatime.Time) {
	if ts.IsValid() && !ts.Equal(s.lastSeek) {
		s.flushAndSeek(ts)
	} else {
		s.refillUntil(t)
	}

	if len(t.queue) > 0 {
		pkt := t.queue[0]
		t.queue = t.queue[1:]
		reply.Fire(pkt)
	} else {
		reply.Fire(nil)
	}

	s.refillUntil(t)
}

func (s *Source) flushAndSeek(ts mediatime.Time) {
	for _, t := range s.tracks {
		t.queue = t.queue[:0]
	}
	s.lastSeek = ts
	pkt, err := s.file.Read(media.ReadClosestSync, ts)
	if err != nil {
		s.logger.Printf("source: closest-sync read at %v failed: %v", ts, err)
		return
	}
	s.routePacket(pkt)
}

// refillUntil pulls sequential packets from the demuxer, routing each to
// its track's queue, until t's queue is non-empty or the demuxer reports
// EOF. Disabled tracks are skipped by instructing the demuxer (via the
// Tracks config key) to stop reading them, and routePacket drops any packet
// that still arrives for a disabled track.
func (s *Source) refillUntil(t *sourceTrack) {
	for len(t.queue) == 0 {
		pkt, err := s.file.Read(media.ReadNext, mediatime.Invalid)
		if err != nil {
			s.logger.Printf("source: read failed for track %d: %v", t.index, err)
			return
		}
		if pkt == nil {
			return // EOF
		}
		s.routePacket(pkt)
	}
}

func (s *Source) routePacket(pkt *media.MediaFrame) {
	if pkt == nil {
		return
	}
	for _, t := range s.tracks {
		if t.index == pkt.TrackID {
			if t.enabled {
				t.queue = append(t.queue, pkt)
			}
			return
		}
	}
}

func (s *Source) onTrackReleased(t *sourceTrack) {
	t.enabled = false
	t.queue = t.queue[:0]
	mask := s.enabledMask()
	if err := s.file.Configure(media.Config{media.KeyTracks: mask}); err != nil {
		s.logger.Printf("source: disabling track %d: %v", t.index, err)
	}
}

func (s *Source) enabledMask() int {
	mask := 0
	for _, t := range s.tracks {
		if t.enabled {
			mask |= 1 << t.index
		}
	}
	return mask
}

// SetEnabledTracks restricts demuxing to the tracks named by mask (bit i ==
// track i). Used by the player to apply its track-selection decision right
// after SessionInfo.Ready.
func (s *Source) SetEnabledTracks(mask int) {
	s.disp.Dispatch(dispatch.NewJob("source-set-tracks", func() {
		for _, t := range s.tracks {
			t.enabled = mask&(1<<t.index) != 0
			if !t.enabled {
				t.queue = t.queue[:0]
			}
		}
		if err := s.file.Configure(media.Config{media.KeyTracks: mask}); err != nil {
			s.logger.Printf("source: configuring track mask %d: %v", mask, err)
		}
	}), 0)
}
