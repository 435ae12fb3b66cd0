// Package event implements the small push / request-with-reply plumbing the
// session graph is wired with. Firing an event schedules its handler onto
// the *target's* Dispatcher, so cross-session handoff is encoded entirely
// in the wiring of these events rather than in locks: within a session, its
// own dispatcher gives strict FIFO delivery and no handler ever needs to
// synchronize against its own state.
//
// Generation tagging — the mechanism that makes a seek cancel in-flight
// requests — is embedded directly in a PacketReadyEvent/FrameReadyEvent: the
// generation the receiver was created under is captured in the closure, and
// the handler compares it against the session's live generation before
// doing anything. A stale delivery is simply dropped.
package event

import (
	"sync"

	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// SessionInfoType enumerates the lifecycle notifications a session emits.
type SessionInfoType int

const (
	InfoReady SessionInfoType = iota
	InfoEnd
	InfoError
)

// SessionInfoEvent delivers a one-shot-per-occurrence lifecycle
// notification (Ready fires once per prepare cycle, End once per exhausted
// stream, Error is terminal for the affected track).
type SessionInfoEvent struct {
	disp   *dispatch.Dispatcher
	handle func(info SessionInfoType, payload media.Config)
}

func NewSessionInfo(disp *dispatch.Dispatcher, handle func(SessionInfoType, media.Config)) *SessionInfoEvent {
	return &SessionInfoEvent{disp: disp, handle: handle}
}

func (e *SessionInfoEvent) Fire(info SessionInfoType, payload media.Config) {
	e.disp.Dispatch(dispatch.NewJob("session-info", func() { e.handle(info, payload) }), 0)
}

// PacketReadyEvent delivers a demuxed packet (or nil for EOS) to whichever
// session requested it, tagged with the generation it was minted under.
type PacketReadyEvent struct {
	disp       *dispatch.Dispatcher
	generation uint64
	handle     func(packet *media.MediaFrame, generation uint64)
}

func NewPacketReady(disp *dispatch.Dispatcher, generation uint64, handle func(*media.MediaFrame, uint64)) *PacketReadyEvent {
	return &PacketReadyEvent{disp: disp, generation: generation, handle: handle}
}

func (e *PacketReadyEvent) Fire(packet *media.MediaFrame) {
	e.disp.Dispatch(dispatch.NewJob("packet-ready", func() { e.handle(packet, e.generation) }), 0)
}

// FrameReadyEvent is the frame-stream analogue of PacketReadyEvent.
type FrameReadyEvent struct {
	disp       *dispatch.Dispatcher
	generation uint64
	handle     func(frame *media.MediaFrame, generation uint64)
}

func NewFrameReady(disp *dispatch.Dispatcher, generation uint64, handle func(*media.MediaFrame, uint64)) *FrameReadyEvent {
	return &FrameReadyEvent{disp: disp, generation: generation, handle: handle}
}

func (e *FrameReadyEvent) Fire(frame *media.MediaFrame) {
	e.disp.Dispatch(dispatch.NewJob("frame-ready", func() { e.handle(frame, e.generation) }), 0)
}

// PacketRequestEvent asks an upstream Source session for the next packet of
// a track (ts == Invalid) or to seek-and-read at ts. Its lifetime governs
// track enablement: when the last reference is released, onLastRelease
// fires so the Source can disable demuxing for that track. Go has no
// deterministic destructors, so this is modeled as explicit ref-counting
// rather than the C++ original's reference-drop finalizer.
type PacketRequestEvent struct {
	disp *dispatch.Dispatcher
	fn   func(reply *PacketReadyEvent, ts mediatime.Time)

	mu            sync.Mutex
	refs          int
	onLastRelease func()
	releaseFired  bool
}

func NewPacketRequest(disp *dispatch.Dispatcher, fn func(*PacketReadyEvent, mediatime.Time), onLastRelease func()) *PacketRequestEvent {
	return &PacketRequestEvent{disp: disp, fn: fn, refs: 1, onLastRelease: onLastRelease}
}

func (e *PacketRequestEvent) Fire(reply *PacketReadyEvent, ts mediatime.Time) {
	e.disp.Dispatch(dispatch.NewJob("packet-request", func() { e.fn(reply, ts) }), 0)
}

// Retain adds a reference. Each call must be balanced by a Release.
func (e *PacketRequestEvent) Retain() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// Release drops a reference; the last release disables the track.
func (e *PacketRequestEvent) Release() {
	e.mu.Lock()
	e.refs--
	fire := e.refs <= 0 && !e.releaseFired
	if fire {
		e.releaseFired = true
	}
	e.mu.Unlock()
	if fire && e.onLastRelease != nil {
		e.onLastRelease()
	}
}

// FrameRequestEvent asks an upstream Codec session for the next frame
// (ts == Invalid) or to seek-and-decode at ts.
type FrameRequestEvent struct {
	disp *dispatch.Dispatcher
	fn   func(reply *FrameReadyEvent, ts mediatime.Time)
}

func NewFrameRequest(disp *dispatch.Dispatcher, fn func(*FrameReadyEvent, mediatime.Time)) *FrameRequestEvent {
	return &FrameRequestEvent{disp: disp, fn: fn}
}

func (e *FrameRequestEvent) Fire(reply *FrameReadyEvent, ts mediatime.Time) {
	e.disp.Dispatch(dispatch.NewJob("frame-request", func() { e.fn(reply, ts) }), 0)
}
