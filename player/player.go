// Package player implements the top-level orchestration surface: given a
// media.File and factories for building decoder and sink devices, it wires
// up the Source/Codec/Render session graph, assigns clock roles, tracks
// readiness and end-of-stream, and exposes prepare/start/pause/seek.
package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/playgraph/tiger/clock"
	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
	"github.com/playgraph/tiger/session"
)

// MinSeek is the seek-distance threshold below which Seek is a no-op (the
// clock is already close enough that re-preparing would just cause jitter).
const MinSeek = 200 * time.Millisecond

// StartDefer is how long a Start() call issued before the graph reaches
// Ready waits before actually starting the clock; harmless if Ready arrives
// first.
const StartDefer = 500 * time.Millisecond

// State mirrors the player's externally observable lifecycle.
type State uint8

const (
	StateInit State = iota
	StateReady
	StatePlaying
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Info enumerates the notifications delivered to a player's InfoFunc.
type Info uint8

const (
	InfoReady Info = iota
	InfoPlaying
	InfoPaused
	InfoEnd
	InfoError
)

// InfoFunc is the client-facing lifecycle callback, the player-level
// analogue of a PlayerInfoEvent.
type InfoFunc func(info Info, payload media.Config)

// DecoderFactory builds a decoder device for one selected track, given its
// published format and a requested mode (media.ModeNormal et al.).
type DecoderFactory func(trackFormat media.Config, mode string) (media.Device, error)

// SinkFactory builds the presentation sink device for one selected track.
type SinkFactory func(trackFormat media.Config) (media.Device, error)

// Options configures a Player's media-specific collaborators.
type Options struct {
	Decoder DecoderFactory
	Sink    SinkFactory
	Mode    string // media.ModeNormal by default

	// VideoFrameEvent/AudioFrameEvent bypass the internal sink for the
	// matching track kind, mirroring addMedia's external-sink options.
	VideoFrameEvent *event.FrameReadyEvent
	AudioFrameEvent *event.FrameReadyEvent
}

type trackEntry struct {
	info   session.TrackInfo
	codec  *session.Codec
	render *session.Render
	clk    *clock.Clock
	ready  bool
	ended  bool
}

// Player holds the shared clock and the per-track session table, and
// implements the orchestration algorithm of the playback engine.
type Player struct {
	disp   *dispatch.Dispatcher
	logger session.Logger
	info   InfoFunc

	clk *clock.SharedClock

	mu         sync.Mutex
	state      State
	source     *session.Source
	tracks     map[int]*trackEntry
	selected   []int
	activeOpts Options

	wantStart bool
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// New constructs an idle Player. Call Open to begin loading a media.File.
func New(info InfoFunc, logger session.Logger) *Player {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Player{
		disp:   dispatch.New("player"),
		logger: logger,
		info:   info,
		clk:    clock.New(),
		tracks: make(map[int]*trackEntry),
	}
}

// State returns the player's current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Clock exposes the shared clock, e.g. for a UI progress bar.
func (p *Player) Clock() *clock.SharedClock { return p.clk }

// Open starts demuxing file and, once its track formats are known, builds
// the codec/render graph for the first track of each kind.
func (p *Player) Open(file media.File, opts Options) {
	if opts.Mode == "" {
		opts.Mode = media.ModeNormal
	}
	p.activeOpts = opts
	sourceInfo := event.NewSessionInfo(p.disp, p.onSourceInfo)
	p.source = session.NewSource(file, sourceInfo, p.logger)
}

func (p *Player) onSourceInfo(kind event.SessionInfoType, payload media.Config) {
	switch kind {
	case event.InfoError:
		p.setState(StateError)
		p.emit(InfoError, payload)
	case event.InfoReady:
		p.selectAndWireTracks()
	}
}

// selectAndWireTracks implements §4.7 steps 2-4: pick the first track of
// each kind, build its codec/render chain, and assign clock roles.
func (p *Player) selectAndWireTracks() {
	tracks := p.source.Tracks()
	seenKind := map[media.Kind]bool{}
	mask := 0
	for _, t := range tracks {
		if seenKind[t.Kind] {
			continue
		}
		seenKind[t.Kind] = true
		mask |= 1 << t.Index
		p.selected = append(p.selected, t.Index)
		p.tracks[t.Index] = &trackEntry{info: t}
	}
	p.source.SetEnabledTracks(mask)

	// Master goes to the first audio track if one was selected, else the
	// first video track.
	masterIdx := -1
	for _, idx := range p.selected {
		if p.tracks[idx].info.Kind == media.KindAudio {
			masterIdx = idx
			break
		}
	}
	if masterIdx == -1 {
		for _, idx := range p.selected {
			if p.tracks[idx].info.Kind == media.KindVideo {
				masterIdx = idx
				break
			}
		}
	}

	for _, idx := range p.selected {
		p.wireTrack(idx, idx == masterIdx)
	}
}

func (p *Player) wireTrack(idx int, master bool) {
	entry := p.tracks[idx]
	device, err := p.instantiateDecoder(entry.info.Format)
	if err != nil {
		p.logger.Printf("player: track %d decoder instantiation failed: %v", idx, err)
		p.markTrackError(idx)
		return
	}

	codecInfo := event.NewSessionInfo(p.disp, func(kind event.SessionInfoType, payload media.Config) {
		p.onCodecInfo(idx, kind, payload, master)
	})
	entry.codec = session.NewCodec(entry.info.Req, device, codecInfo, p.logger)
}

// instantiateDecoder builds the track's decoder device, retrying once in
// software mode if the requested (possibly hardware-capable) mode fails —
// the fallback named in §4.3's Codec initialization.
func (p *Player) instantiateDecoder(format media.Config) (media.Device, error) {
	if p.activeOpts.Decoder == nil {
		return nil, fmt.Errorf("player: no decoder factory configured")
	}
	device, err := p.activeOpts.Decoder(format, p.activeOpts.Mode)
	if err == nil {
		return device, nil
	}
	if p.activeOpts.Mode == media.ModeSoftware {
		return nil, err
	}
	p.logger.Printf("player: decoder creation failed in mode %q, retrying in software mode: %v", p.activeOpts.Mode, err)
	return p.activeOpts.Decoder(format, media.ModeSoftware)
}

func (p *Player) onCodecInfo(idx int, kind event.SessionInfoType, payload media.Config, master bool) {
	switch kind {
	case event.InfoError:
		p.markTrackError(idx)
	case event.InfoReady:
		p.wireRender(idx, payload, master)
	case event.InfoEnd:
		// Codec-level EOS is informational only; render-level EOS drives
		// the player's own bookkeeping.
	}
}

func (p *Player) wireRender(idx int, codecFormat media.Config, master bool) {
	entry := p.tracks[idx]

	role := clock.RoleSlave
	if master {
		role = clock.RoleMaster
	}
	clk, err := p.clk.GetClock(role)
	if err != nil {
		p.logger.Printf("player: track %d clock handle: %v", idx, err)
		clk, _ = p.clk.GetClock(clock.RoleSlave)
	}
	entry.clk = clk

	var sink media.Device
	var external *event.FrameReadyEvent
	switch entry.info.Kind {
	case media.KindVideo:
		external = p.activeOpts.VideoFrameEvent
	case media.KindAudio:
		external = p.activeOpts.AudioFrameEvent
	}
	if external == nil && p.activeOpts.Sink != nil {
		sink, err = p.activeOpts.Sink(codecFormat)
		if err != nil {
			p.logger.Printf("player: track %d sink instantiation failed: %v", idx, err)
			p.markTrackError(idx)
			return
		}
	}

	renderInfo := event.NewSessionInfo(p.disp, func(kind event.SessionInfoType, payload media.Config) {
		p.onRenderInfo(idx, kind, payload)
	})
	entry.render = session.NewRender(entry.codec.FrameRequest(), sink, session.RenderOptions{
		Clock:    clk,
		External: external,
		Info:     renderInfo,
	}, p.logger)
}

func (p *Player) onRenderInfo(idx int, kind event.SessionInfoType, payload media.Config) {
	entry, ok := p.tracks[idx]
	if !ok {
		return
	}
	switch kind {
	case event.InfoError:
		p.markTrackError(idx)
	case event.InfoReady:
		entry.ready = true
		p.checkAllReady()
	case event.InfoEnd:
		entry.ended = true
		p.checkAllEnded()
	}
}

func (p *Player) checkAllReady() {
	for _, idx := range p.selected {
		if !p.tracks[idx].ready {
			return
		}
	}
	p.setState(StateReady)
	p.emit(InfoReady, nil)
	if p.wantStart {
		p.startClockNow()
	}
}

func (p *Player) checkAllEnded() {
	for _, idx := range p.selected {
		if !p.tracks[idx].ended {
			return
		}
	}
	p.clk.Pause()
	p.setState(StateStopped)
	p.emit(InfoEnd, nil)
}

// markTrackError drops a failed track: releases its PacketRequestEvent
// reference (disabling demuxing for it, per §4.2's track-disable rule) and,
// if it held the master clock, frees that slot so another selected track's
// Render can be promoted on the next wireRender (the §8 scenario 4 failover
// path — within this player's own lifetime that only actually happens when
// the failure lands before wireRender has run for every track, since
// existing Render sessions don't change role after construction).
func (p *Player) markTrackError(idx int) {
	entry, ok := p.tracks[idx]
	if !ok {
		return
	}
	delete(p.tracks, idx)
	if entry.info.Req != nil {
		entry.info.Req.Release()
	}
	if entry.clk != nil {
		entry.clk.Release()
	}
	remaining := 0
	for _, i := range p.selected {
		if _, ok := p.tracks[i]; ok {
			remaining++
		}
	}
	if remaining == 0 {
		p.setState(StateError)
		p.emit(InfoError, nil)
	}
}

// Start begins or resumes playback, delegating to the clock. If the graph
// hasn't reached Ready yet, the clock start is deferred by StartDefer;
// arriving at Ready first makes the defer a no-op.
func (p *Player) Start() {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state == StateError {
		return
	}
	if state != StateReady && state != StatePlaying && state != StatePaused {
		p.wantStart = true
		p.disp.Dispatch(dispatch.NewJob("player-deferred-start", func() {
			if p.wantStart {
				p.startClockNow()
			}
		}), StartDefer)
		return
	}
	p.startClockNow()
}

func (p *Player) startClockNow() {
	p.wantStart = false
	p.clk.Start()
	p.setState(StatePlaying)
	p.emit(InfoPlaying, nil)
}

// Pause stops playback, delegated to the clock.
func (p *Player) Pause() {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StatePlaying {
		return
	}
	p.clk.Pause()
	p.setState(StatePaused)
	p.emit(InfoPaused, nil)
}

// Seek repositions playback, no-op if within MinSeek of the current
// position. It pauses the clock, repositions it (which fans TimeChanged out
// to every render session), and re-starts after a short defer to let the
// renders refill their queues.
func (p *Player) Seek(ts mediatime.Time) {
	if !ts.IsValid() {
		return
	}
	now := p.clk.Get()
	deltaUS := ts.Microseconds() - now.Microseconds()
	if deltaUS < 0 {
		deltaUS = -deltaUS
	}
	if time.Duration(deltaUS)*time.Microsecond < MinSeek {
		return
	}

	wasPlaying := p.State() == StatePlaying
	p.clk.Pause()
	p.clk.Set(ts)
	if wasPlaying {
		p.disp.Dispatch(dispatch.NewJob("player-post-seek-restart", p.startClockNow), StartDefer)
	}
}

// Close tears down every session in reverse dependency order: render,
// decode, source, clock. The shared clock has no explicit teardown beyond
// releasing its Clock handles, which happens as each render session is
// dropped.
func (p *Player) Close() {
	for _, idx := range p.selected {
		entry, ok := p.tracks[idx]
		if !ok {
			continue
		}
		if entry.render != nil {
			entry.render.Dispatcher().Stop()
		}
		if entry.clk != nil {
			entry.clk.Release()
		}
		if entry.codec != nil {
			entry.codec.Dispatcher().Stop()
		}
		if entry.info.Req != nil {
			entry.info.Req.Release()
		}
	}
	if p.source != nil {
		p.source.Dispatcher().Stop()
	}
	p.disp.Stop()
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) emit(info Info, payload media.Config) {
	if p.info != nil {
		p.info(info, payload)
	}
}
