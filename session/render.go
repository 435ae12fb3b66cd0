package session

import (
	"time"

	"github.com/playgraph/tiger/clock"
	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// MinPrepareCount is the number of enqueued frames that moves a Render
// session's Prepare state to Ready.
const MinPrepareCount = 16

// JitterWindow is the render()-step tolerance before a frame is considered
// either too early (re-arm) or a (logged, not dropped) underrun.
const JitterWindow = 5 * time.Millisecond

// DefaultRefreshInterval is the render tick's period absent a more specific
// next-frame delay.
const DefaultRefreshInterval = 10 * time.Millisecond

type renderState int

const (
	renderInit renderState = iota
	renderPrepare
	renderReady
	renderRendering
	renderPaused
	renderPrepareInt
)

// Render drives a sink against the shared clock: it paces frames, tolerates
// drift, and — when bound to a master Clock — advances the clock itself.
type Render struct {
	disp   *dispatch.Dispatcher
	logger Logger

	state      renderState
	generation uint64

	frameReq *event.FrameRequestEvent // upstream: ask the codec for frames
	info     *event.SessionInfoEvent
	external *event.FrameReadyEvent // optional: bypass internal sink

	sink        media.Device
	converter   media.Device // optional resampler/color-convertor
	sinkLatency mediatime.Time

	clk          *clock.Clock
	clockUpdated bool // true once the master has anchored at least once
	renderTick   *dispatch.Job

	output        []*media.MediaFrame
	inputEOS      bool
	everSawFrame  bool
	lastFrameTime mediatime.Time
	renderedCount int
	readyNotified bool
}

// RenderOptions bundles the optional collaborators a Render session may be
// constructed with.
type RenderOptions struct {
	Clock     *clock.Clock // nil means freewheel, no pacing
	External  *event.FrameReadyEvent
	Converter media.Device
	Info      *event.SessionInfoEvent
}

// NewRender constructs a Render session on its own dispatcher, wired to an
// upstream FrameRequestEvent and a sink device (or an external frame sink).
func NewRender(frameReq *event.FrameRequestEvent, sink media.Device, opts RenderOptions, logger Logger) *Render {
	if logger == nil {
		logger = nopLogger{}
	}
	r := &Render{
		disp:        dispatch.New("render"),
		logger:      logger,
		frameReq:    frameReq,
		info:        opts.Info,
		external:    opts.External,
		sink:        sink,
		converter:   opts.Converter,
		clk:         opts.Clock,
		sinkLatency: mediatime.Begin,
	}
	r.renderTick = dispatch.NewJob("render-tick", r.onRender)
	r.disp.Dispatch(dispatch.NewJob("render-init", r.onInit), 0)
	return r
}

func (r *Render) Dispatcher() *dispatch.Dispatcher { return r.disp }

func (r *Render) onInit() {
	r.state = renderPrepare

	if r.sink != nil {
		if latencyUS, ok := r.sink.Formats().Int(media.KeyLatency); ok {
			r.sinkLatency = mediatime.FromMicroseconds(int64(latencyUS))
		}
	}

	if r.clk != nil {
		r.clk.SetListener(r.onClockEvent)
	}

	r.requestFrame(mediatime.Invalid)

	if r.clk == nil {
		r.state = renderRendering
		r.armTick(0)
	}
}

func (r *Render) requestFrame(ts mediatime.Time) {
	gen := r.generation
	reply := event.NewFrameReady(r.disp, gen, func(frame *media.MediaFrame, replyGen uint64) {
		if replyGen != r.generation {
			return
		}
		r.onFrameReady(frame)
	})
	r.frameReq.Fire(reply, ts)
}

// onFrameReady implements the §4.4 ingestion algorithm.
func (r *Render) onFrameReady(frame *media.MediaFrame) {
	if frame == nil {
		r.inputEOS = true
		if !r.everSawFrame {
			r.emitEnd()
		}
		return
	}

	if !frame.Timecode.IsValid() {
		r.logger.Printf("render: frame with invalid timecode, best-effort continuing")
	}

	if r.sink == nil && r.external == nil {
		if ok := r.tryLazyInit(frame); !ok {
			return
		}
	}

	isFirstVideoFrame := !r.everSawFrame && frame.Kind == media.KindVideo
	r.everSawFrame = true

	if r.clk != nil && !isFirstVideoFrame {
		if frame.Timecode.Less(r.clk.Get()) {
			r.requestFrame(mediatime.Invalid)
			r.lastFrameTime = frame.Timecode
			return
		}
	}

	out := frame
	if r.converter != nil {
		if err := r.converter.Push(frame); err != nil {
			r.logger.Printf("render: converter push failed: %v", err)
			r.requestFrame(mediatime.Invalid)
			return
		}
		converted, err := r.converter.Pull()
		if err != nil {
			r.logger.Printf("render: converter pull failed: %v", err)
			r.requestFrame(mediatime.Invalid)
			return
		}
		if converted == nil {
			r.requestFrame(mediatime.Invalid)
			r.lastFrameTime = frame.Timecode
			return
		}
		out = converted
	}

	r.output = append(r.output, out)
	r.lastFrameTime = frame.Timecode

	if r.state == renderPrepare || r.state == renderPrepareInt {
		if len(r.output) >= MinPrepareCount {
			wasInternal := r.state == renderPrepareInt
			r.state = renderReady
			if !wasInternal && !r.readyNotified {
				r.readyNotified = true
				if r.info != nil {
					r.info.Fire(event.InfoReady, nil)
				}
			}
			if wasInternal {
				r.state = renderRendering
				r.armTick(0)
			}
		} else {
			r.requestFrame(mediatime.Invalid)
		}
		return
	}

	r.requestFrame(mediatime.Invalid)
}

// tryLazyInit is called for a frame that arrives while neither an internal
// sink nor an external frame event is bound. It only logs and returns true:
// no sink is built from the frame's format, so the frame is queued and
// rendered with no sink attached.
func (r *Render) tryLazyInit(frame *media.MediaFrame) bool {
	r.logger.Printf("render: lazy sink init triggered by first frame")
	return true
}

func (r *Render) emitEnd() {
	if r.info != nil {
		r.info.Fire(event.InfoEnd, nil)
	}
}

func (r *Render) armTick(delay time.Duration) {
	r.disp.Dispatch(r.renderTick, delay)
}

// onRender is the periodic render-tick job.
func (r *Render) onRender() {
	if r.state == renderPaused || r.state == renderPrepare || r.state == renderPrepareInt {
		return
	}

	if len(r.output) == 0 {
		if r.inputEOS {
			if r.sink != nil {
				if err := r.sink.Push(nil); err != nil {
					r.fail(err)
					return
				}
			}
			if r.external != nil {
				r.external.Fire(nil)
			}
			r.emitEnd()
			return
		}
		r.logger.Printf("render: underrun, output queue empty")
		r.armTick(DefaultRefreshInterval)
		return
	}

	delay := r.render()
	r.armTick(delay)
}

// render implements the §4.4 render() algorithm.
func (r *Render) render() time.Duration {
	frame := r.output[0]

	masterFirstAnchor := r.clk != nil && r.clk.Role() == clock.RoleMaster && !r.clockUpdated
	if r.clk != nil && !masterFirstAnchor {
		now := r.clk.Get()
		early := frame.Timecode.Sub(now).Sub(r.sinkLatency)
		if early.Seconds() > JitterWindow.Seconds() {
			return time.Duration(early.Seconds() * float64(time.Second))
		}
		if early.Seconds() < -JitterWindow.Seconds() {
			r.logger.Printf("render: underrun, frame %v ms late", -early.Seconds()*1000)
		}
	}

	if r.sink != nil {
		if err := r.sink.Push(frame); err != nil {
			r.fail(err)
			return DefaultRefreshInterval
		}
	}
	if r.external != nil {
		r.external.Fire(frame)
	}

	r.output = r.output[1:]
	r.renderedCount++
	r.requestFrame(mediatime.Invalid)

	if masterFirstAnchor {
		anchor := frame.Timecode.Sub(r.sinkLatency)
		r.clk.Update(anchor)
		r.clockUpdated = true
	}

	if len(r.output) > 0 && r.clk != nil {
		next := r.output[0].Timecode
		delta := next.Sub(r.clk.Get())
		if delta.Seconds() <= 0 {
			return 0
		}
		return time.Duration(delta.Seconds() * float64(time.Second))
	}
	return DefaultRefreshInterval
}

func (r *Render) fail(err error) {
	r.logger.Printf("render: sink error: %v", err)
	if r.info != nil {
		r.info.Fire(event.InfoError, media.Config{"error": err.Error()})
	}
}

// onClockEvent dispatches clock state transitions to the appropriate
// renderer control handler. Runs on the clock's notify path, so it
// immediately hands off to this session's own dispatcher.
func (r *Render) onClockEvent(state clock.State) {
	r.disp.Dispatch(dispatch.NewJob("clock-event", func() {
		switch state {
		case clock.StateTicking:
			r.onStartRenderer()
		case clock.StatePaused:
			r.onPauseRenderer()
		case clock.StateTimeChanged:
			r.onPrepareRenderer()
		}
	}), 0)
}

func (r *Render) onStartRenderer() {
	if r.sink != nil {
		if err := r.sink.Configure(media.Config{media.KeyPause: false}); err != nil {
			r.logger.Printf("render: unpause sink failed: %v", err)
		}
	}
	if r.clk != nil {
		r.clk.Start() // no-op unless this handle is the master
	}
	r.state = renderRendering
	r.armTick(0)
}

func (r *Render) onPauseRenderer() {
	r.disp.Remove(r.renderTick)
	if r.sink != nil {
		if err := r.sink.Configure(media.Config{media.KeyPause: true}); err != nil {
			r.logger.Printf("render: pause sink failed: %v", err)
		}
	}
	if r.clk != nil {
		r.clk.Pause() // no-op unless this handle is the master
	}
	r.state = renderPaused
}

func (r *Render) onPrepareRenderer() {
	r.disp.Remove(r.renderTick)
	if r.clk == nil {
		return
	}
	now := r.clk.Get()
	kept := r.output[:0]
	for _, f := range r.output {
		if f.Timecode.GreaterEqual(now) {
			kept = append(kept, f)
		}
	}
	r.output = kept
	r.generation++
	r.state = renderPrepareInt
	r.clockUpdated = false
	if r.sink != nil {
		if err := r.sink.Reset(); err != nil {
			r.logger.Printf("render: sink reset on seek failed: %v", err)
		}
	}
	r.requestFrame(now)
}
