package session

import (
	"testing"

	"github.com/playgraph/tiger/clock"
	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// fakeFrameUpstream answers FrameRequestEvent fires with frames drawn from a
// fixed list, then nil (EOS) forever after.
type fakeFrameUpstream struct {
	disp   *dispatch.Dispatcher
	req    *event.FrameRequestEvent
	frames []*media.MediaFrame
	pos    int
}

func newFakeFrameUpstream(frames []*media.MediaFrame) *fakeFrameUpstream {
	u := &fakeFrameUpstream{disp: dispatch.New("test-frame-upstream"), frames: frames}
	u.req = event.NewFrameRequest(u.disp, u.onRequest)
	return u
}

func (u *fakeFrameUpstream) onRequest(reply *event.FrameReadyEvent, ts mediatime.Time) {
	if ts.IsValid() {
		u.pos = 0
	}
	if u.pos >= len(u.frames) {
		reply.Fire(nil)
		return
	}
	f := u.frames[u.pos]
	u.pos++
	reply.Fire(f)
}

func makeVideoFrames(n int) []*media.MediaFrame {
	out := make([]*media.MediaFrame, n)
	for i := range out {
		out[i] = &media.MediaFrame{
			TrackID:  1,
			Kind:     media.KindVideo,
			Timecode: mediatime.FromMicroseconds(int64(i) * 40000),
			Image:    media.ImageFormat{Width: 16, Height: 16},
		}
	}
	return out
}

func pumpRender(r *Render, u *fakeFrameUpstream, n int) {
	for i := 0; i < n; i++ {
		r.Dispatcher().Flush()
		u.disp.Flush()
	}
}

func TestRenderReachesReadyAfterMinPrepareCount(t *testing.T) {
	upstream := newFakeFrameUpstream(makeVideoFrames(MinPrepareCount + 2))
	sink := &fakeDevice{formats: media.Config{}}
	var ready bool
	recv := newRecvDispatcher(func(kind event.SessionInfoType, p media.Config) {
		if kind == event.InfoReady {
			ready = true
		}
	})

	// A bound clock that never ticks keeps the session in Prepare; without
	// a clock it would freewheel straight into Rendering.
	sc := clock.New()
	slave, _ := sc.GetClock(clock.RoleSlave)

	r := NewRender(upstream.req, sink, RenderOptions{Clock: slave, Info: recv.info}, nil)
	defer r.Dispatcher().Stop()

	pumpRender(r, upstream, MinPrepareCount+4)
	recv.disp.Flush()

	waitUntil(t, func() bool { return ready })
	if r.state != renderReady && r.state != renderRendering {
		t.Fatalf("expected Ready/Rendering, state = %v", r.state)
	}
}

func TestRenderFreewheelWithoutClock(t *testing.T) {
	upstream := newFakeFrameUpstream(makeVideoFrames(3))
	sink := &fakeDevice{formats: media.Config{}}

	r := NewRender(upstream.req, sink, RenderOptions{}, nil)
	defer r.Dispatcher().Stop()

	pumpRender(r, upstream, 10)

	if r.state != renderRendering {
		t.Fatalf("expected freewheel to start rendering immediately, got %v", r.state)
	}
}

func TestRenderDropsLateFrameInOnFrameReady(t *testing.T) {
	sc := clock.New()
	master, _ := sc.GetClock(clock.RoleMaster)
	sc.Set(mediatime.FromMicroseconds(50000))

	upstream := newFakeFrameUpstream(nil)
	sink := &fakeDevice{formats: media.Config{}}
	r := NewRender(upstream.req, sink, RenderOptions{Clock: master}, nil)
	defer r.Dispatcher().Stop()
	r.Dispatcher().Flush()

	before := len(r.output)
	r.disp.Dispatch(dispatch.NewJob("inject-late", func() {
		r.onFrameReady(&media.MediaFrame{
			Kind:     media.KindAudio,
			Timecode: mediatime.FromMicroseconds(10000),
		})
	}), 0)
	r.Dispatcher().Flush()

	if len(r.output) != before {
		t.Fatalf("late frame should have been dropped, output len = %d", len(r.output))
	}
}
