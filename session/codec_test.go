package session

import (
	"testing"

	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// fakeUpstream answers PacketRequestEvent fires with packets drawn from a
// fixed list, then nil (EOS) forever after.
type fakeUpstream struct {
	disp    *dispatch.Dispatcher
	req     *event.PacketRequestEvent
	packets []*media.MediaFrame
	pos     int
}

func newFakeUpstream(packets []*media.MediaFrame) *fakeUpstream {
	u := &fakeUpstream{disp: dispatch.New("test-upstream"), packets: packets}
	u.req = event.NewPacketRequest(u.disp, u.onRequest, func() {})
	return u
}

func (u *fakeUpstream) onRequest(reply *event.PacketReadyEvent, ts mediatime.Time) {
	if ts.IsValid() {
		u.pos = 0
	}
	if u.pos >= len(u.packets) {
		reply.Fire(nil)
		return
	}
	p := u.packets[u.pos]
	u.pos++
	reply.Fire(p)
}

func makePackets(n int) []*media.MediaFrame {
	out := make([]*media.MediaFrame, n)
	for i := range out {
		out[i] = &media.MediaFrame{TrackID: 0, Timecode: mediatime.FromMicroseconds(int64(i) * 40000)}
	}
	return out
}

func TestCodecReachesReadyAfterMinPackets(t *testing.T) {
	upstream := newFakeUpstream(makePackets(5))
	device := &fakeDevice{formats: media.Config{}}
	recv := newRecvDispatcher(func(event.SessionInfoType, media.Config) {})

	c := NewCodec(upstream.req, device, recv.info, nil)
	defer c.Dispatcher().Stop()

	upstream.disp.Flush()
	c.Dispatcher().Flush()
	upstream.disp.Flush()
	c.Dispatcher().Flush()

	waitUntil(t, func() bool { return c.state == codecDecoding })
}

func TestCodecFrameRequestDeliversFrame(t *testing.T) {
	upstream := newFakeUpstream(makePackets(5))
	device := &fakeDevice{formats: media.Config{}}
	recv := newRecvDispatcher(func(event.SessionInfoType, media.Config) {})

	c := NewCodec(upstream.req, device, recv.info, nil)
	defer c.Dispatcher().Stop()
	upstream.disp.Flush()
	c.Dispatcher().Flush()
	upstream.disp.Flush()
	c.Dispatcher().Flush()

	collector := newReplyCollector()
	reply := event.NewFrameReady(collector.disp, 0, collector.handle)
	c.FrameRequest().Fire(reply, mediatime.Invalid)

	c.Dispatcher().Flush()
	upstream.disp.Flush()
	c.Dispatcher().Flush()
	collector.disp.Flush()

	waitUntil(t, func() bool {
		collector.mu.Lock()
		defer collector.mu.Unlock()
		return len(collector.received) >= 1
	})
}

func TestCodecResourceBusyRetriesWithoutError(t *testing.T) {
	upstream := newFakeUpstream(makePackets(5))
	device := &fakeDevice{formats: media.Config{}, busyCount: 2}
	var gotError bool
	recv := newRecvDispatcher(func(kind event.SessionInfoType, p media.Config) {
		if kind == event.InfoError {
			gotError = true
		}
	})

	c := NewCodec(upstream.req, device, recv.info, nil)
	defer c.Dispatcher().Stop()
	for i := 0; i < 4; i++ {
		upstream.disp.Flush()
		c.Dispatcher().Flush()
	}

	collector := newReplyCollector()
	reply := event.NewFrameReady(collector.disp, 0, collector.handle)
	c.FrameRequest().Fire(reply, mediatime.Invalid)
	for i := 0; i < 4; i++ {
		c.Dispatcher().Flush()
		upstream.disp.Flush()
	}
	collector.disp.Flush()
	recv.disp.Flush()

	if gotError {
		t.Fatal("resource-busy retries should never surface as SessionInfo.Error")
	}
}
