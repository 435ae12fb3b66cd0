package session

import (
	"sync"

	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
)

// recvDispatcher owns a dispatcher plus a SessionInfoEvent bound to it, so
// tests can observe lifecycle notifications fired by a session under test.
type recvDispatcher struct {
	disp *dispatch.Dispatcher
	info *event.SessionInfoEvent
}

func newRecvDispatcher(handle func(event.SessionInfoType, media.Config)) *recvDispatcher {
	d := dispatch.New("test-recv")
	return &recvDispatcher{disp: d, info: event.NewSessionInfo(d, handle)}
}

// replyCollector owns a dispatcher and records every packet/frame delivered
// to it via a PacketReadyEvent/FrameReadyEvent handler.
type replyCollector struct {
	disp *dispatch.Dispatcher

	mu       sync.Mutex
	received []*media.MediaFrame
}

func newReplyCollector() *replyCollector {
	return &replyCollector{disp: dispatch.New("test-reply")}
}

func (r *replyCollector) handle(frame *media.MediaFrame, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, frame)
}

// fakeDevice is a minimal media.Device: Push buffers one pending frame,
// Pull returns (and clears) it. Configurable to simulate ResourceBusy and
// EOS-on-nil-push.
type fakeDevice struct {
	mu        sync.Mutex
	formats   media.Config
	pending   *media.MediaFrame
	eof       bool
	busyCount int // number of Push calls to answer with ErrResourceBusy before succeeding
	pushed    int
}

func (d *fakeDevice) Formats() media.Config        { return d.formats }
func (d *fakeDevice) Configure(media.Config) error { return nil }

func (d *fakeDevice) Push(frame *media.MediaFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busyCount > 0 {
		d.busyCount--
		return media.ErrResourceBusy
	}
	d.pushed++
	if frame == nil {
		d.eof = true
		return nil
	}
	// "decode" by echoing the packet back as the next pulled frame.
	out := *frame
	d.pending = &out
	return nil
}

func (d *fakeDevice) Pull() (*media.MediaFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		f := d.pending
		d.pending = nil
		return f, nil
	}
	if d.eof {
		return nil, nil
	}
	return nil, nil
}

func (d *fakeDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.eof = false
	return nil
}
