package session

import (
	"testing"
	"time"

	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// fakeFile is a minimal two-track media.File: track 0 is "audio", track 1
// is "video", packets interleaved round-robin.
type fakeFile struct {
	packets []*media.MediaFrame
	pos     int
	tracks  int
}

func newFakeFile() *fakeFile {
	f := &fakeFile{tracks: 2}
	for i := 0; i < 10; i++ {
		track := i % 2
		f.packets = append(f.packets, &media.MediaFrame{
			TrackID:  track,
			Timecode: mediatime.FromMicroseconds(int64(i) * 100000),
		})
	}
	return f
}

func (f *fakeFile) Formats() media.Config {
	return media.Config{
		media.KeyCount: f.tracks,
		"track-0":      media.Config{media.KeyType: int(media.KindAudio)},
		"track-1":      media.Config{media.KeyType: int(media.KindVideo)},
	}
}

func (f *fakeFile) Configure(cfg media.Config) error { return nil }

func (f *fakeFile) Read(mode media.ReadMode, ts mediatime.Time) (*media.MediaFrame, error) {
	if mode == media.ReadClosestSync {
		f.pos = 0
	}
	if f.pos >= len(f.packets) {
		return nil, nil
	}
	p := f.packets[f.pos]
	f.pos++
	return p, nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out")
}

func TestSourceReadyPublishesTracks(t *testing.T) {
	file := newFakeFile()
	var ready bool
	var payload media.Config
	recvDisp := newRecvDispatcher(func(kind event.SessionInfoType, p media.Config) {
		if kind == event.InfoReady {
			ready = true
			payload = p
		}
	})

	src := NewSource(file, recvDisp.info, nil)
	defer src.Dispatcher().Stop()
	src.Dispatcher().Flush()
	recvDisp.disp.Flush()

	waitUntil(t, func() bool { return ready })
	if count, _ := payload.Int(media.KeyCount); count != 2 {
		t.Fatalf("expected 2 tracks, got %d", count)
	}
	if len(src.Tracks()) != 2 {
		t.Fatalf("expected 2 TrackInfo, got %d", len(src.Tracks()))
	}
}

func TestSourcePacketRequestDeliversRequestedTrack(t *testing.T) {
	file := newFakeFile()
	recvDisp := newRecvDispatcher(func(event.SessionInfoType, media.Config) {})
	src := NewSource(file, recvDisp.info, nil)
	defer src.Dispatcher().Stop()
	src.Dispatcher().Flush()

	waitUntil(t, func() bool { return len(src.Tracks()) == 2 })
	audioReq := src.Tracks()[0].Req

	replyDisp := newReplyCollector()
	reply := event.NewPacketReady(replyDisp.disp, 0, replyDisp.handle)
	audioReq.Fire(reply, mediatime.Invalid)

	src.Dispatcher().Flush()
	replyDisp.disp.Flush()

	waitUntil(t, func() bool { return len(replyDisp.received) >= 1 })
	if replyDisp.received[0].TrackID != 0 {
		t.Fatalf("expected track 0 packet, got track %d", replyDisp.received[0].TrackID)
	}
}

func TestSourceTrackReleaseDisables(t *testing.T) {
	file := newFakeFile()
	recvDisp := newRecvDispatcher(func(event.SessionInfoType, media.Config) {})
	src := NewSource(file, recvDisp.info, nil)
	defer src.Dispatcher().Stop()
	src.Dispatcher().Flush()

	waitUntil(t, func() bool { return len(src.Tracks()) == 2 })
	videoReq := src.Tracks()[1].Req
	videoReq.Release()
	src.Dispatcher().Flush()
	if src.tracks[1].enabled {
		t.Fatal("expected track 1 to be disabled after its last release")
	}
}
