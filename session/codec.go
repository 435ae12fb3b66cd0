package session

import (
	"errors"

	"github.com/playgraph/tiger/dispatch"
	"github.com/playgraph/tiger/event"
	"github.com/playgraph/tiger/media"
	"github.com/playgraph/tiger/mediatime"
)

// MinPackets is the input-queue depth that moves a Codec session from
// Prepare to Ready/Decoding.
const MinPackets = 2

type codecState int

const (
	codecInit codecState = iota
	codecPrepare
	codecReady
	codecDecoding
	codecPrepareInt
)

// Codec wraps a media.Device decoder and adapts it into a FrameRequestEvent
// surface. It performs no rate control: strictly packet-in, frame-out, with
// just enough internal queueing to overlap decoder latency with requests.
type Codec struct {
	disp   *dispatch.Dispatcher
	device media.Device
	logger Logger

	state      codecState
	generation uint64

	packetReq *event.PacketRequestEvent // upstream: ask the source for packets
	info      *event.SessionInfoEvent

	input            []*media.MediaFrame
	inputEOS         bool
	signaledCodecEOS bool

	requests []*event.FrameReadyEvent

	frameReq *event.FrameRequestEvent // downstream surface this codec publishes
}

// NewCodec constructs a Codec session on its own dispatcher, bound to an
// upstream PacketRequestEvent and a concrete decoder device.
func NewCodec(packetReq *event.PacketRequestEvent, device media.Device, info *event.SessionInfoEvent, logger Logger) *Codec {
	if logger == nil {
		logger = nopLogger{}
	}
	c := &Codec{
		disp:      dispatch.New("codec"),
		device:    device,
		logger:    logger,
		packetReq: packetReq,
		info:      info,
	}
	c.disp.Dispatch(dispatch.NewJob("codec-init", c.onInit), 0)
	return c
}

func (c *Codec) Dispatcher() *dispatch.Dispatcher { return c.disp }

// FrameRequest returns the request-with-reply surface this codec publishes
// downstream once initialization has completed.
func (c *Codec) FrameRequest() *event.FrameRequestEvent { return c.frameReq }

func (c *Codec) onInit() {
	c.state = codecPrepare
	c.frameReq = event.NewFrameRequest(c.disp, c.onRequestFrame)
	if c.info != nil {
		c.info.Fire(event.InfoReady, c.device.Formats())
	}
	c.requestPacket(mediatime.Invalid)
}

func (c *Codec) requestPacket(ts mediatime.Time) {
	gen := c.generation
	reply := event.NewPacketReady(c.disp, gen, func(pkt *media.MediaFrame, replyGen uint64) {
		if replyGen != c.generation {
			return
		}
		c.onPacketReady(pkt)
	})
	c.packetReq.Fire(reply, ts)
}

// onPacketReady implements §4.3's ingestion algorithm.
func (c *Codec) onPacketReady(pkt *media.MediaFrame) {
	if pkt == nil {
		c.inputEOS = true
	} else {
		c.input = append(c.input, pkt)
		if c.state == codecPrepare || c.state == codecPrepareInt {
			if len(c.input) >= MinPackets {
				c.state = codecDecoding
			} else {
				c.requestPacket(mediatime.Invalid)
			}
		}
	}
	c.decode()
}

// onRequestFrame implements §4.3's request-with-reply entry point, handling
// both "next frame" and "seek" forms.
func (c *Codec) onRequestFrame(reply *event.FrameReadyEvent, ts mediatime.Time) {
	if ts.IsValid() {
		c.state = codecPrepareInt
		c.inputEOS = false
		c.signaledCodecEOS = false
		c.input = c.input[:0]
		c.requests = c.requests[:0]
		c.generation++
		if err := c.device.Reset(); err != nil {
			c.logger.Printf("codec: reset on seek failed: %v", err)
		}
		c.requests = append(c.requests, reply)
		c.requestPacket(ts)
		return
	}
	c.requests = append(c.requests, reply)
	c.decode()
}

// decode implements the §4.3 decode() step machine.
func (c *Codec) decode() {
	if len(c.input) == 0 && !c.inputEOS {
		return
	}
	if len(c.requests) == 0 {
		return
	}

	if len(c.input) == 0 && c.inputEOS {
		if !c.signaledCodecEOS {
			if err := c.device.Push(nil); err != nil {
				c.logger.Printf("codec: eos push failed: %v", err)
			}
			c.signaledCodecEOS = true
		}
		frame, err := c.device.Pull()
		if err != nil {
			c.fail(err)
			return
		}
		c.replyFrame(frame)
		return
	}

	pkt := c.input[0]
	if err := c.device.Push(pkt); err != nil {
		if errors.Is(err, media.ErrResourceBusy) {
			frame, pullErr := c.device.Pull()
			if pullErr != nil {
				c.fail(pullErr)
				return
			}
			if frame != nil {
				c.replyFrame(frame)
			}
			c.decode() // retry the same push next time around
			return
		}
		c.fail(err)
		return
	}

	c.input = c.input[1:]
	c.requestPacket(mediatime.Invalid)

	frame, err := c.device.Pull()
	if err != nil {
		c.fail(err)
		return
	}
	if frame == nil {
		// warming up: no frame yet, not EOS (EOS is only signaled via the
		// inputEOS branch above)
		return
	}
	c.deriveAudioDuration(frame)
	c.replyFrame(frame)
}

func (c *Codec) replyFrame(frame *media.MediaFrame) {
	if len(c.requests) == 0 {
		return
	}
	reply := c.requests[0]
	c.requests = c.requests[1:]
	reply.Fire(frame)
	if frame == nil && c.info != nil {
		c.info.Fire(event.InfoEnd, nil)
	}
}

func (c *Codec) deriveAudioDuration(frame *media.MediaFrame) {
	if frame == nil || frame.Kind != media.KindAudio || frame.Duration.IsValid() {
		return
	}
	if frame.Audio.Freq <= 0 {
		return
	}
	samples := 0
	for _, plane := range frame.Planes {
		if len(plane) == 0 {
			continue
		}
		bytesPerSample := sampleByteSize(frame.Audio.Format)
		if bytesPerSample == 0 {
			continue
		}
		channels := frame.Audio.Channels
		if channels <= 0 {
			channels = 1
		}
		n := len(plane) / bytesPerSample
		if !frame.Audio.Planar {
			n /= channels
		}
		if n > samples {
			samples = n
		}
	}
	frame.Duration = mediatime.New(int64(samples), uint32(frame.Audio.Freq))
}

func sampleByteSize(f media.SampleFormat) int {
	switch f {
	case media.SampleU8:
		return 1
	case media.SampleS16:
		return 2
	case media.SampleS24:
		return 3
	case media.SampleS32, media.SampleF32:
		return 4
	case media.SampleF64:
		return 8
	default:
		return 0
	}
}

func (c *Codec) fail(err error) {
	c.logger.Printf("codec: device error: %v", err)
	if c.info != nil {
		c.info.Fire(event.InfoError, media.Config{"error": err.Error()})
	}
}
