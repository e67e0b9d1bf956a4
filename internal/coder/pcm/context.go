package pcm

import (
	"errors"
	"fmt"

	"github.com/zsiec/avcore/internal/buffer"
	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/media/types"
)

var errClosed = errors.New("pcm: context closed")

// unit is one queued output payload with its timing.
type unit struct {
	data     []byte
	samples  int
	pts      int64
	duration int64
}

// codecContext implements coder.CodecContext. Submitted input is copied into
// a bounded queue; a full queue answers StatusWouldBlock until drained.
type codecContext struct {
	params    coder.CodecParams
	frameSize int
	caps      coder.Capability
	depth     int
	bpf       int
	pool      *buffer.PayloadPool
	sampleTB  types.Rational

	queue     []unit
	inputDone bool
	// shortSeen marks a short frame under a fixed frame size; only the
	// last frame before end of input may be short.
	shortSeen bool
	closed    bool
	err       error
}

func (c *codecContext) FrameSize() int { return c.frameSize }

func (c *codecContext) Capabilities() coder.Capability { return c.caps }

func (c *codecContext) Err() error { return c.err }

func (c *codecContext) EncodeSubmit(raw types.MediaUnit) coder.Status {
	if st, done := c.checkSubmit(raw == nil); done {
		return st
	}
	if raw == nil {
		return coder.StatusOK
	}

	frame, ok := raw.(*types.AudioFrame)
	if !ok || frame == nil {
		return c.failf("encoder input must be an audio frame, got %T", raw)
	}
	if !frame.SameAudioLayout(c.params.SampleRate, c.params.Channels, c.params.SampleFormat) {
		return c.failf("frame layout %d Hz x %d %s does not match context", frame.SampleRate, frame.Channels, frame.Format)
	}
	n := frame.NumSamples * c.bpf
	if frame.NumSamples <= 0 || len(frame.Data) < n {
		return c.failf("frame claims %d samples but holds %d bytes", frame.NumSamples, len(frame.Data))
	}

	if c.frameSize > 1 && !c.caps.Has(coder.CapVariableFrameSize) {
		if c.shortSeen {
			return c.failf("frame after a short final frame")
		}
		if frame.NumSamples > c.frameSize {
			return c.failf("frame of %d samples exceeds frame size %d", frame.NumSamples, c.frameSize)
		}
	}

	if len(c.queue) >= c.depth {
		return coder.StatusWouldBlock
	}
	if c.frameSize > 1 && frame.NumSamples < c.frameSize {
		c.shortSeen = true
	}

	pts := frame.PTS
	if pts != types.NoTimestamp && frame.Base != (types.Rational{}) && !frame.Base.Equal(c.params.TimeBase) {
		rebased, err := types.Rescale(pts, frame.Base, c.params.TimeBase, types.RoundNearInf)
		if err != nil {
			rebased = types.NoTimestamp
		}
		pts = rebased
	}

	c.push(frame.Data[:n], frame.NumSamples, pts)
	return coder.StatusOK
}

func (c *codecContext) EncodeDrain(pkt *types.Packet) coder.Status {
	if c.closed {
		c.err = errClosed
		return coder.StatusError
	}
	if pkt == nil {
		return c.failf("nil output packet")
	}
	if len(c.queue) == 0 {
		if c.inputDone {
			return coder.StatusEOF
		}
		return coder.StatusWouldBlock
	}

	u := c.pop()
	pkt.Data = append(pkt.Data[:0], u.data...)
	c.pool.Put(u.data)

	pkt.PTS = u.pts
	pkt.DTS = u.pts
	pkt.Duration = u.duration
	pkt.Base = c.params.TimeBase
	pkt.Keyframe = true
	pkt.Complete = true
	pkt.MediaType = types.MediaKindAudio
	return coder.StatusOK
}

func (c *codecContext) DecodeSubmit(pkt *types.Packet) coder.Status {
	if st, done := c.checkSubmit(pkt == nil); done {
		return st
	}
	if pkt == nil {
		return coder.StatusOK
	}
	if len(pkt.Data) == 0 || len(pkt.Data)%c.bpf != 0 {
		return c.failf("packet of %d bytes is not a whole number of %d-byte samples", len(pkt.Data), c.bpf)
	}
	if len(c.queue) >= c.depth {
		return coder.StatusWouldBlock
	}

	pts := pkt.PTS
	if pts != types.NoTimestamp {
		if pkt.Base.Den <= 0 || pkt.Base.Num <= 0 {
			pts = types.NoTimestamp
		} else if rebased, err := types.Rescale(pts, pkt.Base, c.params.TimeBase, types.RoundNearInf); err == nil {
			pts = rebased
		} else {
			pts = types.NoTimestamp
		}
	}

	c.push(pkt.Data, len(pkt.Data)/c.bpf, pts)
	return coder.StatusOK
}

func (c *codecContext) DecodeDrain(raw types.MediaUnit) coder.Status {
	if c.closed {
		c.err = errClosed
		return coder.StatusError
	}
	frame, ok := raw.(*types.AudioFrame)
	if !ok || frame == nil {
		return c.failf("decoder output must be an audio frame, got %T", raw)
	}
	if !frame.SameAudioLayout(c.params.SampleRate, c.params.Channels, c.params.SampleFormat) {
		return c.failf("output frame layout does not match context")
	}
	if len(c.queue) == 0 {
		if c.inputDone {
			return coder.StatusEOF
		}
		return coder.StatusWouldBlock
	}

	u := c.pop()
	frame.Data = append(frame.Data[:0], u.data...)
	c.pool.Put(u.data)

	frame.NumSamples = u.samples
	frame.PTS = u.pts
	frame.Base = c.params.TimeBase
	frame.Complete = true
	return coder.StatusOK
}

// Close returns queued payloads to the pool.
func (c *codecContext) Close() error {
	if c.closed {
		return nil
	}
	for _, u := range c.queue {
		c.pool.Put(u.data)
	}
	c.queue = nil
	c.closed = true
	return nil
}

// checkSubmit handles closed, failed and finished contexts. done is true when
// st is final for this call.
func (c *codecContext) checkSubmit(endOfInput bool) (st coder.Status, done bool) {
	switch {
	case c.closed:
		c.err = errClosed
		return coder.StatusError, true
	case c.err != nil:
		return coder.StatusError, true
	case c.inputDone:
		return coder.StatusEOF, true
	case endOfInput:
		c.inputDone = true
		return coder.StatusOK, true
	}
	return coder.StatusOK, false
}

func (c *codecContext) push(data []byte, samples int, pts int64) {
	buf := c.pool.Get(len(data))
	buf = append(buf, data...)

	duration, err := types.Rescale(int64(samples), c.sampleTB, c.params.TimeBase, types.RoundNearInf)
	if err != nil {
		duration = -1
	}
	c.queue = append(c.queue, unit{data: buf, samples: samples, pts: pts, duration: duration})
}

func (c *codecContext) pop() unit {
	u := c.queue[0]
	c.queue[0] = unit{}
	c.queue = c.queue[1:]
	return u
}

func (c *codecContext) failf(format string, args ...interface{}) coder.Status {
	c.err = fmt.Errorf("pcm: "+format, args...)
	return coder.StatusError
}
