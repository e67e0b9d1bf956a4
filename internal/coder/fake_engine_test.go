package coder

import (
	"errors"

	"github.com/zsiec/avcore/internal/media/types"
)

// fakeEngine hands out a single scripted fakeContext.
type fakeEngine struct {
	decode  bool
	encode  bool
	openErr error
	ctx     *fakeContext
	opened  []CodecParams
}

func newFakeEngine(ctx *fakeContext) *fakeEngine {
	return &fakeEngine{decode: true, encode: true, ctx: ctx}
}

func (e *fakeEngine) ProbeDecode(types.CodecID) bool { return e.decode }
func (e *fakeEngine) ProbeEncode(types.CodecID) bool { return e.encode }

func (e *fakeEngine) Open(p CodecParams, options map[string]string) (CodecContext, map[string]string, error) {
	if e.openErr != nil {
		return nil, nil, e.openErr
	}
	e.opened = append(e.opened, p)
	e.ctx.params = p
	unset := make(map[string]string)
	for k, v := range options {
		if k != "known" {
			unset[k] = v
		}
	}
	return e.ctx, unset, nil
}

// fakeContext queues submitted units and echoes them back on drain. A
// non-OK submitStatus or drainStatus overrides the normal behavior.
type fakeContext struct {
	params    CodecParams
	frameSize int
	caps      Capability
	depth     int

	queue     []types.MediaUnit
	submitted []types.MediaUnit
	endSeen   bool

	// decodePTS, when set, replaces the timestamps of decoded frames in
	// order.
	decodePTS []int64

	submitStatus Status
	drainStatus  Status
	err          error
	closed       int
}

var errFake = errors.New("fake engine exploded")

func (f *fakeContext) FrameSize() int           { return f.frameSize }
func (f *fakeContext) Capabilities() Capability { return f.caps }
func (f *fakeContext) Err() error               { return f.err }

func (f *fakeContext) Close() error {
	f.closed++
	return nil
}

func (f *fakeContext) EncodeSubmit(raw types.MediaUnit) Status { return f.submit(raw) }

func (f *fakeContext) DecodeSubmit(pkt *types.Packet) Status {
	if pkt == nil {
		return f.submit(nil)
	}
	return f.submit(pkt)
}

func (f *fakeContext) submit(u types.MediaUnit) Status {
	if f.submitStatus != StatusOK {
		return f.submitStatus
	}
	if f.endSeen {
		return StatusEOF
	}
	if u == nil {
		f.endSeen = true
		return StatusOK
	}
	if f.depth > 0 && len(f.queue) >= f.depth {
		return StatusWouldBlock
	}
	c := cloneUnit(u)
	f.queue = append(f.queue, c)
	f.submitted = append(f.submitted, c)
	return StatusOK
}

func (f *fakeContext) EncodeDrain(pkt *types.Packet) Status   { return f.drain(pkt) }
func (f *fakeContext) DecodeDrain(raw types.MediaUnit) Status { return f.drain(raw) }

func (f *fakeContext) drain(out types.MediaUnit) Status {
	if f.drainStatus != StatusOK {
		return f.drainStatus
	}
	if len(f.queue) == 0 {
		if f.endSeen {
			return StatusEOF
		}
		return StatusWouldBlock
	}
	u := f.queue[0]
	f.queue = f.queue[1:]

	pts := u.Timestamp()
	if len(f.decodePTS) > 0 {
		pts = f.decodePTS[0]
		f.decodePTS = f.decodePTS[1:]
	}

	switch o := out.(type) {
	case *types.Packet:
		o.Data = append(o.Data[:0], 0xAA)
		o.PTS = pts
		o.DTS = pts
	case *types.AudioFrame:
		pkt := u.(*types.Packet)
		o.Data = append(o.Data[:0], pkt.Data...)
		o.NumSamples = len(pkt.Data) / o.BytesPerFrame()
		o.PTS = pts
		o.Complete = true
	case *types.PictureFrame:
		o.Planes = [][]byte{{1}}
		o.PTS = pts
		o.Complete = true
	}
	return StatusOK
}

// submittedSamples returns NumSamples of every submitted audio frame.
func (f *fakeContext) submittedSamples() []int {
	var out []int
	for _, u := range f.submitted {
		if a, ok := u.(*types.AudioFrame); ok {
			out = append(out, a.NumSamples)
		}
	}
	return out
}
