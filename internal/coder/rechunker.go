package coder

import (
	"github.com/zsiec/avcore/internal/buffer"
	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/metrics"
)

// AudioRechunker regroups audio of arbitrary frame lengths into frames of
// exactly FrameSize samples. It copies samples only; input must already be in
// the target rate, channel count and format.
//
// Output timestamps come from a sample clock anchored at the first pushed
// frame's PTS: each frame starts at anchor + samples emitted so far, in the
// rechunker's time base.
type AudioRechunker struct {
	frameSize  int
	sampleRate int
	channels   int
	format     types.SampleFormat
	timeBase   types.Rational
	label      string

	buf *buffer.SampleBuffer

	anchor   int64
	anchored bool
	emitted  int64

	flushing  bool
	exhausted bool
}

// RechunkerConfig describes the audio a rechunker accepts.
type RechunkerConfig struct {
	FrameSize    int
	SampleRate   int
	Channels     int
	SampleFormat types.SampleFormat
	// TimeBase of emitted frames; 1/SampleRate when zero.
	TimeBase types.Rational
	// MaxSamples caps buffered samples per channel.
	MaxSamples int
	// Label names the rechunker in metrics.
	Label string
}

// NewAudioRechunker validates cfg and allocates the accumulation buffer.
func NewAudioRechunker(cfg RechunkerConfig) (*AudioRechunker, error) {
	if cfg.FrameSize <= 0 {
		return nil, apperrors.NewInvalidArgument("rechunker frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, apperrors.NewInvalidArgument("invalid audio layout %d Hz x %d channels", cfg.SampleRate, cfg.Channels)
	}
	bps := cfg.SampleFormat.BytesPerSample()
	if bps == 0 {
		return nil, apperrors.NewInvalidArgument("unsupported sample format %s", cfg.SampleFormat)
	}
	if cfg.MaxSamples < cfg.FrameSize {
		return nil, apperrors.NewInvalidArgument("rechunker ceiling %d is below frame size %d", cfg.MaxSamples, cfg.FrameSize)
	}

	tb := cfg.TimeBase
	if tb == (types.Rational{}) {
		var err error
		if tb, err = types.SampleTimeBase(cfg.SampleRate); err != nil {
			return nil, err
		}
	}
	if tb.Den <= 0 || tb.Num <= 0 {
		return nil, apperrors.NewInvalidArgument("invalid rechunker time base %s", tb)
	}

	buf, err := buffer.NewSampleBuffer(cfg.Channels*bps, cfg.MaxSamples)
	if err != nil {
		return nil, err
	}

	return &AudioRechunker{
		frameSize:  cfg.FrameSize,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		format:     cfg.SampleFormat,
		timeBase:   tb,
		label:      cfg.Label,
		buf:        buf,
		anchor:     types.NoTimestamp,
	}, nil
}

// Push appends a frame's samples. A nil frame starts the flush: Pull then
// drains what is left, a shorter final frame included.
func (r *AudioRechunker) Push(frame *types.AudioFrame) error {
	if r.flushing {
		if frame == nil {
			return nil
		}
		return apperrors.NewInvalidState("push after rechunker flush")
	}
	if frame == nil {
		r.flushing = true
		return nil
	}
	if !frame.SameAudioLayout(r.sampleRate, r.channels, r.format) {
		return apperrors.NewInvalidArgument("audio %d Hz x %d %s does not match rechunker %d Hz x %d %s",
			frame.SampleRate, frame.Channels, frame.Format, r.sampleRate, r.channels, r.format)
	}

	if frame.NumSamples < 0 || len(frame.Data) < frame.NumSamples*r.buf.BytesPerFrame() {
		return apperrors.NewInvalidArgument("audio frame claims %d samples but holds %d bytes",
			frame.NumSamples, len(frame.Data))
	}

	if !r.anchored {
		anchor, err := r.anchorFor(frame)
		if err != nil {
			return err
		}
		r.anchor = anchor
		r.anchored = true
	}

	payload := frame.Data[:frame.NumSamples*r.buf.BytesPerFrame()]
	if err := r.buf.Write(payload); err != nil {
		return err
	}
	metrics.AddRechunkerBuffered(r.label, frame.NumSamples)
	return nil
}

// Pull fills out with the next frame. It returns false when no full frame is
// ready, or once the flushed remainder has been handed out.
func (r *AudioRechunker) Pull(out *types.AudioFrame) (bool, error) {
	if out == nil {
		return false, apperrors.NewInvalidArgument("nil output frame")
	}
	if !out.SameAudioLayout(r.sampleRate, r.channels, r.format) {
		return false, apperrors.NewInvalidArgument("output frame layout does not match rechunker")
	}
	if r.exhausted {
		return false, nil
	}

	n := r.frameSize
	kind := "full"
	if r.buf.Len() < n {
		if !r.flushing {
			return false, nil
		}
		if r.buf.Len() == 0 {
			r.exhausted = true
			return false, nil
		}
		n = r.buf.Len()
		kind = "tail"
	}

	pts, err := r.clock()
	if err != nil {
		return false, err
	}

	size := n * r.buf.BytesPerFrame()
	if cap(out.Data) < size {
		out.Data = make([]byte, size)
	}
	out.Data = out.Data[:size]
	r.buf.Read(out.Data, n)

	out.NumSamples = n
	out.PTS = pts
	out.Base = r.timeBase
	out.Complete = true

	r.emitted += int64(n)
	metrics.AddRechunkerBuffered(r.label, -n)
	metrics.IncrementRechunkerChunk(r.label, kind)
	return true, nil
}

// FrameSize returns the fixed output frame size in samples.
func (r *AudioRechunker) FrameSize() int { return r.frameSize }

// Buffered returns samples per channel waiting to be pulled.
func (r *AudioRechunker) Buffered() int { return r.buf.Len() }

// Flushing reports whether Push(nil) has been called.
func (r *AudioRechunker) Flushing() bool { return r.flushing }

// Exhausted reports whether the flushed remainder has been fully pulled.
func (r *AudioRechunker) Exhausted() bool { return r.exhausted }

// Emitted returns samples per channel handed out so far.
func (r *AudioRechunker) Emitted() int64 { return r.emitted }

// Close releases buffered samples from the metrics gauge.
func (r *AudioRechunker) Close() {
	if n := r.buf.Len(); n > 0 {
		metrics.AddRechunkerBuffered(r.label, -n)
	}
	r.buf.Reset()
	r.exhausted = true
}

// anchorFor converts the frame's PTS into the rechunker time base. Frames
// without a timestamp anchor the clock at zero.
func (r *AudioRechunker) anchorFor(frame *types.AudioFrame) (int64, error) {
	if frame.PTS == types.NoTimestamp {
		return 0, nil
	}
	src := frame.Base
	if src == (types.Rational{}) {
		src = r.timeBase
	}
	return types.Rescale(frame.PTS, src, r.timeBase, types.RoundNearInf)
}

func (r *AudioRechunker) clock() (int64, error) {
	offset, err := types.Rescale(r.emitted, types.Rational{Num: 1, Den: int32(r.sampleRate)}, r.timeBase, types.RoundDown)
	if err != nil {
		return 0, err
	}
	return r.anchor + offset, nil
}
