package coder

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/metrics"
)

const (
	// DefaultPCMFallbackFrameSize replaces audio frame sizes of 0 or 1.
	DefaultPCMFallbackFrameSize = 576
	// DefaultRechunkerMaxSamples caps rechunker buffering per channel.
	DefaultRechunkerMaxSamples = 1 << 20
)

var errEngineFailed = errors.New("codec engine reported failure without detail")

// Options configure a Coder.
type Options struct {
	Logger               logger.Logger
	PCMFallbackFrameSize int
	RechunkerMaxSamples  int
}

func (o *Options) withDefaults() {
	if o.Logger == nil {
		o.Logger = logger.NewNullLogger()
	}
	if o.PCMFallbackFrameSize <= 1 {
		o.PCMFallbackFrameSize = DefaultPCMFallbackFrameSize
	}
	if o.RechunkerMaxSamples <= 0 {
		o.RechunkerMaxSamples = DefaultRechunkerMaxSamples
	}
}

// Coder drives one CodecContext through the send/receive protocol. The
// encode and decode variants share this type and differ by Direction.
//
// A Coder must be used by one goroutine at a time. State may be read
// concurrently.
type Coder struct {
	id        string
	direction Direction
	engine    CodecEngine
	params    CodecParams
	opts      Options
	log       logger.Logger

	state atomic.Int32
	cctx  CodecContext

	// Encoders with a fixed frame size feed the engine through the
	// rechunker; chunk is the single cached frame it fills.
	rechunker *AudioRechunker
	chunk     *types.AudioFrame

	// pending holds a unit the engine refused with StatusWouldBlock.
	pending   types.MediaUnit
	flushSent bool

	clock      *sampleClock
	lastPTS    int64
	frameTicks int64
	unitsIn    int64
	unitsOut   int64
	lastErr    error
}

// NewEncoder creates an encoder for params in the Inited state.
func NewEncoder(engine CodecEngine, params CodecParams, opts Options) (*Coder, error) {
	return newCoder(DirectionEncode, engine, params, opts)
}

// NewDecoder creates a decoder for params in the Inited state.
func NewDecoder(engine CodecEngine, params CodecParams, opts Options) (*Coder, error) {
	return newCoder(DirectionDecode, engine, params, opts)
}

func newCoder(dir Direction, engine CodecEngine, params CodecParams, opts Options) (*Coder, error) {
	if engine == nil {
		return nil, apperrors.NewInvalidArgument("codec engine required")
	}
	if params.Codec == "" {
		return nil, apperrors.NewInvalidArgument("codec id required")
	}

	supported := engine.ProbeEncode(params.Codec)
	if dir == DirectionDecode {
		supported = engine.ProbeDecode(params.Codec)
	}
	if !supported {
		return nil, apperrors.NewInvalidArgument("codec %s cannot be used as %s", params.Codec, dir)
	}

	params.Direction = dir
	if err := validateParams(&params); err != nil {
		return nil, err
	}

	opts.withDefaults()
	id := uuid.New().String()
	c := &Coder{
		id:        id,
		direction: dir,
		engine:    engine,
		params:    params,
		opts:      opts,
		log: logger.WithCoder(opts.Logger, dir.String(), string(params.Codec)).
			WithField("coder_id", id),
		lastPTS: types.NoTimestamp,
	}
	c.state.Store(int32(StateInited))
	return c, nil
}

func validateParams(p *CodecParams) error {
	switch p.Kind {
	case types.MediaKindAudio:
		if p.SampleRate <= 0 {
			return apperrors.NewInvalidArgument("sample rate must be positive, got %d", p.SampleRate)
		}
		if p.Channels <= 0 {
			return apperrors.NewInvalidArgument("channels must be positive, got %d", p.Channels)
		}
		if p.SampleFormat.BytesPerSample() == 0 {
			return apperrors.NewInvalidArgument("sample format required")
		}
		if p.TimeBase == (types.Rational{}) {
			tb, err := types.SampleTimeBase(p.SampleRate)
			if err != nil {
				return err
			}
			p.TimeBase = tb
		}
	case types.MediaKindVideo:
		if p.Width <= 0 || p.Height <= 0 {
			return apperrors.NewInvalidArgument("invalid picture size %dx%d", p.Width, p.Height)
		}
		if p.PixelFormat == types.PixelFormatNone {
			return apperrors.NewInvalidArgument("pixel format required")
		}
		if p.TimeBase == (types.Rational{}) {
			p.TimeBase = types.TimeBase90kHz
			if p.FrameRate.Valid() && p.FrameRate.Num > 0 {
				if inv, err := p.FrameRate.Invert(); err == nil {
					p.TimeBase = inv
				}
			}
		}
	default:
		return apperrors.NewInvalidArgument("unsupported media kind %s", p.Kind)
	}

	return checkTimeBase(p.TimeBase)
}

func checkTimeBase(tb types.Rational) error {
	if tb.Den <= 0 || tb.Num <= 0 {
		return apperrors.NewInvalidArgument("time base must be positive, got %s", tb)
	}
	return nil
}

// ID returns the coder's unique id.
func (c *Coder) ID() string { return c.id }

// Direction returns the encode or decode variant.
func (c *Coder) Direction() Direction { return c.direction }

// Codec returns the codec id.
func (c *Coder) Codec() types.CodecID { return c.params.Codec }

// Kind returns the media kind the coder handles.
func (c *Coder) Kind() types.MediaKind { return c.params.Kind }

// Params returns a copy of the coder parameters.
func (c *Coder) Params() CodecParams { return c.params }

// TimeBase returns the coder time base.
func (c *Coder) TimeBase() types.Rational { return c.params.TimeBase }

// State returns the current lifecycle state.
func (c *Coder) State() State { return State(c.state.Load()) }

// Err returns the failure that moved the coder to StateError, if any.
func (c *Coder) Err() error { return c.lastErr }

// Flags returns the configured flags.
func (c *Coder) Flags() Flags { return c.params.Flags }

// SetTimeBase changes the coder time base. Only legal before Open.
func (c *Coder) SetTimeBase(tb types.Rational) error {
	if err := c.requireState("set time base", StateInited); err != nil {
		return err
	}
	if err := checkTimeBase(tb); err != nil {
		return err
	}
	c.params.TimeBase = tb
	return nil
}

// SetFlag turns a flag on or off. Only legal before Open.
func (c *Coder) SetFlag(flag Flags, on bool) error {
	if err := c.requireState("set flag", StateInited); err != nil {
		return err
	}
	if on {
		c.params.Flags |= flag
	} else {
		c.params.Flags &^= flag
	}
	return nil
}

// FrameSize returns the number of samples per channel the encoder wants per
// frame. Audio codecs reporting 0 or 1 get the PCM fallback size instead.
// Video coders return 0.
func (c *Coder) FrameSize() int {
	if c.params.Kind != types.MediaKindAudio {
		return 0
	}
	size := 0
	if c.cctx != nil {
		size = c.cctx.FrameSize()
	}
	if size <= 1 {
		size = c.opts.PCMFallbackFrameSize
	}
	return size
}

// Open opens the codec context. It returns the option keys the engine did
// not recognize.
func (c *Coder) Open(options map[string]string) (map[string]string, error) {
	if err := c.requireState("open", StateInited); err != nil {
		return nil, err
	}

	cctx, unset, err := c.engine.Open(c.params, options)
	if err != nil {
		return nil, c.fail(err, "open codec")
	}
	c.cctx = cctx

	if c.direction == DirectionEncode && c.params.Kind == types.MediaKindAudio &&
		!cctx.Capabilities().Has(CapVariableFrameSize) {
		if err := c.setupRechunker(); err != nil {
			_ = cctx.Close()
			c.cctx = nil
			return nil, err
		}
	}

	if c.direction == DirectionDecode {
		c.setupClock()
	}

	c.transition(StateOpened)
	c.log.WithFields(map[string]interface{}{
		"time_base":  c.params.TimeBase.String(),
		"frame_size": c.FrameSize(),
		"rechunked":  c.rechunker != nil,
	}).Info("Coder opened")
	return unset, nil
}

func (c *Coder) setupRechunker() error {
	frameSize := c.FrameSize()
	r, err := NewAudioRechunker(RechunkerConfig{
		FrameSize:    frameSize,
		SampleRate:   c.params.SampleRate,
		Channels:     c.params.Channels,
		SampleFormat: c.params.SampleFormat,
		TimeBase:     c.params.TimeBase,
		MaxSamples:   c.opts.RechunkerMaxSamples,
		Label:        string(c.params.Codec),
	})
	if err != nil {
		return err
	}

	chunk, err := types.NewAudioFrame(c.params.SampleRate, c.params.Channels, c.params.SampleFormat, frameSize)
	if err != nil {
		return err
	}
	c.rechunker = r
	c.chunk = chunk
	return nil
}

func (c *Coder) setupClock() {
	switch c.params.Kind {
	case types.MediaKindAudio:
		c.clock = newSampleClock(c.params.SampleRate, c.params.TimeBase)
	case types.MediaKindVideo:
		if c.params.FrameRate.Valid() && c.params.FrameRate.Num > 0 {
			if period, err := c.params.FrameRate.Invert(); err == nil {
				if ticks, err := types.Rescale(1, period, c.params.TimeBase, types.RoundNearInf); err == nil {
					c.frameTicks = ticks
				}
			}
		}
	}
}

// Send pushes one input unit into the codec. A nil unit begins the flush.
//
// Encoders take raw frames and decoders take complete packets. After
// SendAwaitingDrain the caller must Receive before sending again.
func (c *Coder) Send(unit types.MediaUnit) (SendOutcome, error) {
	state := c.State()
	if state != StateOpened && state != StateFlushing {
		return 0, apperrors.NewInvalidState("send on %s coder", state)
	}

	if isNilUnit(unit) {
		outcome, err := c.beginFlush()
		c.countSend(outcome, err)
		return outcome, err
	}

	if state == StateFlushing {
		return 0, apperrors.NewInvalidState("send after flush began")
	}
	if c.pending != nil {
		return 0, apperrors.NewInvalidState("coder is awaiting drain")
	}
	if err := c.validateInput(unit); err != nil {
		return 0, err
	}

	var (
		outcome SendOutcome
		err     error
	)
	if c.rechunker != nil {
		outcome, err = c.sendRechunked(unit.(*types.AudioFrame))
	} else {
		outcome, err = c.sendDirect(unit)
	}
	c.countSend(outcome, err)
	return outcome, err
}

func (c *Coder) countSend(outcome SendOutcome, err error) {
	if err != nil {
		metrics.IncrementCoderSend(c.direction.String(), "error")
		return
	}
	c.unitsIn++
	metrics.IncrementCoderSend(c.direction.String(), outcome.String())
}

func (c *Coder) sendRechunked(frame *types.AudioFrame) (SendOutcome, error) {
	if err := c.rechunker.Push(c.rebaseAudio(frame)); err != nil {
		return 0, err
	}
	blocked, err := c.pump()
	if err != nil {
		return 0, err
	}
	if c.flushSent {
		return SendEndOfStream, nil
	}
	if blocked {
		return SendAwaitingDrain, nil
	}
	return SendAccepted, nil
}

func (c *Coder) sendDirect(unit types.MediaUnit) (SendOutcome, error) {
	if c.direction == DirectionEncode {
		unit = c.rebaseEncodeInput(unit)
	} else {
		c.clock.observe(unit.(*types.Packet))
	}

	switch st := c.submit(unit); st {
	case StatusOK:
		return SendAccepted, nil
	case StatusWouldBlock:
		c.pending = cloneUnit(unit)
		return SendAwaitingDrain, nil
	case StatusEOF:
		c.inputClosed()
		return SendEndOfStream, nil
	default:
		return 0, c.fail(c.engineErr(), "submit")
	}
}

func (c *Coder) beginFlush() (SendOutcome, error) {
	if c.State() == StateOpened {
		c.transition(StateFlushing)
		if c.rechunker != nil {
			if err := c.rechunker.Push(nil); err != nil {
				return 0, err
			}
		}
	}
	if c.flushSent {
		return SendEndOfStream, nil
	}

	blocked, err := c.pump()
	if err != nil {
		return 0, err
	}
	if blocked {
		return SendAwaitingDrain, nil
	}
	return SendAccepted, nil
}

// pump submits the pending unit, then rechunked frames, then the end of
// input once flushing and everything else is in. It stops at the first
// StatusWouldBlock and reports it as blocked.
func (c *Coder) pump() (blocked bool, err error) {
	for {
		if c.pending != nil {
			switch st := c.submit(c.pending); st {
			case StatusOK:
				c.pending = nil
			case StatusWouldBlock:
				return true, nil
			case StatusEOF:
				c.inputClosed()
				return false, nil
			default:
				return false, c.fail(c.engineErr(), "submit")
			}
		}

		if c.rechunker == nil {
			break
		}
		ok, err := c.rechunker.Pull(c.chunk)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		c.pending = c.chunk
	}

	if c.State() != StateFlushing || c.flushSent {
		return false, nil
	}
	if c.rechunker != nil && !c.rechunker.Exhausted() {
		return false, nil
	}

	switch st := c.submit(nil); st {
	case StatusOK, StatusEOF:
		c.flushSent = true
		c.log.Debug("End of input submitted")
		return false, nil
	case StatusWouldBlock:
		return true, nil
	default:
		return false, c.fail(c.engineErr(), "submit end of input")
	}
}

// inputClosed records an engine that refuses all further input.
func (c *Coder) inputClosed() {
	c.pending = nil
	c.flushSent = true
	if c.rechunker != nil {
		c.rechunker.Close()
	}
	if c.State() == StateOpened {
		c.transition(StateFlushing)
	}
}

func (c *Coder) submit(unit types.MediaUnit) Status {
	if c.direction == DirectionEncode {
		return c.cctx.EncodeSubmit(unit)
	}
	if unit == nil {
		return c.cctx.DecodeSubmit(nil)
	}
	return c.cctx.DecodeSubmit(unit.(*types.Packet))
}

// Receive pulls one output unit into out. Encoders fill a *types.Packet;
// decoders fill a frame of the coder's media kind. Once ReceiveEndOfStream is
// returned the coder is closed and every later call returns it again.
func (c *Coder) Receive(out types.MediaUnit) (ReceiveOutcome, error) {
	state := c.State()
	switch state {
	case StateClosed:
		return ReceiveEndOfStream, nil
	case StateOpened, StateFlushing:
	default:
		return 0, apperrors.NewInvalidState("receive on %s coder", state)
	}

	if err := c.validateOutput(out); err != nil {
		return 0, err
	}

	outcome, err := c.receive(out)
	if err != nil {
		metrics.IncrementCoderReceive(c.direction.String(), "error")
		return 0, err
	}
	metrics.IncrementCoderReceive(c.direction.String(), outcome.String())
	return outcome, nil
}

func (c *Coder) receive(out types.MediaUnit) (ReceiveOutcome, error) {
	for {
		switch st := c.drain(out); st {
		case StatusOK:
			c.unitsOut++
			c.finishOutput(out)
			if _, err := c.pump(); err != nil {
				return 0, err
			}
			return ReceiveProduced, nil

		case StatusWouldBlock:
			hadWork := c.pending != nil || (c.State() == StateFlushing && !c.flushSent)
			if hadWork {
				blocked, err := c.pump()
				if err != nil {
					return 0, err
				}
				if blocked {
					return 0, c.fail(fmt.Errorf("engine neither accepts input nor produces output"), "drain")
				}
				continue
			}
			if c.State() == StateFlushing {
				return 0, c.fail(fmt.Errorf("engine requested input after end of input"), "drain")
			}
			return ReceiveAwaitingInput, nil

		case StatusEOF:
			c.finish()
			return ReceiveEndOfStream, nil

		default:
			return 0, c.fail(c.engineErr(), "drain")
		}
	}
}

func (c *Coder) drain(out types.MediaUnit) Status {
	if c.direction == DirectionEncode {
		return c.cctx.EncodeDrain(out.(*types.Packet))
	}
	return c.cctx.DecodeDrain(out)
}

func (c *Coder) finishOutput(out types.MediaUnit) {
	switch u := out.(type) {
	case *types.Packet:
		u.MediaType = c.params.Kind
		if u.Base == (types.Rational{}) {
			u.Base = c.params.TimeBase
		}
		u.Complete = len(u.Data) > 0
	case *types.AudioFrame:
		c.clock.stamp(u, c.log)
		u.Base = c.params.TimeBase
	case *types.PictureFrame:
		if u.PTS == types.NoTimestamp && c.lastPTS != types.NoTimestamp && c.frameTicks > 0 {
			u.PTS = c.lastPTS + c.frameTicks
		}
		if u.PTS != types.NoTimestamp {
			c.lastPTS = u.PTS
		}
		u.Base = c.params.TimeBase
	}
}

// finish moves a flushed coder to StateClosed and releases the engine.
func (c *Coder) finish() {
	c.transition(StateClosed)
	c.release()
	c.log.WithFields(map[string]interface{}{
		"units_in":  c.unitsIn,
		"units_out": c.unitsOut,
	}).Info("Coder reached end of stream")
}

// Close releases the codec context. A coder in StateError stays there.
func (c *Coder) Close() error {
	state := c.State()
	if state == StateClosed {
		return nil
	}
	err := c.release()
	if state != StateError {
		c.transition(StateClosed)
	}
	return err
}

func (c *Coder) release() error {
	if c.rechunker != nil {
		c.rechunker.Close()
	}
	c.pending = nil
	if c.cctx == nil {
		return nil
	}
	err := c.cctx.Close()
	c.cctx = nil
	if err != nil {
		return apperrors.WrapCodecFailure(err, "close codec context")
	}
	return nil
}

func (c *Coder) requireState(op string, allowed ...State) error {
	state := c.State()
	for _, s := range allowed {
		if state == s {
			return nil
		}
	}
	return apperrors.NewInvalidState("%s on %s coder", op, state)
}

func (c *Coder) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	metrics.RecordCoderTransition(c.direction.String(), from.String(), to.String())
	c.log.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Coder state changed")
}

// fail moves the coder to StateError and wraps cause as a codec failure.
func (c *Coder) fail(cause error, op string) error {
	err := apperrors.WrapCodecFailure(cause, fmt.Sprintf("%s %s failed", c.params.Codec, op))
	c.lastErr = err
	c.transition(StateError)
	_ = c.release()
	metrics.IncrementCodecFailure(c.direction.String(), string(c.params.Codec))
	c.log.WithError(cause).Error("Codec failure")
	return err
}

func (c *Coder) engineErr() error {
	if c.cctx != nil {
		if err := c.cctx.Err(); err != nil {
			return err
		}
	}
	return errEngineFailed
}

func isNilUnit(unit types.MediaUnit) bool {
	switch u := unit.(type) {
	case nil:
		return true
	case *types.Packet:
		return u == nil
	case *types.AudioFrame:
		return u == nil
	case *types.PictureFrame:
		return u == nil
	}
	return false
}

func cloneUnit(unit types.MediaUnit) types.MediaUnit {
	switch u := unit.(type) {
	case *types.Packet:
		return u.Clone()
	case *types.AudioFrame:
		return u.Clone()
	case *types.PictureFrame:
		return u.Clone()
	}
	return unit
}
