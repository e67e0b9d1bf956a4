// Package pcm is a CodecEngine for uncompressed little-endian PCM audio.
// Packets carry the interleaved samples unchanged.
package pcm

import (
	"fmt"
	"strconv"

	"github.com/zsiec/avcore/internal/buffer"
	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
)

const (
	// DefaultQueueDepth bounds queued output units per context.
	DefaultQueueDepth = 8

	OptionFrameSize         = "frame_size"
	OptionVariableFrameSize = "variable_frame_size"
	OptionQueueDepth        = "queue_depth"
)

var sampleFormats = map[types.CodecID]types.SampleFormat{
	types.CodecPCMS16LE: types.SampleFormatS16,
	types.CodecPCMS32LE: types.SampleFormatS32,
	types.CodecPCMF32LE: types.SampleFormatF32,
}

// SampleFormatFor returns the raw sample format a PCM codec carries.
func SampleFormatFor(id types.CodecID) (types.SampleFormat, bool) {
	f, ok := sampleFormats[id]
	return f, ok
}

// Engine implements coder.CodecEngine.
type Engine struct {
	log        logger.Logger
	pool       *buffer.PayloadPool
	queueDepth int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithPayloadPool recycles queued payloads through pool.
func WithPayloadPool(pool *buffer.PayloadPool) Option {
	return func(e *Engine) { e.pool = pool }
}

// WithQueueDepth sets the default output queue depth.
func WithQueueDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.queueDepth = depth
		}
	}
}

// NewEngine creates a PCM engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:        logger.NewNullLogger(),
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = buffer.NewPayloadPool(64*1024, 2*e.queueDepth, nil)
	}
	return e
}

// ProbeDecode implements coder.CodecEngine.
func (e *Engine) ProbeDecode(id types.CodecID) bool {
	_, ok := sampleFormats[id]
	return ok
}

// ProbeEncode implements coder.CodecEngine.
func (e *Engine) ProbeEncode(id types.CodecID) bool {
	_, ok := sampleFormats[id]
	return ok
}

// Codecs lists the supported codec ids.
func (e *Engine) Codecs() []types.CodecID {
	return []types.CodecID{types.CodecPCMS16LE, types.CodecPCMS32LE, types.CodecPCMF32LE}
}

// Open implements coder.CodecEngine. Recognized options are frame_size,
// variable_frame_size and queue_depth; others are returned unset.
func (e *Engine) Open(params coder.CodecParams, options map[string]string) (coder.CodecContext, map[string]string, error) {
	format, ok := sampleFormats[params.Codec]
	if !ok {
		return nil, nil, fmt.Errorf("pcm: unsupported codec %q", params.Codec)
	}
	if params.Kind != types.MediaKindAudio {
		return nil, nil, fmt.Errorf("pcm: codec %s is audio, got %s parameters", params.Codec, params.Kind)
	}
	if params.SampleFormat != format {
		return nil, nil, fmt.Errorf("pcm: codec %s carries %s samples, got %s", params.Codec, format, params.SampleFormat)
	}
	if params.SampleRate <= 0 || params.Channels <= 0 {
		return nil, nil, fmt.Errorf("pcm: invalid layout %d Hz x %d channels", params.SampleRate, params.Channels)
	}
	if params.TimeBase.Den <= 0 || params.TimeBase.Num <= 0 {
		return nil, nil, fmt.Errorf("pcm: invalid time base %s", params.TimeBase)
	}

	frameSize := 0
	depth := e.queueDepth
	variable := true
	variableSet := false
	unset := make(map[string]string)

	for key, value := range options {
		switch key {
		case OptionFrameSize:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("pcm: invalid %s %q", key, value)
			}
			frameSize = n
		case OptionVariableFrameSize:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, nil, fmt.Errorf("pcm: invalid %s %q", key, value)
			}
			variable = b
			variableSet = true
		case OptionQueueDepth:
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, nil, fmt.Errorf("pcm: invalid %s %q", key, value)
			}
			depth = n
		default:
			unset[key] = value
		}
	}
	if !variableSet && frameSize > 0 {
		variable = false
	}

	caps := coder.Capability(0)
	if variable {
		caps |= coder.CapVariableFrameSize
	}

	ctx := &codecContext{
		params:    params,
		frameSize: frameSize,
		caps:      caps,
		depth:     depth,
		bpf:       params.Channels * format.BytesPerSample(),
		pool:      e.pool,
		sampleTB:  types.Rational{Num: 1, Den: int32(params.SampleRate)},
	}

	e.log.WithFields(map[string]interface{}{
		"codec":       string(params.Codec),
		"direction":   params.Direction.String(),
		"frame_size":  frameSize,
		"variable":    variable,
		"queue_depth": depth,
	}).Debug("PCM context opened")

	return ctx, unset, nil
}
