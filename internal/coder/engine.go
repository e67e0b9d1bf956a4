package coder

import (
	"github.com/zsiec/avcore/internal/media/types"
)

// Status is the result of a single codec engine primitive.
type Status int

const (
	StatusOK Status = iota
	// StatusWouldBlock means the engine cannot make progress in this
	// direction until the other direction is serviced.
	StatusWouldBlock
	// StatusEOF means the engine has finished and will produce nothing more.
	StatusEOF
	// StatusError means the engine failed; CodecContext.Err has the cause.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWouldBlock:
		return "would_block"
	case StatusEOF:
		return "eof"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Capability describes optional engine behavior.
type Capability uint32

const (
	// CapVariableFrameSize means the encoder accepts audio frames of any size.
	CapVariableFrameSize Capability = 1 << iota
	// CapDelay means the engine may hold input back until flushed.
	CapDelay
)

// Has reports whether every bit in o is set.
func (c Capability) Has(o Capability) bool { return c&o == o }

// Flags are coder settings fixed before Open.
type Flags uint32

const (
	FlagGlobalHeader Flags = 1 << iota
	FlagLowDelay
	FlagBitExact
)

// CodecParams describes the stream a CodecContext is opened for.
type CodecParams struct {
	Codec     types.CodecID
	Direction Direction
	Kind      types.MediaKind
	TimeBase  types.Rational
	Flags     Flags

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat types.SampleFormat

	// Video
	Width       int
	Height      int
	PixelFormat types.PixelFormat
	FrameRate   types.Rational
}

// CodecEngine creates codec contexts. Implementations wrap a codec library.
type CodecEngine interface {
	ProbeDecode(id types.CodecID) bool
	ProbeEncode(id types.CodecID) bool
	// Open returns the context and the option keys it did not recognize.
	Open(params CodecParams, options map[string]string) (CodecContext, map[string]string, error)
}

// CodecContext is one opened codec instance. Submit with a nil unit signals
// the end of input. Drained units carry timestamps in the opened time base,
// or types.NoTimestamp.
type CodecContext interface {
	FrameSize() int
	Capabilities() Capability
	EncodeSubmit(raw types.MediaUnit) Status
	EncodeDrain(pkt *types.Packet) Status
	DecodeSubmit(pkt *types.Packet) Status
	DecodeDrain(raw types.MediaUnit) Status
	Err() error
	Close() error
}
