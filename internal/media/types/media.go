package types

// MediaKind identifies what a media unit or coder carries.
type MediaKind uint8

const (
	MediaKindUnknown MediaKind = iota
	MediaKindAudio
	MediaKindVideo
	MediaKindSubtitle
)

// String returns the string representation of MediaKind
func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	case MediaKindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// MediaUnit is the common view over packets and raw frames.
type MediaUnit interface {
	Kind() MediaKind
	TimeBase() Rational
	// Timestamp returns the unit's presentation time or NoTimestamp.
	Timestamp() int64
	// IsComplete reports whether the unit holds a fully populated,
	// non-empty payload.
	IsComplete() bool
}

// SampleFormat describes the layout of one interleaved audio sample.
type SampleFormat uint8

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatF32
	SampleFormatF64
)

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatF32:
		return 4
	case SampleFormatF64:
		return 8
	default:
		return 0
	}
}

// String returns the string representation of SampleFormat
func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatF64:
		return "f64"
	default:
		return "none"
	}
}

// PixelFormat describes the plane layout of a picture.
type PixelFormat uint8

const (
	PixelFormatNone PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatBGR24
)

// String returns the string representation of PixelFormat
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatYUV422P:
		return "yuv422p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatBGR24:
		return "bgr24"
	default:
		return "none"
	}
}

// CodecID names a codec known to a CodecEngine.
type CodecID string

const (
	CodecPCMS16LE CodecID = "pcm_s16le"
	CodecPCMS32LE CodecID = "pcm_s32le"
	CodecPCMF32LE CodecID = "pcm_f32le"
	CodecAAC      CodecID = "aac"
	CodecOpus     CodecID = "opus"
	CodecH264     CodecID = "h264"
	CodecHEVC     CodecID = "hevc"
	CodecAV1      CodecID = "av1"
)

// Common time bases
var (
	TimeBase90kHz = Rational{Num: 1, Den: 90000} // Standard video (RTP, MPEG-TS)
	TimeBase1kHz  = Rational{Num: 1, Den: 1000}  // Millisecond precision (Matroska)
	TimeBase48kHz = Rational{Num: 1, Den: 48000}
	TimeBase44kHz = Rational{Num: 1, Den: 44100}

	FrameRate24     = Rational{Num: 24, Den: 1}
	FrameRate25     = Rational{Num: 25, Den: 1}
	FrameRate30     = Rational{Num: 30, Den: 1}
	FrameRate60     = Rational{Num: 60, Den: 1}
	FrameRate23_976 = Rational{Num: 24000, Den: 1001}
	FrameRate29_97  = Rational{Num: 30000, Den: 1001}
	FrameRate59_94  = Rational{Num: 60000, Den: 1001}
)

// SampleTimeBase returns 1/sampleRate.
func SampleTimeBase(sampleRate int) (Rational, error) {
	if sampleRate <= 0 || sampleRate > MaxRationalBound {
		return Rational{}, invalidRational("sample rate %d out of range", sampleRate)
	}
	return Rational{Num: 1, Den: int32(sampleRate)}, nil
}
