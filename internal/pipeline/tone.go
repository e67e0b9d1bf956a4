package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/avcore/internal/media/types"
)

// toneAmplitude keeps generated samples at half of full scale.
const toneAmplitude = 0.5

// ToneSource generates a sine tone as interleaved audio frames of a fixed
// number of samples per channel. The last frame may be shorter.
type ToneSource struct {
	sampleRate int
	channels   int
	format     types.SampleFormat
	freq       float64
	chunk      int

	total int64
	pos   int64
}

// NewToneSource creates a source producing total samples per channel.
func NewToneSource(sampleRate, channels int, format types.SampleFormat, freq float64, chunk int, total int64) (*ToneSource, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid layout %d Hz x %d channels", sampleRate, channels)
	}
	if format.BytesPerSample() == 0 {
		return nil, fmt.Errorf("unsupported sample format %s", format)
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunk)
	}
	if freq <= 0 || freq >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("tone frequency %.1f Hz outside (0, %d)", freq, sampleRate/2)
	}
	return &ToneSource{
		sampleRate: sampleRate,
		channels:   channels,
		format:     format,
		freq:       freq,
		chunk:      chunk,
		total:      total,
	}, nil
}

// Generated returns the number of samples per channel produced so far.
func (t *ToneSource) Generated() int64 { return t.pos }

// Next fills frame with the next chunk. It returns false once the tone is
// exhausted. frame must share the source's layout.
func (t *ToneSource) Next(frame *types.AudioFrame) (bool, error) {
	if !frame.SameAudioLayout(t.sampleRate, t.channels, t.format) {
		return false, fmt.Errorf("frame layout %d Hz x %d %s does not match tone", frame.SampleRate, frame.Channels, frame.Format)
	}
	remaining := t.total - t.pos
	if remaining <= 0 {
		return false, nil
	}
	n := int64(t.chunk)
	if remaining < n {
		n = remaining
	}

	bps := t.format.BytesPerSample()
	buf := make([]byte, int(n)*t.channels*bps)
	off := 0
	for i := int64(0); i < n; i++ {
		v := toneAmplitude * math.Sin(2*math.Pi*t.freq*float64(t.pos+i)/float64(t.sampleRate))
		for c := 0; c < t.channels; c++ {
			putSample(buf[off:], t.format, v)
			off += bps
		}
	}

	if err := frame.SetSamples(buf); err != nil {
		return false, err
	}
	frame.PTS = t.pos
	frame.Base = types.Rational{Num: 1, Den: int32(t.sampleRate)}
	t.pos += n
	return true, nil
}

func putSample(b []byte, format types.SampleFormat, v float64) {
	switch format {
	case types.SampleFormatS16:
		binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(v*math.MaxInt16))))
	case types.SampleFormatS32:
		binary.LittleEndian.PutUint32(b, uint32(int32(math.Round(v*math.MaxInt32))))
	case types.SampleFormatF32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}
