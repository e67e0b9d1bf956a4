package types

// AudioFrame holds interleaved raw audio samples.
type AudioFrame struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
	NumSamples int // Samples per channel held in Data
	Data       []byte
	PTS        int64
	Base       Rational
	Complete   bool
}

// NewAudioFrame allocates a frame able to hold capacity samples per channel.
// The frame starts incomplete and empty.
func NewAudioFrame(sampleRate, channels int, format SampleFormat, capacity int) (*AudioFrame, error) {
	if sampleRate <= 0 {
		return nil, invalidArgument("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, invalidArgument("channels must be positive, got %d", channels)
	}
	if format.BytesPerSample() == 0 {
		return nil, invalidArgument("unsupported sample format %s", format)
	}
	if capacity < 0 {
		return nil, invalidArgument("negative frame capacity %d", capacity)
	}
	tb, err := SampleTimeBase(sampleRate)
	if err != nil {
		return nil, err
	}
	return &AudioFrame{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     format,
		Data:       make([]byte, 0, capacity*channels*format.BytesPerSample()),
		PTS:        NoTimestamp,
		Base:       tb,
	}, nil
}

// Kind implements MediaUnit.
func (f *AudioFrame) Kind() MediaKind { return MediaKindAudio }

// TimeBase implements MediaUnit.
func (f *AudioFrame) TimeBase() Rational { return f.Base }

// Timestamp implements MediaUnit.
func (f *AudioFrame) Timestamp() int64 { return f.PTS }

// IsComplete implements MediaUnit.
func (f *AudioFrame) IsComplete() bool {
	return f.Complete && f.NumSamples > 0 && len(f.Data) > 0
}

// BytesPerFrame returns the size of one sample across all channels.
func (f *AudioFrame) BytesPerFrame() int {
	return f.Channels * f.Format.BytesPerSample()
}

// SameLayout reports whether o has the same rate, channel count and format.
func (f *AudioFrame) SameLayout(o *AudioFrame) bool {
	return f.SampleRate == o.SampleRate && f.Channels == o.Channels && f.Format == o.Format
}

// SetSamples replaces the payload and marks the frame complete when it is
// non-empty. len(data) must be a whole number of sample frames.
func (f *AudioFrame) SetSamples(data []byte) error {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return invalidArgument("audio frame has no layout")
	}
	if len(data)%bpf != 0 {
		return invalidArgument("payload of %d bytes is not a multiple of %d", len(data), bpf)
	}
	f.Data = append(f.Data[:0], data...)
	f.NumSamples = len(data) / bpf
	f.Complete = f.NumSamples > 0
	return nil
}

// Reset empties the frame but keeps its layout and capacity.
func (f *AudioFrame) Reset() {
	f.Data = f.Data[:0]
	f.NumSamples = 0
	f.PTS = NoTimestamp
	f.Complete = false
}

// Clone returns a deep copy.
func (f *AudioFrame) Clone() *AudioFrame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// SameAudioLayout reports whether the frame matches the given rate, channel
// count and format.
func (f *AudioFrame) SameAudioLayout(sampleRate, channels int, format SampleFormat) bool {
	return f.SampleRate == sampleRate && f.Channels == channels && f.Format == format
}
