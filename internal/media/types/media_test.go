package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_Completeness(t *testing.T) {
	pkt := NewPacket()
	assert.False(t, pkt.IsComplete())
	assert.Equal(t, NoTimestamp, pkt.Timestamp())

	pkt.Complete = true
	assert.False(t, pkt.IsComplete(), "empty payload is never complete")

	pkt.Data = []byte{1, 2, 3}
	assert.True(t, pkt.IsComplete())

	pkt.DTS = 10
	assert.Equal(t, int64(10), pkt.Timestamp())
	pkt.PTS = 12
	assert.Equal(t, int64(12), pkt.Timestamp())

	clone := pkt.Clone()
	clone.Data[0] = 9
	assert.Equal(t, byte(1), pkt.Data[0])

	pkt.Reset()
	assert.False(t, pkt.IsComplete())
	assert.Equal(t, NoTimestamp, pkt.PTS)
	assert.Equal(t, int64(-1), pkt.Duration)
}

func TestAudioFrame(t *testing.T) {
	frame, err := NewAudioFrame(48000, 2, SampleFormatS16, 1024)
	require.NoError(t, err)

	assert.Equal(t, MediaKindAudio, frame.Kind())
	assert.Equal(t, TimeBase48kHz, frame.TimeBase())
	assert.Equal(t, 4, frame.BytesPerFrame())
	assert.Equal(t, 4096, cap(frame.Data))
	assert.False(t, frame.IsComplete())

	require.NoError(t, frame.SetSamples(make([]byte, 40)))
	assert.Equal(t, 10, frame.NumSamples)
	assert.True(t, frame.IsComplete())

	assert.Error(t, frame.SetSamples(make([]byte, 3)))

	require.NoError(t, frame.SetSamples(nil))
	assert.False(t, frame.IsComplete())

	other, err := NewAudioFrame(48000, 1, SampleFormatS16, 0)
	require.NoError(t, err)
	assert.False(t, frame.SameLayout(other))
}

func TestNewAudioFrame_Validation(t *testing.T) {
	_, err := NewAudioFrame(0, 2, SampleFormatS16, 1)
	assert.Error(t, err)
	_, err = NewAudioFrame(48000, 0, SampleFormatS16, 1)
	assert.Error(t, err)
	_, err = NewAudioFrame(48000, 2, SampleFormatNone, 1)
	assert.Error(t, err)
	_, err = NewAudioFrame(48000, 2, SampleFormatS16, -1)
	assert.Error(t, err)
}

func TestPictureFrame(t *testing.T) {
	pic, err := NewPictureFrame(320, 240, PixelFormatYUV420P)
	require.NoError(t, err)
	assert.Equal(t, MediaKindVideo, pic.Kind())
	assert.False(t, pic.IsComplete())

	pic.Planes = [][]byte{make([]byte, 320*240), make([]byte, 160*120), nil}
	pic.Complete = true
	assert.False(t, pic.IsComplete(), "an empty plane keeps the picture incomplete")

	pic.Planes[2] = make([]byte, 160*120)
	assert.True(t, pic.IsComplete())

	_, err = NewPictureFrame(0, 240, PixelFormatYUV420P)
	assert.Error(t, err)
	_, err = NewPictureFrame(320, 240, PixelFormatNone)
	assert.Error(t, err)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "audio", MediaKindAudio.String())
	assert.Equal(t, "subtitle", MediaKindSubtitle.String())
	assert.Equal(t, "s16", SampleFormatS16.String())
	assert.Equal(t, 4, SampleFormatF32.BytesPerSample())
	assert.Equal(t, "yuv420p", PixelFormatYUV420P.String())
}
