package coder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/media/types"
)

func newTestRechunker(t *testing.T, frameSize, maxSamples int) *AudioRechunker {
	t.Helper()
	r, err := NewAudioRechunker(RechunkerConfig{
		FrameSize:    frameSize,
		SampleRate:   48000,
		Channels:     2,
		SampleFormat: types.SampleFormatS16,
		MaxSamples:   maxSamples,
		Label:        "test",
	})
	require.NoError(t, err)
	return r
}

func outFrame(t *testing.T) *types.AudioFrame {
	t.Helper()
	f, err := types.NewAudioFrame(48000, 2, types.SampleFormatS16, 0)
	require.NoError(t, err)
	return f
}

func TestNewAudioRechunker_Validation(t *testing.T) {
	base := RechunkerConfig{FrameSize: 1024, SampleRate: 48000, Channels: 2, SampleFormat: types.SampleFormatS16, MaxSamples: 4096}

	tests := []struct {
		name   string
		mutate func(c *RechunkerConfig)
	}{
		{name: "zero frame size", mutate: func(c *RechunkerConfig) { c.FrameSize = 0 }},
		{name: "zero rate", mutate: func(c *RechunkerConfig) { c.SampleRate = 0 }},
		{name: "no format", mutate: func(c *RechunkerConfig) { c.SampleFormat = types.SampleFormatNone }},
		{name: "ceiling below frame", mutate: func(c *RechunkerConfig) { c.MaxSamples = 1000 }},
		{name: "bad time base", mutate: func(c *RechunkerConfig) { c.TimeBase = types.Rational{Num: 0, Den: 5} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewAudioRechunker(cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidArgument))
		})
	}
}

func TestAudioRechunker_ConservesSamples(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, frameSize := range []int{1, 160, 1024, 2048} {
		r := newTestRechunker(t, frameSize, 1<<16)

		total := 0
		next := 0
		var got []int
		out := outFrame(t)

		for i := 0; i < 50; i++ {
			n := 1 + rng.Intn(3000)
			in := audioFrame(t, n, int64(total))
			for s := 0; s < n; s++ {
				in.Data[s*4] = byte(total + s)
			}
			total += n
			require.NoError(t, r.Push(in))

			for {
				ok, err := r.Pull(out)
				require.NoError(t, err)
				if !ok {
					break
				}
				require.Equal(t, frameSize, out.NumSamples)
				assert.Equal(t, int64(next), out.PTS)
				assert.Equal(t, byte(next), out.Data[0], "samples keep their order")
				next += out.NumSamples
				got = append(got, out.NumSamples)
			}
		}

		require.NoError(t, r.Push(nil))
		for {
			ok, err := r.Pull(out)
			require.NoError(t, err)
			if !ok {
				break
			}
			assert.LessOrEqual(t, out.NumSamples, frameSize)
			next += out.NumSamples
			got = append(got, out.NumSamples)
		}

		assert.Equal(t, total, next, "frame size %d", frameSize)
		assert.Equal(t, int64(total), r.Emitted())
		assert.True(t, r.Exhausted())
		for _, n := range got[:len(got)-1] {
			assert.Equal(t, frameSize, n, "only the last frame may be short")
		}
	}
}

func TestAudioRechunker_CapacityExceeded(t *testing.T) {
	r := newTestRechunker(t, 100, 300)

	require.NoError(t, r.Push(audioFrame(t, 250, 0)))
	err := r.Push(audioFrame(t, 100, 250))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeResourceExhausted))
	assert.Equal(t, 250, r.Buffered(), "rejected push leaves the buffer intact")

	ok, err := r.Pull(outFrame(t))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.Push(audioFrame(t, 100, 250)))
	assert.Equal(t, 250, r.Buffered())
}

func TestAudioRechunker_Errors(t *testing.T) {
	r := newTestRechunker(t, 100, 1000)

	mono, err := types.NewAudioFrame(48000, 1, types.SampleFormatS16, 10)
	require.NoError(t, err)
	require.NoError(t, mono.SetSamples(make([]byte, 20)))
	err = r.Push(mono)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidArgument))

	short := audioFrame(t, 10, 0)
	short.NumSamples = 20
	err = r.Push(short)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidArgument))

	_, err = r.Pull(nil)
	assert.Error(t, err)

	require.NoError(t, r.Push(nil))
	require.NoError(t, r.Push(nil), "repeated flush is harmless")
	err = r.Push(audioFrame(t, 10, 0))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	assert.True(t, r.Flushing())
}

func TestAudioRechunker_Timestamps(t *testing.T) {
	r, err := NewAudioRechunker(RechunkerConfig{
		FrameSize:    480,
		SampleRate:   48000,
		Channels:     2,
		SampleFormat: types.SampleFormatS16,
		TimeBase:     types.TimeBase90kHz,
		MaxSamples:   4800,
	})
	require.NoError(t, err)

	in := audioFrame(t, 1000, 2)
	in.Base = types.TimeBase1kHz
	require.NoError(t, r.Push(in))

	out := outFrame(t)
	var pts []int64
	for {
		ok, err := r.Pull(out)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, types.TimeBase90kHz, out.Base)
		pts = append(pts, out.PTS)
	}
	// Anchored at 2ms = 180 ticks, advancing 10ms = 900 ticks per frame.
	assert.Equal(t, []int64{180, 1080}, pts)
	assert.Equal(t, 40, r.Buffered())

	r.Close()
	assert.Equal(t, 0, r.Buffered())
	ok, err := r.Pull(out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAudioRechunker_NoTimestampAnchorsAtZero(t *testing.T) {
	r := newTestRechunker(t, 100, 1000)
	require.NoError(t, r.Push(audioFrame(t, 100, types.NoTimestamp)))

	out := outFrame(t)
	ok, err := r.Pull(out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), out.PTS)
}
