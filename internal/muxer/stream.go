// Package muxer stamps encoded packets into per-stream time bases and hands
// them to a ContainerWriter in a safe order.
package muxer

import (
	"sync"

	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/registry"
)

// StreamInfo describes one output stream.
type StreamInfo struct {
	Index    int
	Kind     types.MediaKind
	Codec    types.CodecID
	TimeBase types.Rational
	CoderID  string

	SampleRate   int
	Channels     int
	SampleFormat types.SampleFormat

	Width  int
	Height int
}

// InfoFromCoder derives stream info from an encoder. The stream time base
// starts as the coder's; container writers may require another.
func InfoFromCoder(c *coder.Coder) StreamInfo {
	p := c.Params()
	return StreamInfo{
		Kind:         p.Kind,
		Codec:        p.Codec,
		TimeBase:     p.TimeBase,
		CoderID:      c.ID(),
		SampleRate:   p.SampleRate,
		Channels:     p.Channels,
		SampleFormat: p.SampleFormat,
		Width:        p.Width,
		Height:       p.Height,
	}
}

// StreamState is the mutable per-stream state behind a StreamInfo. lastDTS
// only moves forward and is only written by the Stamper.
type StreamState struct {
	mu   sync.Mutex
	info StreamInfo

	lastDTS int64
	packets int64
	repairs int64
	bytes   int64
}

func newStreamState(info StreamInfo) *StreamState {
	return &StreamState{info: info, lastDTS: types.NoTimestamp}
}

// NewStreamState creates a standalone stream state.
func NewStreamState(index int, tb types.Rational) *StreamState {
	return newStreamState(StreamInfo{Index: index, TimeBase: tb})
}

// Info returns the stream description.
func (s *StreamState) Info() StreamInfo { return s.info }

// Index returns the stream index.
func (s *StreamState) Index() int { return s.info.Index }

// TimeBase returns the stream time base.
func (s *StreamState) TimeBase() types.Rational { return s.info.TimeBase }

// LastDTS returns the last stamped dts or types.NoTimestamp.
func (s *StreamState) LastDTS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDTS
}

// Snapshot returns the stream's observable state.
func (s *StreamState) Snapshot() registry.StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := registry.StreamSnapshot{
		Index:    s.info.Index,
		Kind:     s.info.Kind.String(),
		Codec:    string(s.info.Codec),
		CoderID:  s.info.CoderID,
		TimeBase: s.info.TimeBase.String(),
		Packets:  s.packets,
		Repairs:  s.repairs,
		Bytes:    s.bytes,
	}
	if s.lastDTS != types.NoTimestamp {
		dts := s.lastDTS
		snap.LastDTS = &dts
	}
	return snap
}
