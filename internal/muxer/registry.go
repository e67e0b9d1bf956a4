package muxer

import (
	"sync"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/registry"
)

// Registry holds the streams of one container. Streams are only added, never
// removed, and each is locked independently so different streams can be
// stamped concurrently.
type Registry struct {
	mu      sync.RWMutex
	streams []*StreamState
	stamper *Stamper
}

// NewRegistry creates an empty registry stamping with stamper.
func NewRegistry(stamper *Stamper) *Registry {
	return &Registry{stamper: stamper}
}

// Add registers a stream. The index is assigned in order of addition and
// overrides info.Index.
func (r *Registry) Add(info StreamInfo) (*StreamState, error) {
	if info.TimeBase.Den <= 0 || info.TimeBase.Num <= 0 {
		return nil, apperrors.NewInvalidArgument("stream time base must be positive, got %s", info.TimeBase)
	}
	if info.Kind == types.MediaKindUnknown {
		return nil, apperrors.NewInvalidArgument("stream media kind required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info.Index = len(r.streams)
	st := newStreamState(info)
	r.streams = append(r.streams, st)
	return st, nil
}

// Stream returns the stream at index.
func (r *Registry) Stream(index int) (*StreamState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.streams) {
		return nil, apperrors.NewInvalidArgument("no stream with index %d", index)
	}
	return r.streams[index], nil
}

// Len returns the number of streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Infos returns every stream description in index order.
func (r *Registry) Infos() []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StreamInfo, len(r.streams))
	for i, st := range r.streams {
		out[i] = st.info
	}
	return out
}

// Stamp stamps pkt for the stream at index under that stream's lock.
func (r *Registry) Stamp(index int, pkt *types.Packet) (StampResult, error) {
	st, err := r.Stream(index)
	if err != nil {
		return StampResult{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return r.stamper.Stamp(st, pkt)
}

// Snapshot returns every stream's observable state.
func (r *Registry) Snapshot() []registry.StreamSnapshot {
	r.mu.RLock()
	streams := append([]*StreamState(nil), r.streams...)
	r.mu.RUnlock()

	out := make([]registry.StreamSnapshot, len(streams))
	for i, st := range streams {
		out[i] = st.Snapshot()
	}
	return out
}
