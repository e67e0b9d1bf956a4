package muxer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/avcore/internal/coder"
	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/metrics"
	"github.com/zsiec/avcore/internal/registry"
)

// ContainerWriter writes stamped packets into a container format. Writers
// need not be safe for concurrent use; the Muxer serializes calls.
type ContainerWriter interface {
	// Format names the container, e.g. "webm".
	Format() string
	WriteHeader(streams []StreamInfo) error
	// WritePacket writes a packet already in the stream's time base.
	// StatusWouldBlock asks the caller to retry later; StatusEOF means the
	// output is closed.
	WritePacket(streamIndex int, pkt *types.Packet) coder.Status
	Err() error
	Close() error
}

// Options configure a Muxer.
type Options struct {
	// ID identifies the container in snapshots; generated when empty.
	ID string
	// Output is a descriptive location, e.g. the file path.
	Output        string
	Logger        logger.Logger
	ClampPolicy   ClampPolicy
	RepairPolicy  RepairPolicy
	RepairLogRate float64
	// Store receives snapshots after the header, on close and every
	// SnapshotInterval packets. Optional.
	Store            registry.Store
	SnapshotInterval int
}

// Muxer interleaves packets from several streams into one ContainerWriter.
// WritePacket may be called concurrently for different streams.
type Muxer struct {
	id     string
	output string
	writer ContainerWriter
	log    logger.Logger

	streams *Registry
	store   registry.Store
	every   int64

	writeMu       sync.Mutex
	headerWritten bool
	closed        bool
	failed        bool

	written   atomic.Int64
	createdAt time.Time
}

// New creates a muxer over writer.
func New(writer ContainerWriter, opts Options) (*Muxer, error) {
	if writer == nil {
		return nil, apperrors.NewInvalidArgument("container writer required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNullLogger()
	}
	if opts.ID == "" {
		opts.ID = registry.GenerateContainerID(writer.Format())
	}

	log := opts.Logger.WithFields(map[string]interface{}{
		"component":    "muxer",
		"container_id": opts.ID,
		"format":       writer.Format(),
	})

	return &Muxer{
		id:        opts.ID,
		output:    opts.Output,
		writer:    writer,
		log:       log,
		streams:   NewRegistry(NewStamper(opts.ClampPolicy, log, opts.RepairLogRate).WithRepairPolicy(opts.RepairPolicy)),
		store:     opts.Store,
		every:     int64(opts.SnapshotInterval),
		createdAt: time.Now(),
	}, nil
}

// ID returns the container id.
func (m *Muxer) ID() string { return m.id }

// Streams returns the stream registry.
func (m *Muxer) Streams() *Registry { return m.streams }

// AddStream registers a stream before the header is written and returns its
// index.
func (m *Muxer) AddStream(info StreamInfo) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.headerWritten || m.closed {
		return 0, apperrors.NewInvalidState("streams must be added before the header")
	}
	st, err := m.streams.Add(info)
	if err != nil {
		return 0, err
	}
	m.log.WithFields(map[string]interface{}{
		"stream_index": st.Index(),
		"codec":        string(info.Codec),
		"time_base":    info.TimeBase.String(),
	}).Debug("Stream added")
	return st.Index(), nil
}

// WriteHeader writes the container header for all added streams.
func (m *Muxer) WriteHeader(ctx context.Context) error {
	m.writeMu.Lock()
	if m.closed || m.headerWritten {
		m.writeMu.Unlock()
		return apperrors.NewInvalidState("header already written or muxer closed")
	}
	if m.streams.Len() == 0 {
		m.writeMu.Unlock()
		return apperrors.NewInvalidState("no streams to write")
	}
	if err := m.writer.WriteHeader(m.streams.Infos()); err != nil {
		m.failed = true
		m.writeMu.Unlock()
		metrics.IncrementWriteError(m.writer.Format())
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "write container header")
	}
	m.headerWritten = true
	m.writeMu.Unlock()

	m.log.WithField("streams", m.streams.Len()).Info("Container header written")
	m.publish(ctx, registry.ContainerWriting)
	return nil
}

// WritePacket stamps pkt into its stream's time base, in place, and writes
// it. pkt.StreamIndex selects the stream and pkt.Base must be set.
func (m *Muxer) WritePacket(ctx context.Context, pkt *types.Packet) (coder.Status, error) {
	if err := ctx.Err(); err != nil {
		return coder.StatusError, err
	}
	if pkt == nil {
		return coder.StatusError, apperrors.NewInvalidArgument("nil packet")
	}

	st, err := m.streams.Stream(pkt.StreamIndex)
	if err != nil {
		return coder.StatusError, err
	}

	status, err := m.stampAndWrite(st, pkt)
	if err != nil || status != coder.StatusOK {
		return status, err
	}

	if n := m.written.Add(1); m.every > 0 && n%m.every == 0 {
		m.publish(ctx, registry.ContainerWriting)
	}
	return status, nil
}

// stampAndWrite holds the stream lock across stamping and writing so a
// stream's packets reach the writer in stamp order.
func (m *Muxer) stampAndWrite(st *StreamState, pkt *types.Packet) (coder.Status, error) {
	m.writeMu.Lock()
	ready, closed := m.headerWritten, m.closed
	m.writeMu.Unlock()
	if closed {
		return coder.StatusEOF, nil
	}
	if !ready {
		return coder.StatusError, apperrors.NewInvalidState("write packet before header")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, err := m.streams.stamper.Stamp(st, pkt); err != nil {
		return coder.StatusError, err
	}

	m.writeMu.Lock()
	if m.closed {
		m.writeMu.Unlock()
		return coder.StatusEOF, nil
	}
	status := m.writer.WritePacket(st.info.Index, pkt)
	if status == coder.StatusError {
		m.failed = true
	}
	m.writeMu.Unlock()

	switch status {
	case coder.StatusOK:
		n := len(pkt.Data)
		st.packets++
		st.bytes += int64(n)
		metrics.IncrementPacketsStamped(st.info.Index)
		metrics.AddBytesWritten(m.writer.Format(), n)
	case coder.StatusError:
		metrics.IncrementWriteError(m.writer.Format())
		err := m.writer.Err()
		if err == nil {
			err = apperrors.NewInternalError("container writer failed")
		}
		return status, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "write packet")
	}
	return status, nil
}

// Close finalizes the container. Calling it again is a no-op.
func (m *Muxer) Close(ctx context.Context) error {
	m.writeMu.Lock()
	if m.closed {
		m.writeMu.Unlock()
		return nil
	}
	m.closed = true
	err := m.writer.Close()
	if err != nil {
		m.failed = true
	}
	m.writeMu.Unlock()

	state := registry.ContainerClosed
	if m.isFailed() {
		state = registry.ContainerError
	}
	m.publish(ctx, state)

	m.log.WithFields(map[string]interface{}{
		"packets": m.written.Load(),
		"state":   string(state),
	}).Info("Container closed")

	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "close container")
	}
	return nil
}

func (m *Muxer) isFailed() bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.failed
}

// Snapshot returns the container's observable state.
func (m *Muxer) Snapshot(state registry.ContainerState) *registry.ContainerSnapshot {
	return &registry.ContainerSnapshot{
		ID:        m.id,
		Format:    m.writer.Format(),
		Output:    m.output,
		State:     state,
		Streams:   m.streams.Snapshot(),
		CreatedAt: m.createdAt,
	}
}

func (m *Muxer) publish(ctx context.Context, state registry.ContainerState) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(ctx, m.Snapshot(state)); err != nil {
		m.log.WithError(err).Warn("Failed to publish container snapshot")
	}
}
