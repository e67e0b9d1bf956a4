// Package webm writes stamped packets into a WebM (Matroska) file.
package webm

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/muxer"
)

// TimeBase is the only stream time base the writer accepts: block
// timestamps are written at the default 1ms timecode scale.
var TimeBase = types.TimeBase1kHz

const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

var codecIDs = map[types.CodecID]string{
	types.CodecPCMS16LE: "A_PCM/INT/LIT",
	types.CodecPCMS32LE: "A_PCM/INT/LIT",
	types.CodecPCMF32LE: "A_PCM/FLOAT/IEEE",
	types.CodecOpus:     "A_OPUS",
	types.CodecAAC:      "A_AAC",
	types.CodecH264:     "V_MPEG4/ISO/AVC",
	types.CodecHEVC:     "V_MPEGH/ISO/HEVC",
	types.CodecAV1:      "V_AV1",
}

// CodecID returns the Matroska codec id for a codec.
func CodecID(id types.CodecID) (string, bool) {
	s, ok := codecIDs[id]
	return s, ok
}

// closeTimeout bounds how long Close waits for the EBML writer to flush.
const closeTimeout = 5 * time.Second

// Writer implements muxer.ContainerWriter over at-wat/ebml-go.
type Writer struct {
	out    *writeCloser
	logger *logrus.Entry

	mu     sync.Mutex
	tracks []webm.BlockWriteCloser
	closed bool

	// err is also set from the EBML writer's goroutine.
	errMu sync.Mutex
	err   error
}

// NewWriter creates a writer emitting to w. Closing the Writer closes w.
func NewWriter(w io.WriteCloser, logger *logrus.Logger) *Writer {
	entry := logger.WithField("component", "webm_writer")
	return &Writer{
		out:    newWriteCloser(w, entry),
		logger: entry,
	}
}

// writeCloser marks itself closed after the first write error so the EBML
// writer stops retrying a broken output. done is closed once the output is.
type writeCloser struct {
	w      io.WriteCloser
	logger *logrus.Entry
	n      atomic.Int64

	mu     sync.Mutex
	closed bool
	once   sync.Once
	done   chan struct{}
	err    error
}

func newWriteCloser(w io.WriteCloser, logger *logrus.Entry) *writeCloser {
	return &writeCloser{w: w, logger: logger, done: make(chan struct{})}
}

func (wc *writeCloser) Write(p []byte) (int, error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := wc.w.Write(p)
	wc.n.Add(int64(n))
	if err != nil {
		wc.logger.WithError(err).WithField("data_size", len(p)).Warn("Write error, marking output closed")
		wc.closed = true
	}
	return n, err
}

func (wc *writeCloser) Close() error {
	wc.once.Do(func() {
		wc.mu.Lock()
		wc.closed = true
		wc.err = wc.w.Close()
		wc.mu.Unlock()
		close(wc.done)
	})
	return wc.err
}

// Format implements muxer.ContainerWriter.
func (w *Writer) Format() string { return "webm" }

// BytesWritten returns the number of bytes emitted so far.
func (w *Writer) BytesWritten() int64 { return w.out.n.Load() }

// WriteHeader implements muxer.ContainerWriter.
func (w *Writer) WriteHeader(streams []muxer.StreamInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tracks != nil || w.closed {
		return errors.New("webm: header already written or writer closed")
	}
	if len(streams) == 0 {
		return errors.New("webm: no tracks")
	}

	entries := make([]webm.TrackEntry, 0, len(streams))
	for i, s := range streams {
		entry, err := trackEntry(i, s)
		if err != nil {
			w.setErr(err)
			return err
		}
		entries = append(entries, entry)
	}

	tracks, err := webm.NewSimpleBlockWriter(w.out, entries,
		mkvcore.WithOnFatalHandler(func(err error) {
			w.logger.WithError(err).Error("WebM writer failed")
			w.setErr(err)
		}),
	)
	if err != nil {
		w.setErr(err)
		return fmt.Errorf("webm: create block writer: %w", err)
	}
	w.tracks = tracks

	w.logger.WithField("tracks", len(tracks)).Debug("WebM header written")
	return nil
}

func trackEntry(i int, s muxer.StreamInfo) (webm.TrackEntry, error) {
	if !s.TimeBase.Equal(TimeBase) {
		return webm.TrackEntry{}, fmt.Errorf("webm: stream %d time base %s, want %s", i, s.TimeBase, TimeBase)
	}
	codecID, ok := codecIDs[s.Codec]
	if !ok {
		return webm.TrackEntry{}, fmt.Errorf("webm: codec %s has no Matroska mapping", s.Codec)
	}

	entry := webm.TrackEntry{
		Name:        fmt.Sprintf("%s %d", s.Kind, i),
		TrackNumber: uint64(i + 1),
		TrackUID:    uint64(i + 1),
		CodecID:     codecID,
	}
	switch s.Kind {
	case types.MediaKindAudio:
		if s.SampleRate <= 0 || s.Channels <= 0 {
			return webm.TrackEntry{}, fmt.Errorf("webm: audio stream %d has no sample layout", i)
		}
		entry.TrackType = trackTypeAudio
		entry.Audio = &webm.Audio{
			SamplingFrequency: float64(s.SampleRate),
			Channels:          uint64(s.Channels),
		}
	case types.MediaKindVideo:
		if s.Width <= 0 || s.Height <= 0 {
			return webm.TrackEntry{}, fmt.Errorf("webm: video stream %d has no picture size", i)
		}
		entry.TrackType = trackTypeVideo
		entry.Video = &webm.Video{
			PixelWidth:  uint64(s.Width),
			PixelHeight: uint64(s.Height),
		}
	default:
		return webm.TrackEntry{}, fmt.Errorf("webm: unsupported stream kind %s", s.Kind)
	}
	return entry, nil
}

// WritePacket implements muxer.ContainerWriter. The block timestamp is the
// packet pts, or dts when pts is absent.
func (w *Writer) WritePacket(streamIndex int, pkt *types.Packet) coder.Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Err() != nil {
		return coder.StatusError
	}
	switch {
	case w.closed:
		return coder.StatusEOF
	case w.tracks == nil:
		w.setErr(errors.New("webm: packet before header"))
		return coder.StatusError
	case streamIndex < 0 || streamIndex >= len(w.tracks):
		w.setErr(fmt.Errorf("webm: no track for stream %d", streamIndex))
		return coder.StatusError
	}

	ts := pkt.Timestamp()
	if ts == types.NoTimestamp {
		w.setErr(fmt.Errorf("webm: stream %d packet has no timestamp", streamIndex))
		return coder.StatusError
	}
	if len(pkt.Data) == 0 {
		return coder.StatusOK
	}

	if _, err := w.tracks[streamIndex].Write(pkt.Keyframe, ts, pkt.Data); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			w.closed = true
			return coder.StatusEOF
		}
		w.setErr(err)
		return coder.StatusError
	}
	return coder.StatusOK
}

// Err implements muxer.ContainerWriter.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *Writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Close finalizes the file. The EBML writer closes the output after its last
// track is closed; Close waits for that, then closes the output itself.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed && w.tracks == nil {
		return nil
	}
	w.closed = true

	var firstErr error
	for _, t := range w.tracks {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.tracks != nil {
		select {
		case <-w.out.done:
		case <-time.After(closeTimeout):
			w.logger.Warn("Timed out waiting for WebM writer to finish")
		}
	}
	w.tracks = nil

	if err := w.out.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
