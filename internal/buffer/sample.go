package buffer

const minFrames = 64

// SampleBuffer is a FIFO of interleaved PCM frames. A frame is one sample for
// every channel, so reads and writes never split a frame across channels.
// Storage is a ring that doubles on demand up to maxFrames.
//
// SampleBuffer is not safe for concurrent use; it belongs to a single coder.
type SampleBuffer struct {
	data          []byte
	bytesPerFrame int
	maxFrames     int

	readPos  int // byte offset of the oldest frame
	buffered int // frames held

	written int64
	read    int64
}

// NewSampleBuffer creates a buffer for frames of bytesPerFrame bytes that
// holds at most maxFrames frames.
func NewSampleBuffer(bytesPerFrame, maxFrames int) (*SampleBuffer, error) {
	if bytesPerFrame <= 0 {
		return nil, misaligned(0, bytesPerFrame)
	}
	if maxFrames <= 0 {
		return nil, capacityExceeded(0, 0, maxFrames)
	}

	initial := minFrames
	if initial > maxFrames {
		initial = maxFrames
	}

	return &SampleBuffer{
		data:          make([]byte, initial*bytesPerFrame),
		bytesPerFrame: bytesPerFrame,
		maxFrames:     maxFrames,
	}, nil
}

// Write appends whole frames. Nothing is written on error.
func (sb *SampleBuffer) Write(payload []byte) error {
	if len(payload)%sb.bytesPerFrame != 0 {
		return misaligned(len(payload), sb.bytesPerFrame)
	}

	frames := len(payload) / sb.bytesPerFrame
	if frames == 0 {
		return nil
	}
	if sb.buffered+frames > sb.maxFrames {
		return capacityExceeded(frames, sb.buffered, sb.maxFrames)
	}

	sb.ensure(sb.buffered + frames)

	size := len(sb.data)
	writePos := (sb.readPos + sb.buffered*sb.bytesPerFrame) % size
	n := copy(sb.data[writePos:], payload)
	if n < len(payload) {
		copy(sb.data, payload[n:])
	}

	sb.buffered += frames
	sb.written += int64(frames)
	return nil
}

// Read moves up to frames frames into dst and returns how many were moved.
// dst must hold frames*BytesPerFrame bytes.
func (sb *SampleBuffer) Read(dst []byte, frames int) int {
	if frames > sb.buffered {
		frames = sb.buffered
	}
	if max := len(dst) / sb.bytesPerFrame; frames > max {
		frames = max
	}
	if frames <= 0 {
		return 0
	}

	want := frames * sb.bytesPerFrame
	n := copy(dst[:want], sb.data[sb.readPos:])
	if n < want {
		copy(dst[n:want], sb.data)
	}

	sb.readPos = (sb.readPos + want) % len(sb.data)
	sb.buffered -= frames
	sb.read += int64(frames)
	if sb.buffered == 0 {
		sb.readPos = 0
	}
	return frames
}

// Discard drops up to frames of the oldest frames.
func (sb *SampleBuffer) Discard(frames int) int {
	if frames > sb.buffered {
		frames = sb.buffered
	}
	if frames <= 0 {
		return 0
	}
	sb.readPos = (sb.readPos + frames*sb.bytesPerFrame) % len(sb.data)
	sb.buffered -= frames
	sb.read += int64(frames)
	if sb.buffered == 0 {
		sb.readPos = 0
	}
	return frames
}

// Len returns the number of buffered frames.
func (sb *SampleBuffer) Len() int {
	return sb.buffered
}

// BytesPerFrame returns the frame width in bytes.
func (sb *SampleBuffer) BytesPerFrame() int {
	return sb.bytesPerFrame
}

// Cap returns the frame ceiling.
func (sb *SampleBuffer) Cap() int {
	return sb.maxFrames
}

// Reset empties the buffer and keeps its storage.
func (sb *SampleBuffer) Reset() {
	sb.readPos = 0
	sb.buffered = 0
}

// Stats returns lifetime counters.
func (sb *SampleBuffer) Stats() SampleStats {
	return SampleStats{
		Buffered:       sb.buffered,
		CapacityFrames: len(sb.data) / sb.bytesPerFrame,
		MaxFrames:      sb.maxFrames,
		FramesWritten:  sb.written,
		FramesRead:     sb.read,
	}
}

// SampleStats holds SampleBuffer counters, in frames.
type SampleStats struct {
	Buffered       int
	CapacityFrames int
	MaxFrames      int
	FramesWritten  int64
	FramesRead     int64
}

// ensure grows storage to hold at least frames frames and linearizes the
// contents at offset zero.
func (sb *SampleBuffer) ensure(frames int) {
	capFrames := len(sb.data) / sb.bytesPerFrame
	if frames <= capFrames {
		return
	}

	for capFrames < frames {
		capFrames *= 2
	}
	if capFrames > sb.maxFrames {
		capFrames = sb.maxFrames
	}

	grown := make([]byte, capFrames*sb.bytesPerFrame)
	used := sb.buffered * sb.bytesPerFrame
	n := copy(grown, sb.data[sb.readPos:])
	if n > used {
		n = used
	}
	if n < used {
		copy(grown[n:used], sb.data[:used-n])
	}

	sb.data = grown
	sb.readPos = 0
}
