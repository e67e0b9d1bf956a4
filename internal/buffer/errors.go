package buffer

import (
	"fmt"

	apperrors "github.com/zsiec/avcore/internal/errors"
)

// ErrCapacityExceeded reports a write that would grow a SampleBuffer past
// its ceiling.
type ErrCapacityExceeded struct {
	Required  int
	Buffered  int
	MaxFrames int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("sample buffer full: need %d frames, %d buffered, ceiling %d",
		e.Required, e.Buffered, e.MaxFrames)
}

// ErrMisalignedWrite reports a payload that is not a whole number of frames.
type ErrMisalignedWrite struct {
	Length        int
	BytesPerFrame int
}

func (e *ErrMisalignedWrite) Error() string {
	return fmt.Sprintf("payload of %d bytes is not a multiple of %d bytes per frame",
		e.Length, e.BytesPerFrame)
}

func capacityExceeded(required, buffered, maxFrames int) error {
	cause := &ErrCapacityExceeded{Required: required, Buffered: buffered, MaxFrames: maxFrames}
	return apperrors.Wrap(cause, apperrors.ErrorTypeResourceExhausted, "sample buffer ceiling reached").
		WithDetails(map[string]interface{}{
			"required":   required,
			"buffered":   buffered,
			"max_frames": maxFrames,
		})
}

func misaligned(length, bytesPerFrame int) error {
	cause := &ErrMisalignedWrite{Length: length, BytesPerFrame: bytesPerFrame}
	return apperrors.Wrap(cause, apperrors.ErrorTypeInvalidArgument, "misaligned sample payload")
}
