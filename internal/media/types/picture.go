package types

import apperrors "github.com/zsiec/avcore/internal/errors"

// PictureFrame holds one raw video picture split into planes.
type PictureFrame struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	Planes      [][]byte
	PTS         int64
	Base        Rational
	Keyframe    bool
	Complete    bool
}

// NewPictureFrame returns an empty picture with the given geometry.
func NewPictureFrame(width, height int, format PixelFormat) (*PictureFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, invalidArgument("invalid picture size %dx%d", width, height)
	}
	if format == PixelFormatNone {
		return nil, invalidArgument("pixel format required")
	}
	return &PictureFrame{
		Width:       width,
		Height:      height,
		PixelFormat: format,
		PTS:         NoTimestamp,
	}, nil
}

// Kind implements MediaUnit.
func (p *PictureFrame) Kind() MediaKind { return MediaKindVideo }

// TimeBase implements MediaUnit.
func (p *PictureFrame) TimeBase() Rational { return p.Base }

// Timestamp implements MediaUnit.
func (p *PictureFrame) Timestamp() int64 { return p.PTS }

// IsComplete implements MediaUnit.
func (p *PictureFrame) IsComplete() bool {
	if !p.Complete || len(p.Planes) == 0 {
		return false
	}
	for _, plane := range p.Planes {
		if len(plane) == 0 {
			return false
		}
	}
	return true
}

// Reset drops the planes but keeps the geometry.
func (p *PictureFrame) Reset() {
	p.Planes = nil
	p.PTS = NoTimestamp
	p.Keyframe = false
	p.Complete = false
}

func invalidArgument(format string, args ...interface{}) error {
	return apperrors.NewInvalidArgument(format, args...)
}

// Clone returns a deep copy.
func (p *PictureFrame) Clone() *PictureFrame {
	c := *p
	c.Planes = make([][]byte, len(p.Planes))
	for i, plane := range p.Planes {
		c.Planes[i] = append([]byte(nil), plane...)
	}
	return &c
}
