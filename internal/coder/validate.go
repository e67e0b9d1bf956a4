package coder

import (
	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/media/types"
)

// validateInput checks a unit passed to Send before the engine sees it.
func (c *Coder) validateInput(unit types.MediaUnit) error {
	if c.direction == DirectionDecode {
		pkt, ok := unit.(*types.Packet)
		if !ok {
			return apperrors.NewInvalidArgument("decoder input must be a packet, got %T", unit)
		}
		if !pkt.IsComplete() {
			return apperrors.NewInvalidArgument("decoder input packet is not complete")
		}
		return nil
	}

	if !unit.IsComplete() {
		return apperrors.NewInvalidArgument("encoder input %s unit is not complete", unit.Kind())
	}
	return c.checkRaw(unit, "input")
}

// validateOutput checks the unit passed to Receive before the engine sees it.
func (c *Coder) validateOutput(out types.MediaUnit) error {
	if isNilUnit(out) {
		return apperrors.NewInvalidArgument("nil output unit")
	}
	if c.direction == DirectionEncode {
		if _, ok := out.(*types.Packet); !ok {
			return apperrors.NewInvalidArgument("encoder output must be a packet, got %T", out)
		}
		return nil
	}
	return c.checkRaw(out, "output")
}

// checkRaw matches a raw frame against the coder's kind and parameters.
func (c *Coder) checkRaw(unit types.MediaUnit, role string) error {
	switch c.params.Kind {
	case types.MediaKindAudio:
		frame, ok := unit.(*types.AudioFrame)
		if !ok {
			return apperrors.NewInvalidArgument("%s for an audio coder must be an audio frame, got %T", role, unit)
		}
		return c.ensureAudioParamsMatch(frame)
	case types.MediaKindVideo:
		pic, ok := unit.(*types.PictureFrame)
		if !ok {
			return apperrors.NewInvalidArgument("%s for a video coder must be a picture, got %T", role, unit)
		}
		return c.ensurePictureParamsMatch(pic)
	}
	return apperrors.NewInvalidArgument("coder media kind %s has no raw form", c.params.Kind)
}

func (c *Coder) ensureAudioParamsMatch(frame *types.AudioFrame) error {
	if frame.Channels != c.params.Channels {
		return apperrors.NewInvalidArgument("audio has %d channels, coder expects %d", frame.Channels, c.params.Channels)
	}
	if frame.SampleRate != c.params.SampleRate {
		return apperrors.NewInvalidArgument("audio sample rate %d does not match coder rate %d", frame.SampleRate, c.params.SampleRate)
	}
	if frame.Format != c.params.SampleFormat {
		return apperrors.NewInvalidArgument("audio format %s does not match coder format %s", frame.Format, c.params.SampleFormat)
	}
	return nil
}

func (c *Coder) ensurePictureParamsMatch(pic *types.PictureFrame) error {
	if pic.Width != c.params.Width {
		return apperrors.NewInvalidArgument("picture width %d does not match coder width %d", pic.Width, c.params.Width)
	}
	if pic.Height != c.params.Height {
		return apperrors.NewInvalidArgument("picture height %d does not match coder height %d", pic.Height, c.params.Height)
	}
	if pic.PixelFormat != c.params.PixelFormat {
		return apperrors.NewInvalidArgument("picture format %s does not match coder format %s", pic.PixelFormat, c.params.PixelFormat)
	}
	return nil
}
