package health

import (
	"context"
	"fmt"

	"github.com/zsiec/avcore/internal/coder"
	"github.com/zsiec/avcore/internal/media/types"
)

// EngineChecker verifies that a codec engine supports the codecs the
// service needs and, for one PCM layout, that an encoder round trip through
// the Coder produces packets.
type EngineChecker struct {
	name   string
	engine coder.CodecEngine
	codecs []types.CodecID
	smoke  *coder.CodecParams
}

// NewEngineChecker creates a checker requiring encode support for codecs.
func NewEngineChecker(name string, engine coder.CodecEngine, codecs ...types.CodecID) *EngineChecker {
	return &EngineChecker{name: name, engine: engine, codecs: codecs}
}

// WithSmokeEncode adds an encode of a short silent frame with params.
func (e *EngineChecker) WithSmokeEncode(params coder.CodecParams) *EngineChecker {
	e.smoke = &params
	return e
}

// Name returns the name of the checker.
func (e *EngineChecker) Name() string {
	return e.name
}

// Check probes every codec and runs the smoke encode, if configured.
func (e *EngineChecker) Check(ctx context.Context) error {
	var missing []types.CodecID
	for _, id := range e.codecs {
		if !e.engine.ProbeEncode(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing encoders: %v", missing)
	}

	if e.smoke == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return smokeEncode(ctx, e.engine, *e.smoke)
}

// Details implements Detailer.
func (e *EngineChecker) Details() map[string]interface{} {
	codecs := make([]string, len(e.codecs))
	for i, id := range e.codecs {
		codecs[i] = string(id)
	}
	return map[string]interface{}{"codecs": codecs}
}

func smokeEncode(ctx context.Context, engine coder.CodecEngine, params coder.CodecParams) error {
	enc, err := coder.NewEncoder(engine, params, coder.Options{})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	defer enc.Close()

	if _, err := enc.Open(nil); err != nil {
		return fmt.Errorf("open encoder: %w", err)
	}

	frame, err := types.NewAudioFrame(params.SampleRate, params.Channels, params.SampleFormat, 0)
	if err != nil {
		return err
	}
	if err := frame.SetSamples(make([]byte, 64*frame.BytesPerFrame())); err != nil {
		return err
	}
	frame.PTS = 0

	pkt := types.NewPacket()
	produced := 0
	for _, unit := range []types.MediaUnit{frame, nil} {
		if _, err := enc.Send(unit); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := enc.Receive(pkt)
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			if outcome != coder.ReceiveProduced {
				break
			}
			produced++
		}
	}
	if produced == 0 {
		return fmt.Errorf("encoder produced no packets")
	}
	return nil
}
