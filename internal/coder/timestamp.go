package coder

import (
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
)

// maxPendingPackets bounds the packet timestamps waiting for a decoded frame.
// A decoder that merges packets never pops its entries, so the oldest are
// dropped.
const maxPendingPackets = 64

// sampleClock estimates decoded audio timestamps from the number of samples
// produced since the last discontinuity. It is anchored at the first packet
// timestamp, rebased into the coder time base, or at zero when packets carry
// none. Each decoded frame is checked against the timestamp of the packet
// that produced it, in submission order; a drift of more than one tick
// re-anchors the clock.
type sampleClock struct {
	sampleRate int
	timeBase   types.Rational

	anchor  int64
	samples int64

	pending []packetStamp
}

type packetStamp struct {
	ts   int64
	base types.Rational
}

func newSampleClock(sampleRate int, tb types.Rational) *sampleClock {
	return &sampleClock{
		sampleRate: sampleRate,
		timeBase:   tb,
		anchor:     types.NoTimestamp,
	}
}

// observe records a packet about to be submitted.
func (sc *sampleClock) observe(pkt *types.Packet) {
	if sc == nil || pkt == nil {
		return
	}

	ts := pkt.PTS
	if !pkt.Base.Valid() {
		ts = types.NoTimestamp
	}

	if sc.anchor == types.NoTimestamp {
		sc.anchor = 0
		if ts != types.NoTimestamp {
			if rebased, err := types.Rescale(ts, pkt.Base, sc.timeBase, types.RoundNearInf); err == nil {
				sc.anchor = rebased
			}
		}
	}

	if len(sc.pending) == maxPendingPackets {
		sc.pending = sc.pending[1:]
	}
	sc.pending = append(sc.pending, packetStamp{ts: ts, base: pkt.Base})
}

// next pops the timestamp of the oldest packet not yet matched to a frame.
func (sc *sampleClock) next() (packetStamp, bool) {
	if len(sc.pending) == 0 {
		return packetStamp{}, false
	}
	ps := sc.pending[0]
	sc.pending = sc.pending[1:]
	return ps, true
}

// stamp fills a missing PTS on a decoded frame and advances the clock.
func (sc *sampleClock) stamp(frame *types.AudioFrame, log logger.Logger) {
	if sc == nil {
		return
	}
	if sc.anchor == types.NoTimestamp {
		sc.anchor = 0
	}

	estimate := sc.estimate()

	if ps, ok := sc.next(); ok && ps.ts != types.NoTimestamp {
		if rebased, err := types.Rescale(estimate, sc.timeBase, ps.base, types.RoundNearInf); err == nil {
			delta := rebased - ps.ts
			if delta > 1 || delta < -1 {
				if anchor, err := types.Rescale(ps.ts, ps.base, sc.timeBase, types.RoundNearInf); err == nil {
					log.WithFields(map[string]interface{}{
						"delta":      delta,
						"old_anchor": sc.anchor,
						"new_anchor": anchor,
					}).Debug("Gap in audio, resetting sample clock")
					sc.anchor = anchor
					sc.samples = 0
					estimate = anchor
				}
			}
		}
	}

	if frame.PTS == types.NoTimestamp {
		frame.PTS = estimate
	}
	sc.samples += int64(frame.NumSamples)
}

func (sc *sampleClock) estimate() int64 {
	offset, err := types.Rescale(sc.samples, types.Rational{Num: 1, Den: int32(sc.sampleRate)}, sc.timeBase, types.RoundDown)
	if err != nil {
		return sc.anchor
	}
	return sc.anchor + offset
}

// rebaseAudio returns frame with its PTS in the coder time base. The
// caller's frame is never modified.
func (c *Coder) rebaseAudio(frame *types.AudioFrame) *types.AudioFrame {
	if frame.PTS == types.NoTimestamp || frame.Base == (types.Rational{}) || frame.Base.Equal(c.params.TimeBase) {
		return frame
	}
	pts, err := types.Rescale(frame.PTS, frame.Base, c.params.TimeBase, types.RoundNearInf)
	if err != nil {
		c.log.WithError(err).Warn("Dropping unconvertible input timestamp")
		pts = types.NoTimestamp
	}
	rebased := *frame
	rebased.PTS = pts
	rebased.Base = c.params.TimeBase
	return &rebased
}

// rebaseEncodeInput converts a raw unit's PTS into the coder time base.
func (c *Coder) rebaseEncodeInput(unit types.MediaUnit) types.MediaUnit {
	switch u := unit.(type) {
	case *types.AudioFrame:
		return c.rebaseAudio(u)
	case *types.PictureFrame:
		if u.PTS == types.NoTimestamp || u.Base == (types.Rational{}) || u.Base.Equal(c.params.TimeBase) {
			return u
		}
		pts, err := types.Rescale(u.PTS, u.Base, c.params.TimeBase, types.RoundNearInf)
		if err != nil {
			c.log.WithError(err).Warn("Dropping unconvertible input timestamp")
			pts = types.NoTimestamp
		}
		rebased := *u
		rebased.PTS = pts
		rebased.Base = c.params.TimeBase
		return &rebased
	}
	return unit
}
