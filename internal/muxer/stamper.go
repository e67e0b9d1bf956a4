package muxer

import (
	"fmt"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/media/types"
	"github.com/zsiec/avcore/internal/metrics"
)

// ClampPolicy selects when pts is clamped to be at least dts.
type ClampPolicy int

const (
	// ClampOnCollision clamps only packets whose dts was just repaired.
	ClampOnCollision ClampPolicy = iota
	// ClampAlways clamps every packet carrying both timestamps.
	ClampAlways
)

func (p ClampPolicy) String() string {
	if p == ClampAlways {
		return "always"
	}
	return "on_collision"
}

// ParseClampPolicy parses the config form of a policy.
func ParseClampPolicy(s string) (ClampPolicy, error) {
	switch s {
	case "", "on_collision":
		return ClampOnCollision, nil
	case "always":
		return ClampAlways, nil
	}
	return ClampOnCollision, apperrors.NewInvalidArgument("unknown clamp policy %q", s)
}

// RepairPolicy selects which dts values are moved forward.
type RepairPolicy int

const (
	// RepairMonotonic repairs any dts that does not advance past the last
	// one, keeping the stream strictly increasing.
	RepairMonotonic RepairPolicy = iota
	// RepairOnCollision repairs only a dts equal to the last one and lets
	// an earlier dts through unchanged.
	RepairOnCollision
)

func (p RepairPolicy) String() string {
	if p == RepairOnCollision {
		return "on_collision"
	}
	return "monotonic"
}

// ParseRepairPolicy parses the config form of a policy.
func ParseRepairPolicy(s string) (RepairPolicy, error) {
	switch s {
	case "", "monotonic":
		return RepairMonotonic, nil
	case "on_collision":
		return RepairOnCollision, nil
	}
	return RepairMonotonic, apperrors.NewInvalidArgument("unknown repair policy %q", s)
}

// StampResult reports what Stamp changed beyond rescaling.
type StampResult struct {
	// Repaired is set when dts was moved forward to stay strictly
	// increasing.
	Repaired bool
	// Clamped is set when pts was raised to dts.
	Clamped bool
}

// Stamper rewrites outbound packets into a stream's time base and keeps the
// stream's dts strictly increasing.
type Stamper struct {
	policy ClampPolicy
	repair RepairPolicy
	log    *logger.RateLimitedLogger
}

// NewStamper creates a stamper. Repair warnings are limited to
// repairsPerSecond lines per second.
func NewStamper(policy ClampPolicy, log logger.Logger, repairsPerSecond float64) *Stamper {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if repairsPerSecond <= 0 {
		repairsPerSecond = 1
	}
	rl := logger.NewRateLimitedLogger(log).
		WithLimit(logger.CategoryTimestampRepair, repairsPerSecond, 5)
	return &Stamper{policy: policy, log: rl}
}

// WithRepairPolicy sets the repair policy. The default is RepairMonotonic.
func (s *Stamper) WithRepairPolicy(p RepairPolicy) *Stamper {
	s.repair = p
	return s
}

// Policy returns the clamp policy.
func (s *Stamper) Policy() ClampPolicy { return s.policy }

// RepairPolicy returns the repair policy.
func (s *Stamper) RepairPolicy() RepairPolicy { return s.repair }

// Stamp converts pkt into st's time base in place. The caller must hold the
// stream's lock: a stream is stamped by one goroutine at a time, in write
// order.
//
// A packet already in the stream time base passes through unchanged.
// Otherwise pts, dts and a non-negative duration are rescaled rounding down.
// When the rescaled dts does not advance past the stream's last dts it is
// moved to lastDTS+1, pts moves by the same amount and is clamped to at
// least the new dts. Under RepairOnCollision only a dts equal to the last
// one is moved.
func (s *Stamper) Stamp(st *StreamState, pkt *types.Packet) (StampResult, error) {
	var res StampResult
	if pkt == nil {
		return res, apperrors.NewInvalidArgument("no packet to stamp")
	}
	tb := st.info.TimeBase
	if pkt.Base.Den <= 0 || pkt.Base.Num <= 0 {
		return res, apperrors.NewInvalidArgument("packet for stream %d has no time base", st.info.Index)
	}

	pkt.StreamIndex = st.info.Index

	if pkt.Base.Equal(tb) {
		if pkt.DTS != types.NoTimestamp && (st.lastDTS == types.NoTimestamp || pkt.DTS > st.lastDTS) {
			st.lastDTS = pkt.DTS
		}
		res.Clamped = s.clampAlways(pkt)
		return res, nil
	}

	src := pkt.Base
	duration := pkt.Duration
	if duration >= 0 {
		d, err := types.Rescale(duration, src, tb, types.RoundDown)
		if err != nil {
			return res, s.rescaleErr(st, "duration", err)
		}
		duration = d
	}

	pts, err := types.Rescale(pkt.PTS, src, tb, types.RoundDown|types.RoundPassMinMax)
	if err != nil {
		return res, s.rescaleErr(st, "pts", err)
	}
	dts, err := types.Rescale(pkt.DTS, src, tb, types.RoundDown|types.RoundPassMinMax)
	if err != nil {
		return res, s.rescaleErr(st, "dts", err)
	}

	if dts != types.NoTimestamp {
		if s.needsRepair(st.lastDTS, dts) {
			repaired := st.lastDTS + 1
			shift := repaired - dts
			kind := "collision"
			if shift > 1 {
				kind = "regression"
			}

			s.log.Warn(logger.CategoryTimestampRepair, "Repaired non-increasing dts", map[string]interface{}{
				"stream_index": st.info.Index,
				"dts":          dts,
				"last_dts":     st.lastDTS,
				"shift":        shift,
			})
			metrics.IncrementTimestampRepair(st.info.Index, kind)

			dts = repaired
			if pts != types.NoTimestamp {
				pts += shift
			}
			if pts == types.NoTimestamp || pts < dts {
				if pts != types.NoTimestamp {
					res.Clamped = true
				}
				pts = dts
			}
			res.Repaired = true
			st.repairs++
		}
		st.lastDTS = dts
	}

	pkt.Duration = duration
	pkt.PTS = pts
	pkt.DTS = dts
	pkt.Base = tb

	if s.clampAlways(pkt) {
		res.Clamped = true
	}
	return res, nil
}

func (s *Stamper) needsRepair(last, dts int64) bool {
	if last == types.NoTimestamp {
		return false
	}
	if s.repair == RepairOnCollision {
		return dts == last
	}
	return dts <= last
}

func (s *Stamper) clampAlways(pkt *types.Packet) bool {
	if s.policy != ClampAlways || pkt.PTS == types.NoTimestamp || pkt.DTS == types.NoTimestamp {
		return false
	}
	if pkt.PTS < pkt.DTS {
		pkt.PTS = pkt.DTS
		return true
	}
	return false
}

func (s *Stamper) rescaleErr(st *StreamState, field string, err error) error {
	return apperrors.Wrap(err, apperrors.ErrorTypeInvalidArgument,
		fmt.Sprintf("cannot rescale %s into stream %d time base %s", field, st.info.Index, st.info.TimeBase))
}
