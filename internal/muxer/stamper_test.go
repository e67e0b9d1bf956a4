package muxer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/media/types"
)

func packet(pts, dts int64, tb types.Rational) *types.Packet {
	pkt := types.NewPacket()
	pkt.PTS = pts
	pkt.DTS = dts
	pkt.Base = tb
	pkt.Data = []byte{1}
	return pkt
}

func TestStamper_DuplicateDTSIsRepaired(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase48kHz)

	first := packet(10000, 10000, types.TimeBase1kHz)
	res, err := s.Stamp(st, first)
	require.NoError(t, err)
	assert.False(t, res.Repaired)
	assert.Equal(t, int64(480000), first.DTS)
	assert.Equal(t, int64(480000), first.PTS)
	assert.Equal(t, types.TimeBase48kHz, first.Base)

	second := packet(10000, 10000, types.TimeBase1kHz)
	res, err = s.Stamp(st, second)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, int64(480001), second.DTS)
	assert.Equal(t, int64(480001), second.PTS)
	assert.Equal(t, int64(1), st.repairs)
	assert.Equal(t, int64(480001), st.LastDTS())
}

func TestStamper_CoarseDestinationStaysMonotonic(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.MustRational(1, 10))

	var dts []int64
	for _, ms := range []int64{0, 40, 80, 120, 160} {
		pkt := packet(ms, ms, types.TimeBase1kHz)
		_, err := s.Stamp(st, pkt)
		require.NoError(t, err)
		dts = append(dts, pkt.DTS)
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, dts)
}

func TestStamper_RandomInputIsStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bases := []types.Rational{types.TimeBase1kHz, types.TimeBase90kHz, types.TimeBase48kHz, types.MustRational(1001, 30000)}

	for _, dst := range bases {
		s := NewStamper(ClampOnCollision, nil, 0)
		st := NewStreamState(0, dst)
		last := types.NoTimestamp
		for i := 0; i < 500; i++ {
			src := bases[rng.Intn(len(bases))]
			if src.Equal(dst) {
				continue
			}
			dts := rng.Int63n(100000) - 1000
			pkt := packet(dts+rng.Int63n(10), dts, src)
			_, err := s.Stamp(st, pkt)
			require.NoError(t, err)
			if last != types.NoTimestamp {
				require.Greater(t, pkt.DTS, last, "dst %s packet %d", dst, i)
			}
			require.GreaterOrEqual(t, pkt.PTS, pkt.DTS)
			last = pkt.DTS
		}
	}
}

func TestStamper_Regression(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(2, types.TimeBase1kHz)

	_, err := s.Stamp(st, packet(90000, 90000, types.TimeBase90kHz))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), st.LastDTS())

	pkt := packet(45000+900, 45000, types.TimeBase90kHz)
	res, err := s.Stamp(st, pkt)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.False(t, res.Clamped)
	assert.Equal(t, 2, pkt.StreamIndex)
	assert.Equal(t, int64(1001), pkt.DTS)
	assert.Equal(t, int64(1011), pkt.PTS, "pts moves with dts")
}

func TestStamper_RepairClampsPTS(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase1kHz)

	_, err := s.Stamp(st, packet(0, 90, types.TimeBase90kHz))
	require.NoError(t, err)

	// B-frame style pts below dts; after the shift it is still behind.
	pkt := packet(-900, 90, types.TimeBase90kHz)
	res, err := s.Stamp(st, pkt)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.True(t, res.Clamped)
	assert.Equal(t, int64(2), pkt.DTS)
	assert.Equal(t, int64(2), pkt.PTS)
}

func TestStamper_AbsentTimestamps(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase48kHz)

	pkt := packet(types.NoTimestamp, types.NoTimestamp, types.TimeBase1kHz)
	pkt.Duration = 20
	res, err := s.Stamp(st, pkt)
	require.NoError(t, err)
	assert.Equal(t, StampResult{}, res)
	assert.Equal(t, types.NoTimestamp, pkt.PTS)
	assert.Equal(t, types.NoTimestamp, pkt.DTS)
	assert.Equal(t, int64(960), pkt.Duration)
	assert.Equal(t, types.NoTimestamp, st.LastDTS())

	_, err = s.Stamp(st, packet(5, 5, types.TimeBase1kHz))
	require.NoError(t, err)

	// pts only: dts stays absent, no repair.
	pkt = packet(1, types.NoTimestamp, types.TimeBase1kHz)
	res, err = s.Stamp(st, pkt)
	require.NoError(t, err)
	assert.False(t, res.Repaired)
	assert.Equal(t, int64(48), pkt.PTS)
	assert.Equal(t, int64(240), st.LastDTS())
}

func TestStamper_UnknownDurationKept(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase48kHz)

	pkt := packet(1, 1, types.TimeBase1kHz)
	_, err := s.Stamp(st, pkt)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pkt.Duration)
}

func TestStamper_SameTimeBasePassesThrough(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase1kHz)

	pkt := packet(100, 100, types.TimeBase1kHz)
	_, err := s.Stamp(st, pkt)
	require.NoError(t, err)

	again := packet(100, 100, types.TimeBase1kHz)
	res, err := s.Stamp(st, again)
	require.NoError(t, err)
	assert.False(t, res.Repaired)
	assert.Equal(t, int64(100), again.DTS)
	assert.Equal(t, int64(100), st.LastDTS())
}

func TestStamper_ClampPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  ClampPolicy
		src     types.Rational
		wantPTS int64
		clamped bool
	}{
		{"on collision leaves pts", ClampOnCollision, types.TimeBase90kHz, 1, false},
		{"always clamps", ClampAlways, types.TimeBase90kHz, 2, true},
		{"always clamps same base", ClampAlways, types.TimeBase1kHz, 2, true},
		{"on collision same base", ClampOnCollision, types.TimeBase1kHz, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStamper(tt.policy, nil, 0)
			st := NewStreamState(0, types.TimeBase1kHz)

			pts, dts := int64(1), int64(2)
			if tt.src.Equal(types.TimeBase90kHz) {
				pts, dts = 90, 180
			}
			pkt := packet(pts, dts, tt.src)
			res, err := s.Stamp(st, pkt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPTS, pkt.PTS)
			assert.Equal(t, tt.clamped, res.Clamped)
		})
	}
}

func TestStamper_RepairPolicy(t *testing.T) {
	tests := []struct {
		name         string
		policy       RepairPolicy
		srcDTS       []int64
		wantDTS      []int64
		wantRepaired []bool
	}{
		{
			name:         "monotonic repairs regression",
			policy:       RepairMonotonic,
			srcDTS:       []int64{500, 100, 700},
			wantDTS:      []int64{5, 6, 7},
			wantRepaired: []bool{false, true, false},
		},
		{
			name:         "on collision lets regression through",
			policy:       RepairOnCollision,
			srcDTS:       []int64{500, 100, 700},
			wantDTS:      []int64{5, 1, 7},
			wantRepaired: []bool{false, false, false},
		},
		{
			name:         "on collision repairs equal dts by one tick",
			policy:       RepairOnCollision,
			srcDTS:       []int64{500, 540, 600},
			wantDTS:      []int64{5, 6, 7},
			wantRepaired: []bool{false, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStamper(ClampOnCollision, nil, 0).WithRepairPolicy(tt.policy)
			assert.Equal(t, tt.policy, s.RepairPolicy())
			st := NewStreamState(0, types.MustRational(1, 10))

			var dts []int64
			var repaired []bool
			for _, ms := range tt.srcDTS {
				pkt := packet(ms, ms, types.TimeBase1kHz)
				res, err := s.Stamp(st, pkt)
				require.NoError(t, err)
				dts = append(dts, pkt.DTS)
				repaired = append(repaired, res.Repaired)
			}
			assert.Equal(t, tt.wantDTS, dts)
			assert.Equal(t, tt.wantRepaired, repaired)
			assert.Equal(t, tt.wantDTS[len(tt.wantDTS)-1], st.LastDTS())
		})
	}
}

func TestParseRepairPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RepairPolicy
		wantErr bool
	}{
		{"", RepairMonotonic, false},
		{"monotonic", RepairMonotonic, false},
		{"on_collision", RepairOnCollision, false},
		{"never", RepairMonotonic, true},
	}
	for _, tt := range tests {
		got, err := ParseRepairPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		if tt.in != "" {
			assert.Equal(t, tt.in, got.String())
		}
	}
}

func TestStamper_Errors(t *testing.T) {
	s := NewStamper(ClampOnCollision, nil, 0)
	st := NewStreamState(0, types.TimeBase1kHz)

	_, err := s.Stamp(st, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidArgument))

	pkt := types.NewPacket()
	pkt.PTS = 1
	_, err = s.Stamp(st, pkt)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidArgument))
}

func TestParseClampPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ClampPolicy
		wantErr bool
	}{
		{"", ClampOnCollision, false},
		{"on_collision", ClampOnCollision, false},
		{"always", ClampAlways, false},
		{"sometimes", ClampOnCollision, true},
	}
	for _, tt := range tests {
		got, err := ParseClampPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want.String(), got.String())
	}
	assert.Equal(t, "always", ClampAlways.String())
}
