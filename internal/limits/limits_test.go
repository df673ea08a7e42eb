package limits_test

import (
	"math"
	"testing"

	"github.com/programme-lv/modbox/internal/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestClampDefaults(t *testing.T) {
	l := limits.Clamp(limits.Partial{})
	assert.Equal(t, limits.Limits{
		CpuTimeMs:      2000,
		WallTimeMs:     8000,
		MaxOutputBytes: 512000,
		MaxMemoryMb:    256,
		MaxFileBytes:   10000000,
		MaxFiles:       200,
		Network:        limits.NetworkDeny,
	}, l)
	assert.Equal(t, l, limits.Default())
}

func TestClampBounds(t *testing.T) {
	low := limits.Clamp(limits.Partial{
		CpuTimeMs:      ptr(int64(-5)),
		WallTimeMs:     ptr(int64(300)),
		MaxOutputBytes: ptr(int64(2000)),
		MaxMemoryMb:    ptr(int64(1)),
		MaxFileBytes:   ptr(int64(0)),
		MaxFiles:       ptr(int64(math.MinInt64)),
	})
	assert.Equal(t, int64(250), low.CpuTimeMs)
	assert.Equal(t, int64(500), low.WallTimeMs)
	assert.Equal(t, int64(8192), low.MaxOutputBytes)
	assert.Equal(t, int64(64), low.MaxMemoryMb)
	assert.Equal(t, int64(256000), low.MaxFileBytes)
	assert.Equal(t, int64(10), low.MaxFiles)

	high := limits.Clamp(limits.Partial{
		CpuTimeMs:      ptr(int64(math.MaxInt64)),
		WallTimeMs:     ptr(int64(1 << 40)),
		MaxOutputBytes: ptr(int64(1 << 40)),
		MaxMemoryMb:    ptr(int64(1 << 20)),
		MaxFileBytes:   ptr(int64(1 << 40)),
		MaxFiles:       ptr(int64(1 << 20)),
	})
	assert.Equal(t, int64(30000), high.CpuTimeMs)
	assert.Equal(t, int64(120000), high.WallTimeMs)
	assert.Equal(t, int64(10000000), high.MaxOutputBytes)
	assert.Equal(t, int64(4096), high.MaxMemoryMb)
	assert.Equal(t, int64(200000000), high.MaxFileBytes)
	assert.Equal(t, int64(10000), high.MaxFiles)
}

func TestClampInRangeIsIdentity(t *testing.T) {
	in := limits.Partial{
		CpuTimeMs:      ptr(int64(1234)),
		WallTimeMs:     ptr(int64(9999)),
		MaxOutputBytes: ptr(int64(65536)),
		MaxMemoryMb:    ptr(int64(512)),
		MaxFileBytes:   ptr(int64(300000)),
		MaxFiles:       ptr(int64(42)),
		Network:        ptr(limits.NetworkAllow),
	}
	l := limits.Clamp(in)
	assert.Equal(t, *in.CpuTimeMs, l.CpuTimeMs)
	assert.Equal(t, *in.WallTimeMs, l.WallTimeMs)
	assert.Equal(t, *in.MaxOutputBytes, l.MaxOutputBytes)
	assert.Equal(t, *in.MaxMemoryMb, l.MaxMemoryMb)
	assert.Equal(t, *in.MaxFileBytes, l.MaxFileBytes)
	assert.Equal(t, *in.MaxFiles, l.MaxFiles)
	assert.Equal(t, limits.NetworkAllow, l.Network)

	// clamping an already clamped value changes nothing
	again := limits.Clamp(limits.Partial{
		CpuTimeMs:      &l.CpuTimeMs,
		WallTimeMs:     &l.WallTimeMs,
		MaxOutputBytes: &l.MaxOutputBytes,
		MaxMemoryMb:    &l.MaxMemoryMb,
		MaxFileBytes:   &l.MaxFileBytes,
		MaxFiles:       &l.MaxFiles,
		Network:        &l.Network,
	})
	assert.Equal(t, l, again)
}

func TestClampIsTotal(t *testing.T) {
	samples := []int64{math.MinInt64, -1, 0, 1, 249, 250, 9000, 130000, 5_000_000, math.MaxInt64}
	for _, v := range samples {
		l := limits.Clamp(limits.Partial{
			CpuTimeMs: ptr(v), WallTimeMs: ptr(v), MaxOutputBytes: ptr(v),
			MaxMemoryMb: ptr(v), MaxFileBytes: ptr(v), MaxFiles: ptr(v),
		})
		assert.True(t, l.CpuTimeMs >= 250 && l.CpuTimeMs <= 30000, "cpu %d", v)
		assert.True(t, l.WallTimeMs >= 500 && l.WallTimeMs <= 120000, "wall %d", v)
		assert.True(t, l.MaxOutputBytes >= 8192 && l.MaxOutputBytes <= 10000000, "output %d", v)
		assert.True(t, l.MaxMemoryMb >= 64 && l.MaxMemoryMb <= 4096, "memory %d", v)
		assert.True(t, l.MaxFileBytes >= 256000 && l.MaxFileBytes <= 200000000, "file %d", v)
		assert.True(t, l.MaxFiles >= 10 && l.MaxFiles <= 10000, "files %d", v)
		assert.Equal(t, l, limits.Clamp(limits.Partial{
			CpuTimeMs: ptr(v), WallTimeMs: ptr(v), MaxOutputBytes: ptr(v),
			MaxMemoryMb: ptr(v), MaxFileBytes: ptr(v), MaxFiles: ptr(v),
		}))
	}
}

func TestParseNetwork(t *testing.T) {
	n, err := limits.ParseNetwork("allow")
	require.NoError(t, err)
	assert.Equal(t, limits.NetworkAllow, n)

	_, err = limits.ParseNetwork("sometimes")
	require.Error(t, err)
}

func TestDerivedUnits(t *testing.T) {
	l := limits.Clamp(limits.Partial{CpuTimeMs: ptr(int64(1001)), MaxMemoryMb: ptr(int64(64))})
	assert.Equal(t, int64(2), l.CpuTimeSec())
	assert.Equal(t, int64(64*1024*1024), l.MemoryBytes())
	assert.Equal(t, "8s", l.WallTime().String())
}
