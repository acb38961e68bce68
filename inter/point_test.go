package inter

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoint_ValueAt(t *testing.T) {
	p := Point{Bias: big.NewInt(1000), Slope: big.NewInt(10), Ts: 100, Blk: 1}

	tests := []struct {
		name string
		at   Timestamp
		want int64
	}{
		{"before point", 50, 1000},
		{"at point", 100, 1000},
		{"midway", 150, 500},
		{"exactly zero", 200, 0},
		{"clamped after zero", 300, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ValueAt(tt.at)
			if got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("ValueAt(%d) = %s, want %d", tt.at, got, tt.want)
			}
		})
	}

	// the point itself is never touched
	require.Equal(t, int64(1000), p.Bias.Int64())
}

func TestPoint_Copy(t *testing.T) {
	require := require.New(t)

	p := Point{Bias: big.NewInt(7), Slope: big.NewInt(3), Ts: 9, Blk: 2}
	cp := p.Copy()
	cp.Bias.SetInt64(100)
	cp.Slope.SetInt64(100)

	require.Equal(int64(7), p.Bias.Int64())
	require.Equal(int64(3), p.Slope.Int64())
	require.Equal(p.Ts, cp.Ts)
	require.Equal(p.Blk, cp.Blk)

	var empty Point
	require.True(empty.IsZero())
	require.Equal("0", empty.Copy().Bias.String())
}

func TestLockedBalance_PointAt(t *testing.T) {
	require := require.New(t)

	const maxTime = Timestamp(1000)
	lock := LockedBalance{Amount: big.NewInt(5000), End: 800}

	p := lock.PointAt(300, 4, maxTime)
	require.Equal(int64(5), p.Slope.Int64())
	require.Equal(int64(5*500), p.Bias.Int64())
	require.Equal(Timestamp(300), p.Ts)

	// expired or empty locks carry nothing
	require.True(lock.PointAt(800, 5, maxTime).IsZero())
	require.True(NoLock().PointAt(300, 5, maxTime).IsZero())
	require.False(NoLock().Exists())
	require.True(lock.Expired(800))
	require.False(lock.Expired(799))
}

func TestTimestamp_Floor(t *testing.T) {
	require := require.New(t)

	require.Equal(Timestamp(86400), Timestamp(86400+3599).Floor(86400))
	require.Equal(Timestamp(0), Timestamp(86399).Floor(86400))
	require.Equal(Timestamp(17), Timestamp(17).Floor(0))
	require.True(Timestamp(172800).Aligned(86400))
	require.False(Timestamp(172801).Aligned(86400))
	require.Equal([]byte{0, 0, 0, 0, 0, 0, 1, 0}, Timestamp(256).Bytes())
	require.Equal(FromUnix(-5), Timestamp(0))
}
