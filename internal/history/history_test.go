package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func addFlat(h *PriceHistory, price string, ts time.Time) {
	p := d(price)
	h.Add(p, p.Sub(d("0.01")), p.Add(d("0.01")), ts)
}

func TestAddEvictsOldest(t *testing.T) {
	h := New(3)
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		addFlat(h, "0.50", base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 3, h.Len())
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, base.Add(4*time.Second), last.Timestamp)
	// Oldest two observations were evicted.
	points := h.RangeBetween(base, base.Add(time.Minute))
	require.Len(t, points, 3)
	assert.Equal(t, base.Add(2*time.Second), points[0].Timestamp)
}

func TestMovingAverageNeedsFullPeriod(t *testing.T) {
	h := New(100)
	base := time.Now()
	for i := 0; i < 19; i++ {
		addFlat(h, "0.50", base.Add(time.Duration(i)*time.Second))
	}

	_, ok := h.MovingAverage(20)
	assert.False(t, ok, "19 points cannot satisfy a 20-point average")

	addFlat(h, "0.70", base.Add(19*time.Second))
	avg, ok := h.MovingAverage(20)
	require.True(t, ok)
	// (19 * 0.50 + 0.70) / 20 = 0.51
	assert.True(t, avg.Equal(d("0.51")), "got %s", avg)
}

func TestMovingAverageUsesMostRecentWindow(t *testing.T) {
	h := New(100)
	base := time.Now()
	addFlat(h, "0.10", base)
	addFlat(h, "0.30", base.Add(time.Second))
	addFlat(h, "0.50", base.Add(2*time.Second))

	avg, ok := h.MovingAverage(2)
	require.True(t, ok)
	assert.True(t, avg.Equal(d("0.40")), "got %s", avg)
}

func TestVolatility(t *testing.T) {
	h := New(100)
	base := time.Now()

	// Constant series has zero deviation.
	for i := 0; i < 4; i++ {
		addFlat(h, "0.50", base.Add(time.Duration(i)*time.Second))
	}
	vol, ok := h.Volatility(4)
	require.True(t, ok)
	assert.Equal(t, 0.0, vol)

	_, ok = h.Volatility(5)
	assert.False(t, ok)

	// Alternating 0.40/0.60 around a 0.50 mean has stddev 0.10.
	h2 := New(100)
	for i := 0; i < 4; i++ {
		price := "0.40"
		if i%2 == 1 {
			price = "0.60"
		}
		addFlat(h2, price, base.Add(time.Duration(i)*time.Second))
	}
	vol, ok = h2.Volatility(4)
	require.True(t, ok)
	assert.InDelta(t, 0.10, vol, 1e-12)
}

func TestPriceChangeWindow(t *testing.T) {
	h := New(100)
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return base }

	addFlat(h, "0.40", base.Add(-90*time.Second))
	addFlat(h, "0.45", base.Add(-40*time.Second))
	addFlat(h, "0.55", base.Add(-5*time.Second))

	// Only the last two points are inside a 60s window.
	change, ok := h.PriceChange(time.Minute)
	require.True(t, ok)
	assert.True(t, change.Equal(d("0.10")), "got %s", change)

	// A single in-window point is not enough to report a change.
	_, ok = h.PriceChange(10 * time.Second)
	assert.False(t, ok)

	// The wide window reaches back to the first point.
	change, ok = h.PriceChange(time.Hour)
	require.True(t, ok)
	assert.True(t, change.Equal(d("0.15")), "got %s", change)
}

func TestRangeBetweenInclusive(t *testing.T) {
	h := New(100)
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		addFlat(h, "0.50", base.Add(time.Duration(i)*time.Second))
	}

	points := h.RangeBetween(base.Add(time.Second), base.Add(3*time.Second))
	require.Len(t, points, 3)
	assert.Equal(t, base.Add(time.Second), points[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Second), points[2].Timestamp)

	assert.Empty(t, h.RangeBetween(base.Add(time.Minute), base.Add(2*time.Minute)))
}

func TestLastEmpty(t *testing.T) {
	h := New(10)
	_, ok := h.Last()
	assert.False(t, ok)
	_, ok = h.MovingAverage(1)
	assert.False(t, ok)
}
