// Package history maintains a bounded time series of observed prices and the
// derived statistics strategies rely on.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCapacity bounds the history when no explicit capacity is given.
const DefaultCapacity = 1000

// Point records one price observation together with the touch of book it was
// taken from.
type Point struct {
	Timestamp time.Time
	Price     decimal.Decimal
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Spread    decimal.Decimal
}

// PriceHistory is a fixed-capacity ring of Points. Appending beyond capacity
// evicts the oldest point. Safe for concurrent use.
type PriceHistory struct {
	mu       sync.RWMutex
	points   []Point // oldest first
	capacity int

	now func() time.Time
}

// New creates a PriceHistory with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int) *PriceHistory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PriceHistory{
		capacity: capacity,
		now:      time.Now,
	}
}

// Add appends a new observation, evicting the oldest when over capacity.
func (h *PriceHistory) Add(price, bestBid, bestAsk decimal.Decimal, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, Point{
		Timestamp: ts,
		Price:     price,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Spread:    bestAsk.Sub(bestBid),
	})
	if overflow := len(h.points) - h.capacity; overflow > 0 {
		h.points = append([]Point(nil), h.points[overflow:]...)
	}
}

// Len returns the number of retained points.
func (h *PriceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

// Last returns the most recent point.
func (h *PriceHistory) Last() (Point, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.points) == 0 {
		return Point{}, false
	}
	return h.points[len(h.points)-1], true
}

// MovingAverage returns the arithmetic mean of the last period prices. The
// second return is false when fewer than period points exist.
func (h *PriceHistory) MovingAverage(period int) (decimal.Decimal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if period <= 0 || len(h.points) < period {
		return decimal.Decimal{}, false
	}
	sum := decimal.Zero
	for _, p := range h.points[len(h.points)-period:] {
		sum = sum.Add(p.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// Volatility returns the population standard deviation of the last period
// prices. The second return is false when fewer than period points exist.
// The result is a float64 because the square root has no exact decimal form.
func (h *PriceHistory) Volatility(period int) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if period <= 0 || len(h.points) < period {
		return 0, false
	}
	window := h.points[len(h.points)-period:]

	var sum float64
	for _, p := range window {
		sum += p.Price.InexactFloat64()
	}
	mean := sum / float64(period)

	var variance float64
	for _, p := range window {
		d := p.Price.InexactFloat64() - mean
		variance += d * d
	}
	variance /= float64(period)
	return math.Sqrt(variance), true
}

// PriceChange returns last price minus first price among points observed in
// [now-window, now]. The second return is false when fewer than two points
// fall inside the window.
func (h *PriceHistory) PriceChange(window time.Duration) (decimal.Decimal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := h.now().Add(-window)
	first := -1
	for i, p := range h.points {
		if !p.Timestamp.Before(cutoff) {
			first = i
			break
		}
	}
	if first < 0 || len(h.points)-first < 2 {
		return decimal.Decimal{}, false
	}
	return h.points[len(h.points)-1].Price.Sub(h.points[first].Price), true
}

// RangeBetween returns a copy of all points with start <= timestamp <= end.
func (h *PriceHistory) RangeBetween(start, end time.Time) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Point
	for _, p := range h.points {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}
