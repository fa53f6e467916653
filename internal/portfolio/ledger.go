// Package portfolio tracks simulated positions and their realized and
// unrealized P&L, marked to market against the latest observed price.
package portfolio

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

// Ledger is the position and P&L book for the simulation. All state is
// in-memory for the process lifetime. Safe for concurrent use.
//
// Totals are recomputed from the live positions on every mutation rather than
// accumulated incrementally, so long sessions cannot drift.
type Ledger struct {
	mu          sync.RWMutex
	positions   map[string]*domain.Position
	marks       map[string]decimal.Decimal
	totalCost   decimal.Decimal
	value       decimal.Decimal
	realizedPnL decimal.Decimal
	logger      *slog.Logger
}

// NewLedger creates an empty Ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
		marks:     make(map[string]decimal.Decimal),
		logger:    logger.With(slog.String("component", "portfolio")),
	}
}

// MarkPrice stores the latest reference price for a token and revalues the
// book against it.
func (l *Ledger) MarkPrice(tokenID string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[tokenID] = price
	l.recompute()
}

// ApplyFill posts one simulated fill. BUY folds into the existing position at
// weighted-average cost or opens a new one. SELL realizes P&L against the
// average price and releases the proportional cost basis; a SELL larger than
// the held shares is rejected as a no-op (short selling is not modeled).
//
// The return reports whether the fill was applied.
func (l *Ledger) ApplyFill(tokenID, outcome string, side domain.Side, price, size decimal.Decimal, ts time.Time) bool {
	if !size.IsPositive() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[tokenID]

	switch side {
	case domain.SideBuy:
		if pos == nil {
			l.positions[tokenID] = &domain.Position{
				TokenID:       tokenID,
				Outcome:       outcome,
				Shares:        size,
				AveragePrice:  price,
				TotalCost:     price.Mul(size),
				FirstPurchase: ts,
				LastPurchase:  ts,
			}
		} else {
			pos.TotalCost = pos.TotalCost.Add(price.Mul(size))
			pos.Shares = pos.Shares.Add(size)
			pos.AveragePrice = pos.TotalCost.Div(pos.Shares)
			pos.LastPurchase = ts
		}

	case domain.SideSell:
		if pos == nil || pos.Shares.LessThan(size) {
			l.logger.Debug("sell exceeds held shares, dropping fill",
				slog.String("token_id", tokenID),
				slog.String("size", size.String()),
			)
			return false
		}
		l.realizedPnL = l.realizedPnL.Add(price.Sub(pos.AveragePrice).Mul(size))
		pos.Shares = pos.Shares.Sub(size)
		pos.TotalCost = pos.TotalCost.Sub(pos.AveragePrice.Mul(size))
		if pos.Shares.IsZero() {
			delete(l.positions, tokenID)
		}

	default:
		return false
	}

	l.recompute()
	return true
}

// RealizedPnL returns the profit booked on completed sells so far.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realizedPnL
}

// Snapshot returns an immutable view of the ledger. Positions are copies,
// sorted by token id.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].TokenID < positions[j].TokenID
	})

	return domain.PortfolioSnapshot{
		Positions:     positions,
		TotalCost:     l.totalCost,
		CurrentValue:  l.value,
		UnrealizedPnL: l.value.Sub(l.totalCost),
		RealizedPnL:   l.realizedPnL,
		Timestamp:     time.Now(),
	}
}

// recompute re-derives the totals by summing live positions. A position with
// no mark yet is valued at cost. Caller must hold l.mu.
func (l *Ledger) recompute() {
	total := decimal.Zero
	value := decimal.Zero
	for id, pos := range l.positions {
		total = total.Add(pos.TotalCost)
		mark, ok := l.marks[id]
		if !ok {
			mark = pos.AveragePrice
		}
		value = value.Add(mark.Mul(pos.Shares))
	}
	l.totalCost = total
	l.value = value
}
