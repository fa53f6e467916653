// Package ui renders published snapshots to the terminal. It is a pure
// consumer: it never mutates core state.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

const (
	defaultMaxTrades = 10
	bookDepthShown   = 5
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	disconnectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)

	bidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	askStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			MarginTop(1)

	dimStyle = lipgloss.NewStyle().Foreground(subtle)
)

// Renderer redraws the dashboard on every published snapshot.
type Renderer struct {
	out        io.Writer
	instrument domain.Instrument
	maxTrades  int
}

// NewRenderer creates a Renderer writing to out.
func NewRenderer(out io.Writer, instrument domain.Instrument, maxTrades int) *Renderer {
	if maxTrades <= 0 {
		maxTrades = defaultMaxTrades
	}
	return &Renderer{out: out, instrument: instrument, maxTrades: maxTrades}
}

// Run consumes snapshots until the channel closes or ctx is cancelled.
func (r *Renderer) Run(ctx context.Context, snapshots <-chan domain.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			fmt.Fprint(r.out, "\033[H\033[2J")
			fmt.Fprintln(r.out, r.Render(snap))
		}
	}
}

// Render formats one snapshot as a full dashboard frame.
func (r *Renderer) Render(snap domain.Snapshot) string {
	var b strings.Builder

	status := disconnectedStyle.Render("● disconnected")
	if snap.Market.Connected {
		status = connectedStyle.Render("● live")
	}
	title := r.instrument.MarketName
	if title == "" {
		title = r.instrument.TokenID
	}
	b.WriteString(titleStyle.Render(title))
	if r.instrument.Outcome != "" {
		b.WriteString(dimStyle.Render("  [" + r.instrument.Outcome + "]"))
	}
	b.WriteString("  " + status + "\n")

	r.renderBook(&b, snap.Market.Book)
	r.renderTrades(&b, snap.Market.Trades)
	r.renderPortfolio(&b, snap)

	return b.String()
}

func (r *Renderer) renderBook(b *strings.Builder, book domain.OrderBook) {
	b.WriteString(sectionStyle.Render("ORDER BOOK") + "\n")

	if spread, ok := book.Spread(); ok {
		mid, _ := book.MidPrice()
		b.WriteString(dimStyle.Render(fmt.Sprintf("mid %s  spread %s\n", mid.StringFixed(4), spread.StringFixed(4))))
	}

	asks := book.Asks
	if len(asks) > bookDepthShown {
		asks = asks[:bookDepthShown]
	}
	// Asks print worst-first so the touch meets in the middle.
	for i := len(asks) - 1; i >= 0; i-- {
		b.WriteString(askStyle.Render(fmt.Sprintf("  ask %s × %s", asks[i].Price.StringFixed(3), asks[i].Size.StringFixed(2))) + "\n")
	}
	bids := book.Bids
	if len(bids) > bookDepthShown {
		bids = bids[:bookDepthShown]
	}
	for _, lvl := range bids {
		b.WriteString(bidStyle.Render(fmt.Sprintf("  bid %s × %s", lvl.Price.StringFixed(3), lvl.Size.StringFixed(2))) + "\n")
	}
}

func (r *Renderer) renderTrades(b *strings.Builder, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render("RECENT TRADES") + "\n")
	shown := trades
	if len(shown) > r.maxTrades {
		shown = shown[:r.maxTrades]
	}
	for _, t := range shown {
		style := bidStyle
		if t.Side == domain.SideSell {
			style = askStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("  %s %-4s %s × %s",
			t.Timestamp.Format("15:04:05"), t.Side, t.Price.StringFixed(3), t.Size.StringFixed(2))) + "\n")
	}
}

func (r *Renderer) renderPortfolio(b *strings.Builder, snap domain.Snapshot) {
	p := snap.Portfolio
	if len(p.Positions) == 0 && p.RealizedPnL.IsZero() && len(snap.SimTrades) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render("PORTFOLIO") + "\n")
	for _, pos := range p.Positions {
		b.WriteString(fmt.Sprintf("  %s %s sh @ %s (cost %s)\n",
			labelFor(pos), pos.Shares.StringFixed(2), pos.AveragePrice.StringFixed(4), pos.TotalCost.StringFixed(2)))
	}
	b.WriteString(fmt.Sprintf("  value %s  cost %s  unrealized %s  realized %s\n",
		p.CurrentValue.StringFixed(2),
		p.TotalCost.StringFixed(2),
		signed(p.UnrealizedPnL),
		signed(p.RealizedPnL)))

	if n := len(snap.SimTrades); n > 0 {
		last := snap.SimTrades[0]
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d sim trades, last: %s %s %s × %s\n",
			n, last.Strategy, last.Side, last.Price.StringFixed(3), last.Size.StringFixed(2))))
	}
}

func labelFor(pos domain.Position) string {
	if pos.Outcome != "" {
		return pos.Outcome
	}
	if len(pos.TokenID) > 10 {
		return pos.TokenID[:10] + "…"
	}
	return pos.TokenID
}

// signed renders a P&L figure with color: green gains, red losses.
func signed(v decimal.Decimal) string {
	s := v.StringFixed(2)
	if v.IsNegative() {
		return askStyle.Render(s)
	}
	return bidStyle.Render("+" + s)
}
