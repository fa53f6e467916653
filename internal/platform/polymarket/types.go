package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

// --------------------------------------------------------------------------
// WebSocket DTOs (CLOB market channel)
// --------------------------------------------------------------------------

// WSCommand is the subscribe payload sent after connecting to the market
// channel.
type WSCommand struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"` // "market"
}

// WSEnvelope carries just enough of a frame to route it by event type.
type WSEnvelope struct {
	EventType string `json:"event_type"` // "book", "price_change", "last_trade_price", "tick_size_change"
	AssetID   string `json:"asset_id"`
}

// WSLevel is one price/size pair in a book snapshot, both decimal strings.
type WSLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookMessage is a full orderbook snapshot. The hash is an integrity marker
// the feed does not otherwise use.
type BookMessage struct {
	EventType string    `json:"event_type"`
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market"`
	Bids      []WSLevel `json:"bids"`
	Asks      []WSLevel `json:"asks"`
	Timestamp string    `json:"timestamp"`
	Hash      string    `json:"hash"`
}

// WSChange is one incremental level update inside a price_change frame.
type WSChange struct {
	Price string `json:"price"`
	Size  string `json:"size"` // "0" removes the level
	Side  string `json:"side"` // "BUY" or "SELL"
}

// PriceChangeMessage carries one or more level deltas, applied in list order.
type PriceChangeMessage struct {
	EventType string     `json:"event_type"`
	AssetID   string     `json:"asset_id"`
	Market    string     `json:"market"`
	Changes   []WSChange `json:"changes"`
	Timestamp string     `json:"timestamp"`
}

// LastTradePriceMessage reports the most recent trade execution. The fee
// rate is carried on the wire but unused.
type LastTradePriceMessage struct {
	EventType  string `json:"event_type"`
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Price      string `json:"price"`
	Side       string `json:"side"`
	Size       string `json:"size"`
	FeeRateBps string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Conversions: wire types -> domain types
// --------------------------------------------------------------------------

// Levels converts wire levels to domain levels, dropping any level whose
// numeric fields do not parse. A malformed level never fails the update.
func Levels(in []WSLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// Trade converts a last-trade frame to a domain Trade. The second return is
// false when the numeric fields do not parse.
func (m *LastTradePriceMessage) Trade() (domain.Trade, bool) {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return domain.Trade{}, false
	}
	size, err := decimal.NewFromString(m.Size)
	if err != nil {
		return domain.Trade{}, false
	}
	side := domain.SideBuy
	if strings.EqualFold(m.Side, string(domain.SideSell)) {
		side = domain.SideSell
	}
	return domain.NewTrade(ParseTimestamp(m.Timestamp), side, price, size), true
}

// ParseTimestamp decodes the feed's epoch timestamps, which arrive in
// milliseconds, tolerating second precision and RFC3339 strings. Unparseable
// values fall back to the current time.
func ParseTimestamp(raw string) time.Time {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ts > 1e12 {
			return time.UnixMilli(ts)
		}
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}

// DecodeFrames splits a raw websocket frame into individual event payloads.
// The market channel may deliver either a single JSON object or a JSON array
// of them.
func DecodeFrames(raw []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var frames []json.RawMessage
		if err := json.Unmarshal(raw, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	return []json.RawMessage{json.RawMessage(raw)}, nil
}
