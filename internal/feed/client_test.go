package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/platform/polymarket"
)

const testToken = "7132104567925221259462638553270691275033272857194253228963137931245558399256"

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newFrameClient() *Client {
	return NewClient("", testToken, nil, testLogger())
}

const bookFrame = `{
	"event_type": "book",
	"asset_id": "` + testToken + `",
	"market": "0xabc",
	"bids": [{"price":"0.38","size":"5"},{"price":"0.40","size":"10"}],
	"asks": [{"price":"0.45","size":"3"},{"price":"0.42","size":"2"}],
	"timestamp": "1755950400000",
	"hash": "deadbeef"
}`

func TestHandleFrameBookSnapshot(t *testing.T) {
	c := newFrameClient()

	changed := c.handleFrame([]byte(bookFrame))
	require.True(t, changed)

	require.Len(t, c.book.Bids, 2)
	require.Len(t, c.book.Asks, 2)
	assert.Equal(t, "0.4", c.book.Bids[0].Price.String())
	assert.Equal(t, "0.42", c.book.Asks[0].Price.String())
	assert.Equal(t, time.UnixMilli(1755950400000), c.book.LastUpdate)
}

func TestHandleFrameIgnoresOtherAssets(t *testing.T) {
	c := newFrameClient()

	frame := strings.Replace(bookFrame, testToken, "999", 1)
	assert.False(t, c.handleFrame([]byte(frame)))
	assert.Empty(t, c.book.Bids)
}

func TestHandleFramePriceChangeAppliesInOrder(t *testing.T) {
	c := newFrameClient()
	require.True(t, c.handleFrame([]byte(bookFrame)))

	// The second delta re-adds the level the first removed; list order means
	// the re-add wins.
	frame := `{
		"event_type": "price_change",
		"asset_id": "` + testToken + `",
		"changes": [
			{"price":"0.40","size":"0","side":"BUY"},
			{"price":"0.40","size":"7","side":"BUY"},
			{"price":"0.46","size":"4","side":"SELL"}
		],
		"timestamp": "1755950401000"
	}`
	require.True(t, c.handleFrame([]byte(frame)))

	require.Len(t, c.book.Bids, 2)
	assert.Equal(t, "7", c.book.Bids[0].Size.String())
	require.Len(t, c.book.Asks, 3)
	assert.Equal(t, "0.46", c.book.Asks[2].Price.String())
}

func TestHandleFramePriceChangeDropsMalformedDelta(t *testing.T) {
	c := newFrameClient()
	require.True(t, c.handleFrame([]byte(bookFrame)))

	frame := `{
		"event_type": "price_change",
		"asset_id": "` + testToken + `",
		"changes": [
			{"price":"oops","size":"1","side":"BUY"},
			{"price":"0.39","size":"1","side":"BUY"}
		],
		"timestamp": "1755950401000"
	}`
	require.True(t, c.handleFrame([]byte(frame)))
	require.Len(t, c.book.Bids, 3)
}

func TestHandleFrameLastTradePrice(t *testing.T) {
	c := newFrameClient()

	frame := `{
		"event_type": "last_trade_price",
		"asset_id": "` + testToken + `",
		"price": "0.41",
		"side": "SELL",
		"size": "6",
		"fee_rate_bps": "0",
		"timestamp": "1755950402000"
	}`
	require.True(t, c.handleFrame([]byte(frame)))

	require.Len(t, c.trades, 1)
	assert.Equal(t, domain.SideSell, c.trades[0].Side)
	require.True(t, c.lastPrice.Valid)
	assert.Equal(t, "0.41", c.lastPrice.Price.String())
}

func TestHandleFrameArray(t *testing.T) {
	c := newFrameClient()

	frame := `[` + bookFrame + `,{
		"event_type": "last_trade_price",
		"asset_id": "` + testToken + `",
		"price": "0.43",
		"side": "BUY",
		"size": "1",
		"timestamp": "1755950403000"
	}]`
	require.True(t, c.handleFrame([]byte(frame)))
	assert.Len(t, c.book.Bids, 2)
	assert.Len(t, c.trades, 1)
}

func TestHandleFrameToleratesGarbage(t *testing.T) {
	c := newFrameClient()
	assert.False(t, c.handleFrame([]byte(`{"event_type":"book","bids":`)))
	assert.False(t, c.handleFrame([]byte(`{"event_type":"tick_size_change","asset_id":"`+testToken+`"}`)))
	assert.False(t, c.handleFrame([]byte(`{"event_type":"mystery"}`)))
}

func TestTradeRingIsBounded(t *testing.T) {
	c := newFrameClient()
	for i := 0; i < tradeCapacity+20; i++ {
		frame := `{
			"event_type": "last_trade_price",
			"asset_id": "` + testToken + `",
			"price": "0.41",
			"side": "BUY",
			"size": "1",
			"timestamp": "1755950402000"
		}`
		require.True(t, c.handleFrame([]byte(frame)))
	}
	assert.Len(t, c.trades, tradeCapacity)
}

// wsServer upgrades one connection, records the subscribe command, plays the
// scripted frames, and then holds the connection open until the client leaves.
func wsServer(t *testing.T, frames []string) (*httptest.Server, <-chan polymarket.WSCommand) {
	t.Helper()
	subscribes := make(chan polymarket.WSCommand, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd polymarket.WSCommand
		if err := json.Unmarshal(msg, &cmd); err == nil {
			subscribes <- cmd
		}

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Drain until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, subscribes
}

func TestRunSubscribesAndPublishes(t *testing.T) {
	srv, subscribes := wsServer(t, []string{"PONG", bookFrame})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	updates := make(chan domain.MarketUpdate, 32)
	c := NewClient(wsURL, testToken, func(u domain.MarketUpdate) {
		updates <- u
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	select {
	case cmd := <-subscribes:
		assert.Equal(t, []string{testToken}, cmd.AssetIDs)
		assert.Equal(t, "market", cmd.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe command received")
	}

	// Wait for the update carrying the applied book; the PONG sentinel must
	// not produce one.
	deadline := time.After(5 * time.Second)
waitBook:
	for {
		select {
		case u := <-updates:
			assert.True(t, u.Connected)
			assert.Equal(t, testToken, u.TokenID)
			if !u.Book.TwoSided() {
				continue
			}
			require.Len(t, u.Book.Bids, 2)
			assert.Equal(t, "0.4", u.Book.Bids[0].Price.String())
			assert.Equal(t, StateConnected, c.State())
			break waitBook
		case <-deadline:
			t.Fatal("book update never arrived")
		}
	}

	require.NoError(t, c.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", testToken, nil, testLogger())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// A closed client refuses to run.
	err := c.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	// Unreachable endpoint; the client sits in its reconnect cycle.
	c := NewClient("ws://127.0.0.1:1", testToken, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
