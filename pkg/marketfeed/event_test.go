package marketfeed_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

func TestEventChannel(t *testing.T) {
	t.Run("rejects unknown events", func(t *testing.T) {
		feed := newTestFeed(t, testConfig(0), "X", newMockConnector(marketfeed.RawSocket))

		_, err := feed.On("trade", func(marketfeed.Event) {})
		require.ErrorIs(t, err, marketfeed.ErrUnknownEvent)

		_, err = feed.Emit("trade", nil)
		require.ErrorIs(t, err, marketfeed.ErrUnknownEvent)

		_, err = feed.On(marketfeed.EventLiquidation, nil)
		require.Error(t, err)
	})

	t.Run("delivers payloads to listeners of the event", func(t *testing.T) {
		feed := newTestFeed(t, testConfig(0), "X", newMockConnector(marketfeed.RawSocket))
		liquidations := listen(t, feed, marketfeed.EventLiquidation)
		connected := listen(t, feed, marketfeed.EventConnected)

		liquidation := marketfeed.Liquidation{
			OrderID:  "1",
			Symbol:   "XBTUSD",
			Pair:     btcUsd,
			Side:     "Buy",
			Price:    decimal.NewFromInt(40000),
			Quantity: decimal.NewFromInt(100),
		}
		count, err := feed.Emit(marketfeed.EventLiquidation, liquidation)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		ev := waitEvent(t, liquidations, time.Second)
		require.Equal(t, marketfeed.EventLiquidation, ev.Name)
		require.Equal(t, marketfeed.FeedType("X"), ev.Feed)
		require.Equal(t, liquidation, ev.Payload)
		requireNoEvent(t, connected, 50*time.Millisecond)
	})

	t.Run("slow listeners don't block others", func(t *testing.T) {
		cfg := testConfig(0)
		cfg.EventBufferSize = 2
		feed := newTestFeed(t, cfg, "X", newMockConnector(marketfeed.RawSocket))

		block := make(chan struct{})
		defer close(block)
		_, err := feed.On(marketfeed.EventLiquidation, func(marketfeed.Event) {
			<-block
		})
		require.NoError(t, err)
		fast := listen(t, feed, marketfeed.EventLiquidation)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10; i++ {
				//nolint
				feed.Emit(marketfeed.EventLiquidation, i)
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emit blocked on slow listener")
		}

		received := 0
		for {
			select {
			case <-fast:
				received++
				continue
			case <-time.After(100 * time.Millisecond):
			}
			break
		}
		require.Greater(t, received, 0)
	})

	t.Run("panicking listener is isolated", func(t *testing.T) {
		feed := newTestFeed(t, testConfig(0), "X", newMockConnector(marketfeed.RawSocket))
		_, err := feed.On(marketfeed.EventLiquidation, func(marketfeed.Event) {
			panic("listener bug")
		})
		require.NoError(t, err)
		ch := listen(t, feed, marketfeed.EventLiquidation)

		for i := 0; i < 2; i++ {
			_, err := feed.Emit(marketfeed.EventLiquidation, i)
			require.NoError(t, err)
			waitEvent(t, ch, time.Second)
		}
	})

	t.Run("off stops delivery", func(t *testing.T) {
		feed := newTestFeed(t, testConfig(0), "X", newMockConnector(marketfeed.RawSocket))
		ch := make(chan marketfeed.Event, 10)
		id, err := feed.On(marketfeed.EventLiquidation, func(ev marketfeed.Event) {
			ch <- ev
		})
		require.NoError(t, err)
		require.Equal(t, 1, feed.ListenerCount(marketfeed.EventLiquidation))

		require.True(t, feed.Off(id))
		require.False(t, feed.Off(id))
		require.Equal(t, 0, feed.ListenerCount(marketfeed.EventLiquidation))

		count, err := feed.Emit(marketfeed.EventLiquidation, nil)
		require.NoError(t, err)
		require.Zero(t, count)
		requireNoEvent(t, ch, 50*time.Millisecond)
	})
}

func TestEventNames(t *testing.T) {
	require.Equal(t, []marketfeed.EventName{
		marketfeed.EventConnectFailed,
		marketfeed.EventConnected,
		marketfeed.EventDisconnected,
		marketfeed.EventLiquidation,
	}, marketfeed.EventNames())
}
