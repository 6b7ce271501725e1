package marketfeed_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

func TestRegistry(t *testing.T) {
	t.Run("GetOrCreate returns singletons", testGetOrCreateSingleton())
	t.Run("GetOrCreate builds once under concurrency", testGetOrCreateConcurrent())
	t.Run("GetOrCreate fails for unknown feed", testGetOrCreateUnknown())
	t.Run("GetOrCreate fails when factory fails", testGetOrCreateFactoryFailure())
	t.Run("Register rejects duplicates", testRegisterDuplicate())
}

func testGetOrCreateSingleton() func(*testing.T) {
	return func(t *testing.T) {
		connector := newMockConnector(marketfeed.RawSocket)
		registry := marketfeed.NewRegistry(testConfig(0), marketfeed.WithFactories(
			map[marketfeed.FeedType]marketfeed.Factory{
				"A": func(marketfeed.Options) (marketfeed.Connector, error) {
					return connector, nil
				},
				"B": func(marketfeed.Options) (marketfeed.Connector, error) {
					return newMockConnector(marketfeed.APISession), nil
				},
			},
		))

		a1, err := registry.GetOrCreate("A", nil)
		require.NoError(t, err)
		a2, err := registry.GetOrCreate("A", marketfeed.Options{"ignored": true})
		require.NoError(t, err)
		require.True(t, a1 == a2)

		b, err := registry.GetOrCreate("B", nil)
		require.NoError(t, err)
		require.False(t, a1 == b)
		require.Equal(t, marketfeed.APISession, b.Kind())
		require.Equal(t, marketfeed.StateUnsubscribed, b.State())

		feeds := registry.Feeds()
		require.Len(t, feeds, 2)
		require.Equal(t, marketfeed.FeedType("A"), feeds[0].Type())
		require.Equal(t, marketfeed.FeedType("B"), feeds[1].Type())

		_, ok := registry.Transport("A")
		require.False(t, ok)
	}
}

func testGetOrCreateConcurrent() func(*testing.T) {
	return func(t *testing.T) {
		var constructions int32
		registry := marketfeed.NewRegistry(testConfig(0), marketfeed.WithFactories(
			map[marketfeed.FeedType]marketfeed.Factory{
				"A": func(marketfeed.Options) (marketfeed.Connector, error) {
					atomic.AddInt32(&constructions, 1)
					time.Sleep(20 * time.Millisecond)
					return newMockConnector(marketfeed.RawSocket), nil
				},
			},
		))

		count := 50
		feeds := make([]*marketfeed.Feed, count)
		wg := &sync.WaitGroup{}
		wg.Add(count)
		for i := 0; i < count; i++ {
			go func(i int) {
				defer wg.Done()
				feed, err := registry.GetOrCreate("A", nil)
				require.NoError(t, err)
				feeds[i] = feed
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), atomic.LoadInt32(&constructions))
		for _, feed := range feeds {
			require.True(t, feeds[0] == feed)
		}
	}
}

func testGetOrCreateUnknown() func(*testing.T) {
	return func(t *testing.T) {
		registry := marketfeed.NewRegistry(testConfig(0), marketfeed.WithFactories(
			map[marketfeed.FeedType]marketfeed.Factory{
				"A": func(marketfeed.Options) (marketfeed.Connector, error) {
					return newMockConnector(marketfeed.RawSocket), nil
				},
			},
		))

		feed, err := registry.GetOrCreate("unknown", nil)
		require.ErrorIs(t, err, marketfeed.ErrConnectorNotFound)
		require.Nil(t, feed)

		feed, err = registry.GetOrCreate("A", nil)
		require.NoError(t, err)
		require.NotNil(t, feed)
		require.Len(t, registry.Feeds(), 1)
	}
}

func testGetOrCreateFactoryFailure() func(*testing.T) {
	return func(t *testing.T) {
		var calls int32
		registry := marketfeed.NewRegistry(testConfig(0), marketfeed.WithFactories(
			map[marketfeed.FeedType]marketfeed.Factory{
				"failing": func(marketfeed.Options) (marketfeed.Connector, error) {
					atomic.AddInt32(&calls, 1)
					return nil, fmt.Errorf("missing api key")
				},
				"panicking": func(marketfeed.Options) (marketfeed.Connector, error) {
					panic("boom")
				},
				"nil": func(marketfeed.Options) (marketfeed.Connector, error) {
					return nil, nil
				},
			},
		))

		for _, feedType := range []marketfeed.FeedType{"failing", "panicking", "nil"} {
			feed, err := registry.GetOrCreate(feedType, nil)
			require.ErrorIs(t, err, marketfeed.ErrConnectorNotFound)
			require.Nil(t, feed)
		}

		// Failures are not cached, a later call tries again.
		_, err := registry.GetOrCreate("failing", nil)
		require.Error(t, err)
		require.Equal(t, int32(2), atomic.LoadInt32(&calls))
		require.Empty(t, registry.Feeds())
	}
}

func testRegisterDuplicate() func(*testing.T) {
	return func(t *testing.T) {
		feedType := marketfeed.FeedType("registry-test-feed")
		factory := func(marketfeed.Options) (marketfeed.Connector, error) {
			return newMockConnector(marketfeed.RawSocket), nil
		}

		marketfeed.Register(feedType, factory)
		require.Contains(t, marketfeed.RegisteredFeeds(), feedType)
		require.Panics(t, func() { marketfeed.Register(feedType, factory) })
		require.Panics(t, func() { marketfeed.Register("registry-test-nil", nil) })

		registry := marketfeed.NewRegistry(testConfig(0))
		feed, err := registry.GetOrCreate(feedType, nil)
		require.NoError(t, err)
		require.Equal(t, feedType, feed.Type())
	}
}
