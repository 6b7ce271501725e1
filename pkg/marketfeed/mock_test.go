package marketfeed_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

var (
	btcUsd = marketfeed.CurrencyPair{Base: "BTC", Quote: "USD"}
	ethUsd = marketfeed.CurrencyPair{Base: "ETH", Quote: "USD"}
)

// mockTransport is closed through the generic io.Closer path.
type mockTransport struct {
	id        int
	kind      marketfeed.ConnectionKind
	connector *mockConnector
	closeErr  error
}

func (t *mockTransport) Kind() marketfeed.ConnectionKind {
	return t.kind
}

func (t *mockTransport) Close() error {
	t.connector.record(fmt.Sprintf("transport-close:%d", t.id))
	return t.closeErr
}

func (t *mockTransport) RemoveAllListeners() {
	t.connector.record(fmt.Sprintf("remove-listeners:%d", t.id))
}

// bareTransport exposes no close capability at all.
type bareTransport struct{}

func (t *bareTransport) Kind() marketfeed.ConnectionKind {
	return marketfeed.RawSocket
}

type mockConnector struct {
	kind marketfeed.ConnectionKind

	lock          sync.Mutex
	calls         []string
	transports    []marketfeed.Transport
	connectErrs   []error
	apiCloseErr   error
	apiClosePanic bool
	apiCloseDelay time.Duration
	closeErr      error
	cleanupResult bool
	cleanupDelay  time.Duration
	bare          bool
}

func newMockConnector(kind marketfeed.ConnectionKind) *mockConnector {
	return &mockConnector{kind: kind, cleanupResult: true}
}

func (c *mockConnector) Kind() marketfeed.ConnectionKind {
	return c.kind
}

func (c *mockConnector) Connect(
	_ context.Context, _ *marketfeed.Feed,
) (marketfeed.Transport, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.calls = append(c.calls, "connect")
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	var t marketfeed.Transport
	if c.bare {
		t = &bareTransport{}
	} else {
		t = &mockTransport{
			id:        len(c.transports) + 1,
			kind:      c.kind,
			connector: c,
			closeErr:  c.closeErr,
		}
	}
	c.transports = append(c.transports, t)
	return t, nil
}

func (c *mockConnector) CloseAPISession(_ marketfeed.Transport) error {
	c.record("api-close")
	time.Sleep(c.apiCloseDelay)
	if c.apiClosePanic {
		panic("api close exploded")
	}
	return c.apiCloseErr
}

func (c *mockConnector) Cleanup() bool {
	c.record("cleanup")
	time.Sleep(c.cleanupDelay)
	return c.cleanupResult
}

func (c *mockConnector) record(call string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls = append(c.calls, call)
}

func (c *mockConnector) getCalls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *mockConnector) connectCount() int {
	count := 0
	for _, call := range c.getCalls() {
		if call == "connect" {
			count++
		}
	}
	return count
}

func (c *mockConnector) transport(i int) marketfeed.Transport {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.transports[i]
}

func testConfig(watchdog time.Duration) marketfeed.Config {
	return marketfeed.Config{
		WatchdogTimeout: watchdog,
		ReconnectDelay:  250 * time.Millisecond,
		CleanupTimeout:  100 * time.Millisecond,
		ConnectTimeout:  time.Second,
		EventBufferSize: 16,
	}
}

func newTestFeed(
	t *testing.T, cfg marketfeed.Config, feedType marketfeed.FeedType,
	connector *mockConnector,
) *marketfeed.Feed {
	registry := marketfeed.NewRegistry(cfg, marketfeed.WithFactories(
		map[marketfeed.FeedType]marketfeed.Factory{
			feedType: func(marketfeed.Options) (marketfeed.Connector, error) {
				return connector, nil
			},
		},
	))
	feed, err := registry.GetOrCreate(feedType, nil)
	require.NoError(t, err)
	require.NotNil(t, feed)
	return feed
}

// listen forwards every occurrence of event into the returned channel.
func listen(
	t *testing.T, feed *marketfeed.Feed, event marketfeed.EventName,
) <-chan marketfeed.Event {
	ch := make(chan marketfeed.Event, 100)
	_, err := feed.On(event, func(ev marketfeed.Event) {
		ch <- ev
	})
	require.NoError(t, err)
	return ch
}

// subscribe subscribes feed to btcUsd and returns the outcome of the open
// it triggers.
func subscribe(t *testing.T, feed *marketfeed.Feed) error {
	t.Helper()
	connected := listen(t, feed, marketfeed.EventConnected)
	failed := listen(t, feed, marketfeed.EventConnectFailed)

	require.NoError(t, feed.Subscribe([]marketfeed.CurrencyPair{btcUsd}))

	select {
	case <-connected:
		return nil
	case ev := <-failed:
		return ev.Payload.(marketfeed.ConnectionInfo).Err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for feed %s to open", feed.Type())
	}
	return nil
}

func waitEvent(
	t *testing.T, ch <-chan marketfeed.Event, timeout time.Duration,
) marketfeed.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event after %s", timeout)
	}
	return marketfeed.Event{}
}

func requireNoEvent(t *testing.T, ch <-chan marketfeed.Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s: %+v", ev.Name, ev.Payload)
	case <-time.After(wait):
	}
}
