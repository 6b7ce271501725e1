package application_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/tdex-network/tdex-feeder/internal/core/ports"
	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

// **** Journal ****

type mockJournalStore struct {
	mock.Mock
}

func (m *mockJournalStore) AddEntry(
	ctx context.Context, entry ports.JournalEntry,
) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockJournalStore) GetEntries(
	ctx context.Context, feed string, limit int,
) ([]ports.JournalEntry, error) {
	args := m.Called(ctx, feed, limit)

	var res []ports.JournalEntry
	if a := args.Get(0); a != nil {
		res = a.([]ports.JournalEntry)
	}
	return res, args.Error(1)
}

func (m *mockJournalStore) Close() {
	m.Called()
}

// **** Feed ****

type mockTransport struct{}

func (t *mockTransport) Kind() marketfeed.ConnectionKind {
	return marketfeed.RawSocket
}

func (t *mockTransport) Close() error {
	return nil
}

type mockConnector struct {
	lock     sync.Mutex
	connects int
}

func (c *mockConnector) Kind() marketfeed.ConnectionKind {
	return marketfeed.RawSocket
}

func (c *mockConnector) Connect(
	_ context.Context, _ *marketfeed.Feed,
) (marketfeed.Transport, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	return &mockTransport{}, nil
}

func newMockFactory(c *mockConnector) marketfeed.Factory {
	return func(marketfeed.Options) (marketfeed.Connector, error) {
		return c, nil
	}
}
