package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tdex-network/tdex-feeder/internal/core/ports"
	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

var lifecycleEvents = []marketfeed.EventName{
	marketfeed.EventConnected,
	marketfeed.EventDisconnected,
	marketfeed.EventConnectFailed,
}

type FeedService interface {
	// Start resolves and subscribes every configured feed.
	Start(ctx context.Context) error
	// Stop detaches the service listeners from the feeds.
	Stop()
	ListFeeds(ctx context.Context) []FeedInfo
	ListJournal(ctx context.Context, feedType string, limit int) ([]ports.JournalEntry, error)
}

type FeedInfo struct {
	Type              string     `json:"type"`
	Kind              string     `json:"kind"`
	State             string     `json:"state"`
	Pairs             []string   `json:"pairs"`
	Liquidations      uint64     `json:"liquidations"`
	WatchdogDeadline  *time.Time `json:"watchdog_deadline,omitempty"`
	ReconnectDeadline *time.Time `json:"reconnect_deadline,omitempty"`
}

type feedService struct {
	registry    *marketfeed.Registry
	journal     ports.JournalStore
	specs       []FeedSpec
	feedOptions map[marketfeed.FeedType]marketfeed.Options

	lock         sync.Mutex
	started      bool
	listenerIDs  map[marketfeed.FeedType][]string
	liquidations map[marketfeed.FeedType]*uint64
}

func NewFeedService(
	registry *marketfeed.Registry, journal ports.JournalStore,
	specs []FeedSpec, feedOptions map[marketfeed.FeedType]marketfeed.Options,
) FeedService {
	if feedOptions == nil {
		feedOptions = make(map[marketfeed.FeedType]marketfeed.Options)
	}
	liquidations := make(map[marketfeed.FeedType]*uint64, len(specs))
	for _, spec := range specs {
		liquidations[spec.Type] = new(uint64)
	}

	return &feedService{
		registry:     registry,
		journal:      journal,
		specs:        specs,
		feedOptions:  feedOptions,
		listenerIDs:  make(map[marketfeed.FeedType][]string),
		liquidations: liquidations,
	}
}

func (s *feedService) Start(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started {
		return ErrServiceStarted
	}

	g, _ := errgroup.WithContext(ctx)
	ids := make([][]string, len(s.specs))
	for i, spec := range s.specs {
		i, spec := i, spec
		g.Go(func() error {
			feed, err := s.registry.GetOrCreate(spec.Type, s.feedOptions[spec.Type])
			if err != nil {
				return err
			}

			listenerIDs, err := s.attachListeners(feed)
			ids[i] = listenerIDs
			if err != nil {
				return err
			}

			if err := feed.Subscribe(spec.Pairs); err != nil {
				return fmt.Errorf("failed to subscribe %s: %w", spec.Type, err)
			}
			log.Infof("subscribed to %s feed for pairs %v", spec.Type, spec.Pairs)
			return nil
		})
	}

	err := g.Wait()
	for i, spec := range s.specs {
		if len(ids[i]) > 0 {
			s.listenerIDs[spec.Type] = ids[i]
		}
	}
	if err != nil {
		return err
	}

	s.started = true
	return nil
}

func (s *feedService) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for feedType, ids := range s.listenerIDs {
		feed, ok := s.registry.Get(feedType)
		if !ok {
			continue
		}
		for _, id := range ids {
			feed.Off(id)
		}
	}
	s.listenerIDs = make(map[marketfeed.FeedType][]string)
}

func (s *feedService) ListFeeds(_ context.Context) []FeedInfo {
	feeds := s.registry.Feeds()
	info := make([]FeedInfo, 0, len(feeds))

	for _, feed := range feeds {
		pairs := make([]string, 0)
		for _, p := range feed.CurrencyPairs() {
			pairs = append(pairs, p.String())
		}

		i := FeedInfo{
			Type:  string(feed.Type()),
			Kind:  feed.Kind().String(),
			State: feed.State().String(),
			Pairs: pairs,
		}
		if count, ok := s.liquidations[feed.Type()]; ok {
			i.Liquidations = atomic.LoadUint64(count)
		}
		if deadline, ok := feed.WatchdogDeadline(); ok {
			i.WatchdogDeadline = &deadline
		}
		if deadline, ok := feed.ReconnectDeadline(); ok {
			i.ReconnectDeadline = &deadline
		}
		info = append(info, i)
	}
	return info
}

func (s *feedService) ListJournal(
	ctx context.Context, feedType string, limit int,
) ([]ports.JournalEntry, error) {
	if _, ok := s.registry.Get(marketfeed.FeedType(feedType)); !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feedType)
	}
	return s.journal.GetEntries(ctx, feedType, limit)
}

func (s *feedService) attachListeners(feed *marketfeed.Feed) ([]string, error) {
	ids := make([]string, 0, len(lifecycleEvents)+1)

	for _, event := range lifecycleEvents {
		id, err := feed.On(event, s.journalEvent)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	count := s.liquidations[feed.Type()]
	id, err := feed.On(marketfeed.EventLiquidation, func(ev marketfeed.Event) {
		atomic.AddUint64(count, 1)
		logLiquidation(ev)
	})
	if err != nil {
		return ids, err
	}
	return append(ids, id), nil
}

func (s *feedService) journalEvent(ev marketfeed.Event) {
	info, ok := ev.Payload.(marketfeed.ConnectionInfo)
	if !ok {
		return
	}

	reason := info.Reason
	if info.Err != nil {
		reason = info.Err.Error()
	}

	entry := ports.JournalEntry{
		ID:        uuid.New().String(),
		Feed:      string(ev.Feed),
		Event:     string(ev.Name),
		Reason:    reason,
		Timestamp: ev.Timestamp.UnixNano(),
	}
	if err := s.journal.AddEntry(context.Background(), entry); err != nil {
		log.WithError(err).WithField("feed", ev.Feed).Warn(
			"failed to add journal entry",
		)
	}
}

func logLiquidation(ev marketfeed.Event) {
	l, ok := ev.Payload.(marketfeed.Liquidation)
	if !ok {
		return
	}
	log.WithFields(log.Fields{
		"feed":     ev.Feed,
		"pair":     l.Pair.String(),
		"side":     l.Side,
		"price":    l.Price.String(),
		"quantity": l.Quantity.String(),
	}).Info("liquidation")
}
