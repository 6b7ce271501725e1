package marketfeed

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tdex-network/tdex-feeder/pkg/circuitbreaker"
)

// Feed is the single process-wide instance of a feed type. Feeds are
// obtained through Registry.GetOrCreate and live as long as the registry.
type Feed struct {
	feedType  FeedType
	kind      ConnectionKind
	connector Connector
	registry  *Registry
	cfg       Config
	breaker   *gobreaker.CircuitBreaker

	// lifecycle serializes open, close, watchdog fires and reconnects.
	lifecycle sync.Mutex
	state     int32
	watchdog  *timer
	reconnect *timer

	pairsLock sync.RWMutex
	pairs     []CurrencyPair

	events *eventChannel
}

func newFeed(registry *Registry, feedType FeedType, connector Connector) *Feed {
	f := &Feed{
		feedType:  feedType,
		kind:      connector.Kind(),
		connector: connector,
		registry:  registry,
		cfg:       registry.cfg,
		breaker:   circuitbreaker.NewCircuitBreaker(string(feedType)),
		watchdog:  &timer{},
		reconnect: &timer{},
		events:    newEventChannel(feedType, registry.cfg.EventBufferSize),
	}
	f.setState(StateUnsubscribed)
	return f
}

func (f *Feed) Type() FeedType {
	return f.feedType
}

func (f *Feed) Kind() ConnectionKind {
	return f.kind
}

func (f *Feed) Connector() Connector {
	return f.connector
}

func (f *Feed) State() State {
	return State(atomic.LoadInt32(&f.state))
}

// Transport returns the transport currently serving the feed.
func (f *Feed) Transport() (Transport, bool) {
	return f.registry.Transport(f.feedType)
}

// WatchdogDeadline returns the instant at which the watchdog fires, if
// armed.
func (f *Feed) WatchdogDeadline() (time.Time, bool) {
	return f.watchdog.pending()
}

// ReconnectDeadline returns the instant of the next scheduled open, if any.
func (f *Feed) ReconnectDeadline() (time.Time, bool) {
	return f.reconnect.pending()
}

// Subscribe records the currency pairs of the feed and opens its
// connection. It can succeed only once per feed: listeners with different
// pair interests can't be told apart at this level, so the set is fixed for
// the feed lifetime and any further call is rejected with
// ErrDuplicateSubscription.
func (f *Feed) Subscribe(pairs []CurrencyPair) error {
	if len(pairs) <= 0 {
		return ErrNoCurrencyPairs
	}

	f.pairsLock.Lock()
	if len(f.pairs) > 0 {
		subscribed := pairsToString(f.pairs)
		f.pairsLock.Unlock()

		log.WithField("feed", f.feedType).Errorf(
			"subscribe can only be called once, subscribed pairs %s, new %s",
			subscribed, pairsToString(pairs),
		)
		return fmt.Errorf(
			"%w: %s already subscribed to %s",
			ErrDuplicateSubscription, f.feedType, subscribed,
		)
	}
	f.pairs = uniquePairs(pairs)
	f.pairsLock.Unlock()

	f.setState(StateOpening)
	f.Open()
	return nil
}

func (f *Feed) IsSubscribed() bool {
	f.pairsLock.RLock()
	defer f.pairsLock.RUnlock()
	return len(f.pairs) > 0
}

func (f *Feed) CurrencyPairs() []CurrencyPair {
	f.pairsLock.RLock()
	defer f.pairsLock.RUnlock()
	return append([]CurrencyPair(nil), f.pairs...)
}

// On registers a listener for the given event and returns its id.
func (f *Feed) On(event EventName, listener Listener) (string, error) {
	return f.events.on(event, listener)
}

// Off removes the listener with the given id.
func (f *Feed) Off(id string) bool {
	return f.events.off(id)
}

// Emit publishes the payload to the listeners of event. It never blocks and
// returns the number of listeners the event was queued for.
func (f *Feed) Emit(event EventName, payload interface{}) (int, error) {
	return f.events.emit(event, payload)
}

// ListenerCount returns the number of listeners registered for event.
func (f *Feed) ListenerCount(event EventName) int {
	return f.events.count(event)
}

func (f *Feed) setState(state State) {
	atomic.StoreInt32(&f.state, int32(state))
	feedState.WithLabelValues(string(f.feedType)).Set(float64(state))
}

func (f *Feed) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"feed": f.feedType,
		"kind": f.kind,
	})
}

func uniquePairs(pairs []CurrencyPair) []CurrencyPair {
	seen := make(map[CurrencyPair]struct{}, len(pairs))
	unique := make([]CurrencyPair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
