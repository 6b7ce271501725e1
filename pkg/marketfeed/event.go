package marketfeed

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type EventName string

const (
	// EventLiquidation carries a Liquidation payload.
	EventLiquidation EventName = "liquidation"
	// EventConnected is published after every successful open, the payload
	// is a ConnectionInfo.
	EventConnected EventName = "connected"
	// EventDisconnected is published after every close, the payload is a
	// ConnectionInfo whose Reason is the close reason.
	EventDisconnected EventName = "disconnected"
	// EventConnectFailed is published when a connector fails, the payload
	// is a ConnectionInfo whose Err is the failure.
	EventConnectFailed EventName = "connect_failed"
)

var eventNames = map[EventName]struct{}{
	EventLiquidation:   {},
	EventConnected:     {},
	EventDisconnected:  {},
	EventConnectFailed: {},
}

// EventNames returns the sorted list of recognized events.
func EventNames() []EventName {
	names := make([]EventName, 0, len(eventNames))
	for name := range eventNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (e EventName) validate() error {
	if _, ok := eventNames[e]; !ok {
		return fmt.Errorf("%w: %q, must be one of %v", ErrUnknownEvent, e, EventNames())
	}
	return nil
}

type Event struct {
	Name      EventName
	Feed      FeedType
	Payload   interface{}
	Timestamp time.Time
}

type Liquidation struct {
	OrderID  string
	Symbol   string
	Pair     CurrencyPair
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

type ConnectionInfo struct {
	Kind   ConnectionKind
	Reason string
	Err    error
}

type Listener func(Event)

type listener struct {
	id    string
	event EventName
	fn    Listener
	queue chan Event
}

func (l *listener) run(feedType FeedType) {
	for ev := range l.queue {
		l.call(feedType, ev)
	}
}

func (l *listener) call(feedType FeedType, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"feed":     feedType,
				"event":    ev.Name,
				"listener": l.id,
			}).Errorf("listener panicked: %v", rec)
		}
	}()
	l.fn(ev)
}

// eventChannel delivers events to listeners without ever blocking the
// publisher: each listener drains its own queue and events that don't fit
// are dropped.
type eventChannel struct {
	feedType   FeedType
	bufferSize int

	lock      sync.RWMutex
	listeners map[string]*listener
}

func newEventChannel(feedType FeedType, bufferSize int) *eventChannel {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &eventChannel{
		feedType:   feedType,
		bufferSize: bufferSize,
		listeners:  make(map[string]*listener),
	}
}

func (c *eventChannel) on(event EventName, fn Listener) (string, error) {
	if err := event.validate(); err != nil {
		return "", err
	}
	if fn == nil {
		return "", fmt.Errorf("missing listener")
	}

	l := &listener{
		id:    uuid.New().String(),
		event: event,
		fn:    fn,
		queue: make(chan Event, c.bufferSize),
	}
	go l.run(c.feedType)

	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners[l.id] = l
	return l.id, nil
}

func (c *eventChannel) off(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	l, ok := c.listeners[id]
	if !ok {
		return false
	}
	delete(c.listeners, id)
	close(l.queue)
	return true
}

func (c *eventChannel) emit(event EventName, payload interface{}) (int, error) {
	if err := event.validate(); err != nil {
		return 0, err
	}

	ev := Event{
		Name:      event,
		Feed:      c.feedType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	count := 0
	for _, l := range c.listeners {
		if l.event != event {
			continue
		}
		select {
		case l.queue <- ev:
			count++
		default:
			droppedEvents.WithLabelValues(string(c.feedType), string(event)).Inc()
			log.WithFields(log.Fields{
				"feed":     c.feedType,
				"event":    event,
				"listener": l.id,
			}).Warn("listener queue full, dropping event")
		}
	}
	publishedEvents.WithLabelValues(string(c.feedType), string(event)).Inc()
	return count, nil
}

func (c *eventChannel) count(event EventName) int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	count := 0
	for _, l := range c.listeners {
		if l.event == event {
			count++
		}
	}
	return count
}
