package marketfeed

import (
	"fmt"
	"strings"
	"time"
)

// FeedType identifies a feed implementation. It is the key of both the feed
// and the transport maps of a Registry.
type FeedType string

// ConnectionKind tells how the transport of a feed must be shut down.
type ConnectionKind int

const (
	// RawSocket is a point-to-point duplex stream closed directly.
	RawSocket ConnectionKind = iota
	// APISession is a higher level streaming session that requires a
	// protocol-level logout before the transport is torn down.
	APISession
)

func (k ConnectionKind) String() string {
	switch k {
	case RawSocket:
		return "raw-socket"
	case APISession:
		return "api-session"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// State of the connection lifecycle of a Feed.
type State int32

const (
	StateUnsubscribed State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "UNSUBSCRIBED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type CurrencyPair struct {
	Base  string
	Quote string
}

// String returns the pair in BASE_QUOTE form, ie. BTC_USD.
func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s_%s", p.Base, p.Quote)
}

// ParseCurrencyPair parses a pair in BASE_QUOTE form. Both sides are
// upper-cased.
func ParseCurrencyPair(str string) (CurrencyPair, error) {
	parts := strings.Split(strings.TrimSpace(str), "_")
	if len(parts) != 2 || len(parts[0]) <= 0 || len(parts[1]) <= 0 {
		return CurrencyPair{}, fmt.Errorf("%w: %q", ErrInvalidCurrencyPair, str)
	}
	return CurrencyPair{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

func ParseCurrencyPairs(list []string) ([]CurrencyPair, error) {
	pairs := make([]CurrencyPair, 0, len(list))
	for _, str := range list {
		pair, err := ParseCurrencyPair(str)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func pairsToString(pairs []CurrencyPair) string {
	strs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		strs = append(strs, p.String())
	}
	return strings.Join(strs, ",")
}

// Options are the construction options handed to a feed Factory.
type Options map[string]interface{}

func (o Options) GetString(key, defaultValue string) string {
	if v, ok := o[key].(string); ok && len(v) > 0 {
		return v
	}
	return defaultValue
}

func (o Options) GetDuration(key string, defaultValue time.Duration) time.Duration {
	switch v := o[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Millisecond
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// Config holds the lifecycle tunables shared by all feeds of a Registry.
type Config struct {
	// WatchdogTimeout closes a connection that received no data for this
	// long. Zero disables the watchdog.
	WatchdogTimeout time.Duration
	// ReconnectDelay is the fixed delay between a close and the next open.
	ReconnectDelay time.Duration
	// CleanupTimeout bounds every teardown step: api session close,
	// transport close and cleanup hook. Zero means unbounded.
	CleanupTimeout time.Duration
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
	// DialRate is the max number of connection attempts per second across
	// all feeds. Zero or less means unlimited.
	DialRate int
	// EventBufferSize is the size of each listener queue.
	EventBufferSize int
}

func DefaultConfig() Config {
	return Config{
		WatchdogTimeout: time.Minute,
		ReconnectDelay:  2500 * time.Millisecond,
		CleanupTimeout:  5 * time.Second,
		ConnectTimeout:  10 * time.Second,
		DialRate:        10,
		EventBufferSize: 64,
	}
}
