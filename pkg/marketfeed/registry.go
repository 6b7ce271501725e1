package marketfeed

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"
)

// Factory builds the connector of a feed type from the given options.
type Factory func(opts Options) (Connector, error)

var (
	factoriesLock sync.RWMutex
	factories     = make(map[FeedType]Factory)
)

// Register makes a feed factory available under the given type. It's meant
// to be called from the init function of feed packages and panics if the
// factory is nil or the type is already registered.
func Register(feedType FeedType, factory Factory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()

	if factory == nil {
		panic("marketfeed: Register factory is nil")
	}
	if _, dup := factories[feedType]; dup {
		panic(fmt.Sprintf("marketfeed: Register called twice for feed %s", feedType))
	}
	factories[feedType] = factory
}

// RegisteredFeeds returns the sorted list of feed types with a registered
// factory.
func RegisteredFeeds() []FeedType {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()

	types := make([]FeedType, 0, len(factories))
	for feedType := range factories {
		types = append(types, feedType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func lookupFactory(feedType FeedType) (Factory, bool) {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()

	factory, ok := factories[feedType]
	return factory, ok
}

type RegistryOption func(*Registry)

// WithFactories makes the registry resolve feeds from the given factories
// instead of the process-wide ones added with Register.
func WithFactories(list map[FeedType]Factory) RegistryOption {
	return func(r *Registry) {
		r.lookup = func(feedType FeedType) (Factory, bool) {
			factory, ok := list[feedType]
			return factory, ok
		}
	}
}

// Registry holds the singleton Feed of every feed type and the transport
// currently serving it. Entries are never removed.
type Registry struct {
	cfg         Config
	lookup      func(FeedType) (Factory, bool)
	dialLimiter ratelimit.Limiter
	group       singleflight.Group

	lock       sync.RWMutex
	feeds      map[FeedType]*Feed
	transports map[FeedType]Transport
}

func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultConfig().EventBufferSize
	}

	dialLimiter := ratelimit.NewUnlimited()
	if cfg.DialRate > 0 {
		dialLimiter = ratelimit.New(cfg.DialRate)
	}

	r := &Registry{
		cfg:         cfg,
		lookup:      lookupFactory,
		dialLimiter: dialLimiter,
		feeds:       make(map[FeedType]*Feed),
		transports:  make(map[FeedType]Transport),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the feed of the given type, building it with opts the
// first time. Concurrent first calls build the feed only once. Resolution
// failures are logged and returned wrapped in ErrConnectorNotFound.
func (r *Registry) GetOrCreate(feedType FeedType, opts Options) (*Feed, error) {
	if feed, ok := r.Get(feedType); ok {
		return feed, nil
	}

	v, err, _ := r.group.Do(string(feedType), func() (interface{}, error) {
		if feed, ok := r.Get(feedType); ok {
			return feed, nil
		}

		feed, err := r.create(feedType, opts)
		if err != nil {
			return nil, err
		}

		r.lock.Lock()
		r.feeds[feedType] = feed
		r.lock.Unlock()
		return feed, nil
	})
	if err != nil {
		log.WithError(err).WithField("feed", feedType).Error("failed to load feed")
		return nil, err
	}
	return v.(*Feed), nil
}

func (r *Registry) Get(feedType FeedType) (*Feed, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	feed, ok := r.feeds[feedType]
	return feed, ok
}

// Feeds returns the feeds created so far, sorted by type.
func (r *Registry) Feeds() []*Feed {
	r.lock.RLock()
	defer r.lock.RUnlock()

	feeds := make([]*Feed, 0, len(r.feeds))
	for _, feed := range r.feeds {
		feeds = append(feeds, feed)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].feedType < feeds[j].feedType
	})
	return feeds
}

// Transport returns the transport currently serving the given feed type.
func (r *Registry) Transport(feedType FeedType) (Transport, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.transports[feedType]
	return t, ok
}

func (r *Registry) create(feedType FeedType, opts Options) (feed *Feed, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrConnectorNotFound, feedType, rec)
		}
	}()

	factory, ok := r.lookup(feedType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, feedType)
	}

	connector, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrConnectorNotFound, feedType, err)
	}
	if connector == nil {
		return nil, fmt.Errorf("%w: %s: factory returned no connector", ErrConnectorNotFound, feedType)
	}

	return newFeed(r, feedType, connector), nil
}

// setTransport replaces the transport of the given feed type. The previous
// one, if any, is not closed.
func (r *Registry) setTransport(feedType FeedType, t Transport) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.transports[feedType] = t
}

func (r *Registry) removeTransport(feedType FeedType, t Transport) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if current, ok := r.transports[feedType]; ok && current == t {
		delete(r.transports, feedType)
	}
}

func (r *Registry) takeDial() {
	r.dialLimiter.Take()
}
