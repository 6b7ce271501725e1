package marketfeed

import "errors"

var (
	// ErrConnectorNotFound is returned when a feed can't be constructed,
	// either because no factory is registered for its type or because the
	// factory failed.
	ErrConnectorNotFound = errors.New("feed connector not found")
	// ErrConnectFailure is returned when a connector can't establish a
	// transport.
	ErrConnectFailure = errors.New("failed to connect feed")
	// ErrCloseTargetMissing is logged when closing a feed with no tracked
	// transport.
	ErrCloseTargetMissing = errors.New("no transport to close")
	// ErrCloseCapabilityUnresolved is logged when a transport exposes no
	// known close operation.
	ErrCloseCapabilityUnresolved = errors.New("unable to close unknown transport")
	// ErrCleanupHookFailure is logged when the feed cleanup hook fails,
	// panics or times out.
	ErrCleanupHookFailure = errors.New("feed cleanup failed")
	// ErrTeardownTimeout is logged when a teardown step doesn't return
	// within the cleanup timeout.
	ErrTeardownTimeout = errors.New("teardown step timed out")
	// ErrNotSubscribed is returned when opening a feed with no currency
	// pairs recorded.
	ErrNotSubscribed = errors.New("feed is not subscribed")
	// ErrDuplicateSubscription is returned when subscribing a feed more
	// than once.
	ErrDuplicateSubscription = errors.New("feed is already subscribed")
	ErrNoCurrencyPairs       = errors.New("missing currency pairs")
	ErrInvalidCurrencyPair   = errors.New("invalid currency pair")
	ErrUnknownEvent          = errors.New("unknown event")
)
