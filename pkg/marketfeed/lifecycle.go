package marketfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const timeoutReason = "Connection timed out"

// Open asynchronously opens the feed connection. The returned channel
// receives the outcome once the connector returns. A failed Open is not
// retried; only opens scheduled after a close keep retrying. Feeds never
// subscribed are not dialed and get ErrNotSubscribed.
func (f *Feed) Open() <-chan error {
	result := make(chan error, 1)
	go func() {
		f.lifecycle.Lock()
		defer f.lifecycle.Unlock()
		result <- f.openLocked(false)
	}()
	return result
}

// Close tears down the current transport, if any, and schedules a reopen
// after the configured reconnect delay. Errors along the way are logged and
// never prevent the reconnect.
func (f *Feed) Close(reason string) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	f.closeLocked(reason)
}

// Touch signals that data was received and resets the watchdog.
func (f *Feed) Touch() {
	if f.State() != StateOpen {
		return
	}
	f.resetWatchdog()
}

// Disconnected is used by connectors to report that transport t dropped.
// It's a no-op if t no longer serves the feed.
func (f *Feed) Disconnected(t Transport, err error) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	current, ok := f.registry.Transport(f.feedType)
	if !ok || current != t {
		f.logger().Debug("ignoring drop of stale transport")
		return
	}

	reason := "connection dropped"
	if err != nil {
		reason = fmt.Sprintf("connection dropped: %s", err)
	}
	f.closeLocked(reason)
}

func (f *Feed) openLocked(reconnecting bool) error {
	if !f.IsSubscribed() {
		f.logger().Warn("skipping open of feed with no currency pairs")
		return ErrNotSubscribed
	}
	if f.State() == StateOpen {
		if _, ok := f.registry.Transport(f.feedType); ok {
			return nil
		}
	}
	f.setState(StateOpening)

	transport, err := f.connect()
	if err != nil {
		connectionOpens.WithLabelValues(string(f.feedType), "failure").Inc()
		err = fmt.Errorf("%w %s: %s", ErrConnectFailure, f.feedType, err)
		f.logger().WithError(err).Warn("unable to open connection")

		f.setState(StateClosed)
		f.emitLifecycle(EventConnectFailed, ConnectionInfo{Kind: f.kind, Err: err})
		if reconnecting {
			f.onCloseLocked(fmt.Sprintf("connect failed: %s", err))
		}
		return err
	}

	f.registry.setTransport(f.feedType, transport)
	f.reconnect.cancel()
	f.setState(StateOpen)
	f.resetWatchdog()

	connectionOpens.WithLabelValues(string(f.feedType), "success").Inc()
	f.logger().Info("connection opened")
	f.emitLifecycle(EventConnected, ConnectionInfo{Kind: f.kind})
	return nil
}

func (f *Feed) connect() (Transport, error) {
	f.registry.takeDial()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if f.cfg.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), f.cfg.ConnectTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	res, err := f.breaker.Execute(func() (_ interface{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("connector panicked: %v", rec)
			}
		}()

		t, err := f.connector.Connect(ctx, f)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("connector returned no transport")
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(Transport), nil
}

func (f *Feed) closeLocked(reason string) {
	f.setState(StateClosing)

	transport, ok := f.registry.Transport(f.feedType)
	if !ok {
		f.logger().WithError(ErrCloseTargetMissing).Error("unable to close connection")
	} else {
		f.teardown(transport)
		f.registry.removeTransport(f.feedType, transport)
	}

	f.watchdog.cancel()
	connectionCloses.WithLabelValues(string(f.feedType)).Inc()
	f.onCloseLocked(reason)
}

// teardown runs every shutdown step of t. A failing or hanging step is
// logged and doesn't stop the next ones.
func (f *Feed) teardown(t Transport) {
	if f.kind == APISession {
		if closer, ok := f.connector.(SessionCloser); ok {
			f.safely("api session close", func() error {
				return f.bounded(func() error {
					return closer.CloseAPISession(t)
				})
			})
		}
	}

	f.safely("transport close", func() error {
		return f.bounded(func() error {
			return closeTransport(t)
		})
	})

	if remover, ok := t.(ListenerRemover); ok {
		f.safely("listeners removal", func() error {
			remover.RemoveAllListeners()
			return nil
		})
	}

	if cleaner, ok := f.connector.(Cleaner); ok {
		f.safely("cleanup", func() error {
			err := f.bounded(func() error {
				if !cleaner.Cleanup() {
					return ErrCleanupHookFailure
				}
				return nil
			})
			if err != nil && !errors.Is(err, ErrCleanupHookFailure) {
				return fmt.Errorf("%w: %s", ErrCleanupHookFailure, err)
			}
			return err
		})
	}
}

func closeTransport(t Transport) error {
	switch tt := t.(type) {
	case *SocketTransport:
		return tt.CloseSocket()
	case io.Closer:
		return tt.Close()
	default:
		return fmt.Errorf("%w of kind %s", ErrCloseCapabilityUnresolved, t.Kind())
	}
}

// bounded runs fn and waits at most CleanupTimeout for it to return. A
// step that times out is left running and its outcome is discarded.
func (f *Feed) bounded(fn func() error) error {
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
			done <- err
		}()
		err = fn()
	}()

	var timeout <-chan time.Time
	if f.cfg.CleanupTimeout > 0 {
		t := time.NewTimer(f.cfg.CleanupTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-done:
		return err
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrTeardownTimeout, f.cfg.CleanupTimeout)
	}
}

func (f *Feed) safely(step string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			teardownErrors.WithLabelValues(string(f.feedType)).Inc()
			f.logger().Errorf("panic during %s: %v", step, rec)
		}
	}()

	if err := fn(); err != nil {
		teardownErrors.WithLabelValues(string(f.feedType)).Inc()
		f.logger().WithError(err).Errorf("error during %s", step)
	}
}

func (f *Feed) onCloseLocked(reason string) {
	f.logger().Warnf("connection closed: reason: %s", reason)
	f.watchdog.cancel()
	f.setState(StateClosed)
	f.reconnect.arm(f.cfg.ReconnectDelay, f.onReconnect)
	f.emitLifecycle(EventDisconnected, ConnectionInfo{Kind: f.kind, Reason: reason})
}

func (f *Feed) onReconnect(gen uint64) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if !f.reconnect.fired(gen) {
		return
	}
	//nolint
	f.openLocked(true)
}

func (f *Feed) resetWatchdog() {
	if f.cfg.WatchdogTimeout <= 0 {
		return
	}
	f.watchdog.arm(f.cfg.WatchdogTimeout, f.onWatchdog)
}

func (f *Feed) onWatchdog(gen uint64) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if !f.watchdog.fired(gen) || f.State() != StateOpen {
		return
	}
	watchdogFires.WithLabelValues(string(f.feedType)).Inc()
	f.closeLocked(timeoutReason)
}

func (f *Feed) emitLifecycle(event EventName, info ConnectionInfo) {
	if _, err := f.events.emit(event, info); err != nil {
		f.logger().WithError(err).Warn("failed to publish lifecycle event")
	}
}
