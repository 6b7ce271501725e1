package application

import "errors"

var (
	// ErrInvalidFeedSpec is returned when the feeds setting can't be parsed.
	ErrInvalidFeedSpec = errors.New("invalid feed spec")
	// ErrDuplicateFeedSpec is returned when the same feed type is listed twice.
	ErrDuplicateFeedSpec = errors.New("feed listed more than once")
	// ErrFeedNotFound is returned for feed types not served by the service.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrServiceStarted is returned by Start if called more than once.
	ErrServiceStarted = errors.New("service already started")
)
