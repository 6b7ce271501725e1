package ports

import "context"

// JournalEntry records a lifecycle transition of a feed.
type JournalEntry struct {
	ID        string
	Feed      string
	Event     string
	Reason    string
	Timestamp int64
}

type JournalStore interface {
	// AddEntry stores a new journal entry.
	AddEntry(ctx context.Context, entry JournalEntry) error
	// GetEntries returns the most recent entries of the given feed, newest
	// first. A limit of zero or less returns all of them.
	GetEntries(ctx context.Context, feed string, limit int) ([]JournalEntry, error)
	// Close releases the underlying storage.
	Close()
}
