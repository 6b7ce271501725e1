package journalstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tdex-network/tdex-feeder/internal/core/ports"
)

type journalStore struct {
	store *badgerhold.Store
	quit  chan struct{}
}

// NewJournalStore opens the journal db under baseDbDir. An empty dir opens an
// in-memory db.
func NewJournalStore(
	baseDbDir string, logger badger.Logger,
) (ports.JournalStore, error) {
	var journalDir string
	if len(baseDbDir) > 0 {
		journalDir = filepath.Join(baseDbDir, "journal")
	}

	quit := make(chan struct{})
	store, err := createDb(journalDir, logger, quit)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	return &journalStore{store, quit}, nil
}

func (s *journalStore) AddEntry(
	_ context.Context, entry ports.JournalEntry,
) error {
	if len(entry.ID) <= 0 {
		return fmt.Errorf("missing journal entry id")
	}
	if err := s.store.Insert(entry.ID, &entry); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("journal entry %s already exists", entry.ID)
		}
		return err
	}
	return nil
}

func (s *journalStore) GetEntries(
	_ context.Context, feed string, limit int,
) ([]ports.JournalEntry, error) {
	query := badgerhold.Where("Feed").Eq(feed).SortBy("Timestamp").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []ports.JournalEntry
	if err := s.store.Find(&entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *journalStore) Close() {
	close(s.quit)
	s.store.Close()
}

func createDb(
	dbDir string, logger badger.Logger, quit chan struct{},
) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-quit:
					return
				case <-ticker.C:
					if err := db.Badger().RunValueLogGC(0.5); err != nil &&
						err != badger.ErrNoRewrite {
						log.Error(err)
					}
				}
			}
		}()
	}

	return db, nil
}
