// Package localstore is the client-side durable queue of not-yet-uploaded
// local changes, per-table download watermarks, and per-blob last-synced
// checksums: a sync client surviving a process restart must not lose
// queued writes, forget how far it had downloaded, or forget which binary
// checksum it last reconciled, so all three live in Badger rather than in
// memory.
//
// Grounded on pkg/resource/badger's key-prefix-plus-JSON-codec storage
// shape (prefixed keys scanned with a badger.Iterator, row payloads
// json.Marshal'd, fixed-width counters big-endian encoded) and its
// SequenceManager wrapping badger.DB.GetSequence for monotonic keys.
package localstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/kasuganosora/syncbase/internal/model"
)

const (
	prefixPending = "pending:"
	prefixVersion = "version:"
	prefixBinSync = "binsync:"
	pendingSeqKey = "pending_seq"
)

// Config mirrors DataSourceConfig, trimmed to what a client
// durability store needs (no value threshold/compression tuning: the
// pending queue and version watermarks are small, short-lived records).
type Config struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// Store is the Badger-backed PendingStore the client-side sync engine
// depends on (internal/sync.PendingStore), plus Enqueue for whatever feeds
// it local changes.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (or creates) the Badger database at cfg.DataDir, or an
// in-memory instance when cfg.InMemory is set (used by tests).
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.DataDir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	seq, err := db.GetSequence([]byte(pendingSeqKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Close releases the pending-key sequence and closes the database.
func (s *Store) Close() error {
	s.seq.Release()
	return s.db.Close()
}

func pendingKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixPending, n))
}

func versionKey(table string) []byte {
	return []byte(prefixVersion + table)
}

// Enqueue appends a local change to the pending queue, in the order it was
// made, for a later Sync's upload pass to pick up.
func (s *Store) Enqueue(ctx context.Context, ch model.Change) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("localstore: next seq: %w", err)
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("localstore: encode change: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(n), data)
	}); err != nil {
		return fmt.Errorf("localstore: enqueue: %w", err)
	}
	return nil
}

// Pending returns every queued change, oldest first (the zero-padded
// sequence prefix sorts lexically in insertion order).
func (s *Store) Pending(ctx context.Context) ([]model.Change, error) {
	var out []model.Change
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPending)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var ch model.Change
				if err := json.Unmarshal(val, &ch); err != nil {
					return err
				}
				out = append(out, ch)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localstore: pending: %w", err)
	}
	return out, nil
}

// ClearPending drops every queued change, once its batch has been
// uploaded: the server's SyncLog idempotency guard means re-sending it
// could never apply twice, so there is nothing gained by keeping it queued.
func (s *Store) ClearPending(ctx context.Context) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return deleteByPrefix(txn, []byte(prefixPending))
	}); err != nil {
		return fmt.Errorf("localstore: clear pending: %w", err)
	}
	return nil
}

func deleteByPrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := make([]byte, len(item.Key()))
		copy(key, item.Key())
		keys = append(keys, key)
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// LocalVersion returns the last table_version watermark this client has
// fully downloaded for table, or 0 if it has never synced the table.
func (s *Store) LocalVersion(ctx context.Context, table string) (int64, error) {
	var v int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(table))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("localstore: local version: %w", err)
	}
	return v, nil
}

// SetLocalVersion advances the download watermark for table.
func (s *Store) SetLocalVersion(ctx context.Context, table string, version int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(versionKey(table), buf)
	}); err != nil {
		return fmt.Errorf("localstore: set local version: %w", err)
	}
	return nil
}
