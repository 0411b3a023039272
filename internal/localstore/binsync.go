package localstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

func binSyncKey(uid string) []byte {
	return []byte(prefixBinSync + uid)
}

// LastChecksum returns the checksum recorded as of uid's last successful
// binary sync, or "" if it has never synced. It returns a plain string
// rather than internal/binary's Checksum type, so Store does not satisfy
// binary.SyncState directly; binary.NewSyncState adapts this method pair
// to that interface without this package importing internal/binary.
func (s *Store) LastChecksum(ctx context.Context, uid string) (string, error) {
	var checksum string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(binSyncKey(uid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			checksum = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("localstore: last checksum: %w", err)
	}
	return checksum, nil
}

// SetLastChecksum records the checksum as of uid's most recent successful
// binary sync.
func (s *Store) SetLastChecksum(ctx context.Context, uid string, checksum string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(binSyncKey(uid), []byte(checksum))
	}); err != nil {
		return fmt.Errorf("localstore: set last checksum: %w", err)
	}
	return nil
}
