// Package binary implements the Binary Engine (B): a content-addressed
// blob store keyed by record UID, with a server-side save flow (temp
// path, checksum, transactional metadata upsert, atomic move) and a
// client-side three-way sync decision table.
//
// Grounded on pkg/resource/jsonl/adapter.go's writeBack temp-file-then-
// os.Rename pattern for the atomic move, and pkg/resource/filemeta's
// sidecar-metadata-precedes-content discipline for the metadata-before-
// move ordering.
package binary

import (
	"crypto/md5"
	"hash"
	"strings"
	"time"
)

// Config scopes an Engine to a storage root, a path-derivation pattern,
// and a pluggable checksum algorithm.
type Config struct {
	// Root is the storage root; temp files and derived paths are both
	// rooted here so the final move (step 4) never crosses a filesystem
	// boundary.
	Root string

	// PathPattern derives the final on-disk path from tokens {table},
	// {table_uid}, {uid}, {ext}, {date}, {time}. Default DefaultPathPattern.
	PathPattern string

	// NewHash constructs the checksum algorithm; defaults to md5.New.
	NewHash func() hash.Hash
}

// DefaultPathPattern lays blobs out by table/record so a directory listing
// mirrors the relational shape they're attached to.
const DefaultPathPattern = "{table}/{table_uid}/{uid}{ext}"

func (c Config) hashFactory() func() hash.Hash {
	if c.NewHash != nil {
		return c.NewHash
	}
	return md5.New
}

func (c Config) pattern() string {
	if c.PathPattern != "" {
		return c.PathPattern
	}
	return DefaultPathPattern
}

// derivePath renders the configured pattern for one blob
// step 3's token list.
func derivePath(pattern, table, tableUID, uid, ext string, now time.Time) string {
	r := strings.NewReplacer(
		"{table}", table,
		"{table_uid}", tableUID,
		"{uid}", uid,
		"{ext}", ext,
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
	)
	return r.Replace(pattern)
}
