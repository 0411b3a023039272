package sync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/schema"
)

// RemoteTransport is the client's view of the server half of the Sync
// Engine; the HTTP boundary (server/httpapi) supplies the concrete
// implementation.
type RemoteTransport interface {
	TimeServer
	SchemaVersion(ctx context.Context) (int64, error)
	FetchUpdated(ctx context.Context, table string, sinceVersion int64) ([]model.Record, error)
	FetchDeleted(ctx context.Context, table string, sinceVersion int64) ([]model.DeleteTrack, error)
	Upload(ctx context.Context, cs model.ChangeSet) (shouldRefresh bool, err error)
}

// PendingStore is the client's durable queue of not-yet-uploaded local
// changes and per-table download watermarks, backed by internal/localstore
// so an offline client surviving a process restart does not lose queued
// writes.
type PendingStore interface {
	Pending(ctx context.Context) ([]model.Change, error)
	ClearPending(ctx context.Context) error
	LocalVersion(ctx context.Context, table string) (int64, error)
	SetLocalVersion(ctx context.Context, table string, version int64) error
}

// Client is the client-side half of the Sync Engine.
type Client struct {
	db        *access.Client // local backend the client applies downloaded changes to
	catalog   *schema.Catalog
	transport RemoteTransport
	store     PendingStore
	cfg       Config

	mu sync.Mutex
}

// NewClient builds a client-side sync engine over a local access.Client.
func NewClient(db *access.Client, catalog *schema.Catalog, transport RemoteTransport, store PendingStore, cfg Config) *Client {
	return &Client{db: db, catalog: catalog, transport: transport, store: store, cfg: cfg}
}

// Sync uploads pending local changes, then downloads and applies remote
// changes. A Sync already in progress makes a concurrent caller wait
// (short fixed delay retry) rather than run in parallel
// point 3.
func (c *Client) Sync(ctx context.Context) error {
	for !c.mu.TryLock() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer c.mu.Unlock()

	if err := c.upload(ctx); err != nil {
		return err
	}
	return c.download(ctx)
}

func (c *Client) upload(ctx context.Context) error {
	pending, err := c.store.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	skew, err := NegotiateSkew(ctx, c.transport, func() time.Time { return time.Now().UTC() })
	if err != nil {
		return err
	}

	cs := model.ChangeSet{
		UUID:       uuid.NewString(),
		ClientDate: time.Now().UTC(),
		TimeSkewMs: skew.Milliseconds(),
		Changes:    pending,
	}
	if _, err := c.transport.Upload(ctx, cs); err != nil {
		return err
	}
	// The batch is either applied or recorded to SyncLog by uuid on the
	// server; either way it will not be re-applied, so the local queue is
	// cleared once uploaded. A shouldRefresh response is reconciled by the
	// download pass that immediately follows.
	return c.store.ClearPending(ctx)
}

func (c *Client) download(ctx context.Context) error {
	remoteVersion, err := c.transport.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	localVersion, err := c.catalog.Version()
	if err != nil {
		return err
	}
	if remoteVersion > localVersion {
		c.catalog.Invalidate()
	}

	for _, table := range c.cfg.Tables {
		if err := c.syncTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) syncTable(ctx context.Context, table string) error {
	localVersion, err := c.store.LocalVersion(ctx, table)
	if err != nil {
		return err
	}

	updated, err := c.transport.FetchUpdated(ctx, table, localVersion)
	if err != nil {
		return err
	}
	deleted, err := c.transport.FetchDeleted(ctx, table, localVersion)
	if err != nil {
		return err
	}
	if len(updated) == 0 && len(deleted) == 0 {
		return nil
	}

	schemaTable, err := c.db.TableSchema(table)
	if err != nil {
		return err
	}

	maxVersion := localVersion
	applyErr := c.db.Transaction(ctx, 30*time.Second, func(tx *access.Client, done func(error)) error {
		for _, rec := range updated {
			if v := toInt64(rec[model.ColVersionTable]); v > maxVersion {
				maxVersion = v
			}
			if _, err := tx.Changes(ctx, []access.ChangeOp{{Action: model.ActionAuto, Table: table, Record: rec}}); err != nil {
				done(err)
				return err
			}
		}
		for _, del := range deleted {
			if del.TableVersion > maxVersion {
				maxVersion = del.TableVersion
			}
			pk := parseTableUID(del.TableUID, schemaTable.PrimaryKey)
			if err := tx.Remove(ctx, table, pk); err != nil {
				done(err)
				return err
			}
		}
		done(nil)
		return nil
	})
	if applyErr != nil {
		return applyErr
	}
	return c.store.SetLocalVersion(ctx, table, maxVersion)
}

// parseTableUID splits a table_uid back into its primary-key record, using
// the table's declared pk column order.
func parseTableUID(uid string, pk []string) model.Record {
	parts := strings.Split(uid, model.TableUIDSeparator)
	out := make(model.Record, len(pk))
	for i, col := range pk {
		if i < len(parts) {
			out[col] = parts[i]
		}
	}
	return out
}
