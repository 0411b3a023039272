package binary

import (
	"context"
	"io"
)

// RemoteBinary is the client's view of the server half of the Binary
// Engine, over whatever transport the HTTP boundary supplies.
type RemoteBinary interface {
	Checksum(ctx context.Context, uid string) (Checksum, error)
	Fetch(ctx context.Context, uid string) (io.ReadCloser, error)
	Upload(ctx context.Context, uid string, r io.Reader) error
}

// SyncState tracks the checksum recorded as of each uid's last successful
// sync, so Resolve can distinguish a local-only edit from a server-only
// edit from a genuine conflict.
type SyncState interface {
	LastChecksum(ctx context.Context, uid string) (Checksum, error)
	SetLastChecksum(ctx context.Context, uid string, c Checksum) error
}

// Client is the client-side half of the Binary Engine: a local Engine
// backed by its own storage root, paired with a RemoteBinary transport
// and a SyncState tracker.
type Client struct {
	local    *Engine
	remote   RemoteBinary
	state    SyncState
	resolver ConflictResolver
}

// NewClient builds a client-side Binary Engine.
func NewClient(local *Engine, remote RemoteBinary, state SyncState, resolver ConflictResolver) *Client {
	return &Client{local: local, remote: remote, state: state, resolver: resolver}
}

// localChecksum returns the local checksum for uid, or "" if there is no
// local copy (the metadata row is absent — the "Lc absent" case).
func (c *Client) localChecksum(ctx context.Context, uid string) (Checksum, error) {
	_, meta, err := c.local.Open(ctx, uid)
	if err != nil {
		return "", nil // absent: not an error for sync purposes
	}
	return Checksum(meta.Checksum), nil
}

// SyncRecord runs the three-way decision for one uid and carries out
// whatever it calls for's client-side sync table.
func (c *Client) SyncRecord(ctx context.Context, uid string, table, tableUID, filename string) error {
	lc, err := c.localChecksum(ctx, uid)
	if err != nil {
		return err
	}
	sc, err := c.remote.Checksum(ctx, uid)
	if err != nil {
		return err
	}
	fc, err := c.state.LastChecksum(ctx, uid)
	if err != nil {
		return err
	}

	action := Resolve(lc, sc, fc, c.resolver)
	switch action {
	case ActionNoop, ActionSkip:
		return nil
	case ActionUpload:
		return c.upload(ctx, uid, table, tableUID, filename, lc)
	case ActionDownload:
		return c.download(ctx, uid, table, tableUID, filename)
	case ActionUploadThenDownload:
		if err := c.upload(ctx, uid, table, tableUID, filename, lc); err != nil {
			return err
		}
		return c.download(ctx, uid, table, tableUID, filename)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, uid, table, tableUID, filename string, lc Checksum) error {
	r, meta, err := c.local.Open(ctx, uid)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := c.remote.Upload(ctx, uid, r); err != nil {
		return err
	}
	return c.state.SetLastChecksum(ctx, uid, Checksum(meta.Checksum))
}

func (c *Client) download(ctx context.Context, uid, table, tableUID, filename string) error {
	r, err := c.remote.Fetch(ctx, uid)
	if err != nil {
		return err
	}
	defer r.Close()

	meta, err := c.local.Save(ctx, SaveInput{
		UID:      uid,
		Table:    table,
		TableUID: tableUID,
		Filename: filename,
		Contents: r,
	})
	if err != nil {
		return err
	}
	return c.state.SetLastChecksum(ctx, uid, Checksum(meta.Checksum))
}
