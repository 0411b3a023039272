package binary

import "context"

// localStateFuncs adapts a plain string-keyed checksum tracker (such as
// internal/localstore.Store, which knows nothing of this package's
// Checksum type) to SyncState.
type localStateFuncs struct {
	get func(ctx context.Context, uid string) (string, error)
	set func(ctx context.Context, uid string, checksum string) error
}

func (a localStateFuncs) LastChecksum(ctx context.Context, uid string) (Checksum, error) {
	v, err := a.get(ctx, uid)
	return Checksum(v), err
}

func (a localStateFuncs) SetLastChecksum(ctx context.Context, uid string, c Checksum) error {
	return a.set(ctx, uid, string(c))
}

// NewSyncState builds a SyncState from a get/set pair matching
// internal/localstore.Store's LastChecksum/SetLastChecksum methods.
func NewSyncState(get func(ctx context.Context, uid string) (string, error), set func(ctx context.Context, uid string, checksum string) error) SyncState {
	return localStateFuncs{get: get, set: set}
}
