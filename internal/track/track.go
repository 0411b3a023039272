// Package track implements the Modification Tracker (M) and Delete Tracker
// (D): the before/after hooks that stamp version_record/version_table/
// version_date/version_user on every tracked insert/update, upsert the
// per-table TableVersion sequence, write column-level ModifTrack history on
// update, and write DeleteTrack tombstones on remove.
//
// Grounded on pkg/security/audit_log.go's event-record-per-mutation shape
// (one row per observed fact, never rewritten after the fact) and wired as
// access.Hook values so its writes run inside whatever transaction scope
// the observed mutation itself is running in.
package track

import (
	"context"
	"time"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/model"
)

// Reserved internal table names. These are never themselves tracked,
// regardless of Config.Include/Exclude.
const (
	TableTableVersion = "table_version"
	TableModifTrack   = "modif_track"
	TableDeleteTrack  = "delete_track"
)

var alwaysExcluded = map[string]bool{
	TableTableVersion: true,
	TableModifTrack:   true,
	TableDeleteTrack:  true,
	// The sync engine's SyncLog and the binary engine's metadata table have
	// no version_* columns and are never tracked either.
	"sync_log":    true,
	"binary_meta": true,
}

// Config selects which tables the tracker instruments.
type Config struct {
	// Include, if non-empty, restricts tracking to exactly these tables.
	// An empty Include means every table not in Exclude or the
	// always-excluded internal set is tracked.
	Include []string
	Exclude []string

	// StrictActor makes a missing actor in the operation's context a hard
	// AuthError instead of writing version_user = nil. The zero value is
	// non-strict; DefaultConfig turns it on, per the production-default
	// Open Question decision recorded in DESIGN.md.
	StrictActor bool

	// Masked excludes columns from conflict comparison and from history,
	// per the glossary's "masked column" (e.g. password hashes). Keyed
	// by table name, same shape as sync.Config.Masked.
	Masked map[string][]string
}

func (c Config) isMasked(table, column string) bool {
	for _, col := range c.Masked[table] {
		if col == column {
			return true
		}
	}
	return false
}

// DefaultConfig tracks every table and requires an actor.
func DefaultConfig() Config {
	return Config{StrictActor: true}
}

type actorKey struct{}

// WithActor attaches the acting user/client identity to ctx for the
// tracker's before-hooks to read.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor attached by WithActor, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorKey{}).(string)
	return v, ok && v != ""
}

// Tracker owns Config and is installed onto one or more access.Client
// instances via Install.
type Tracker struct {
	cfg Config
}

// New builds a Tracker with cfg.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

func (t *Tracker) tracked(table string) bool {
	if alwaysExcluded[table] {
		return false
	}
	if len(t.cfg.Include) > 0 && !contains(t.cfg.Include, table) {
		return false
	}
	return !contains(t.cfg.Exclude, table)
}

func (t *Tracker) resolveActor(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		if t.cfg.StrictActor {
			return "", model.NewAuthError("no actor in context for a tracked mutation")
		}
		return "", nil
	}
	return actor, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Install registers the tracker's before/after hooks on c for every
// operation it instruments.
func (t *Tracker) Install(c *access.Client) {
	c.Before(access.OpInsert, "", t.beforeInsert)
	c.Before(access.OpUpdate, "", t.beforeUpdate)
	c.After(access.OpUpdate, "", t.afterUpdate)
	c.Before(access.OpRemove, "", t.beforeRemove)
	c.After(access.OpRemove, "", t.afterRemove)
	c.Before(access.OpRemoveWhere, "", t.beforeRemoveWhere)
	c.After(access.OpRemoveWhere, "", t.afterRemoveWhere)
}

func now() time.Time {
	return time.Now().UTC()
}
