// Package connreg tracks live WebSocket connections for the web channel
// (component C3), persisted in store.KV so registration survives a
// process restart and a background reaper can expire stale entries
// without depending on in-process connection handles.
package connreg

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/relayerr"
	"relay/internal/store"
)

// Connection is the durable record for one web client's $connect lifecycle.
type Connection struct {
	ConnectionID  string    `json:"connection_id"`
	UnifiedUserID string    `json:"unified_user_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// Registry persists connections under connreg:{connection_id}, each with a
// sliding TTL, and indexes them by connection_id in a sorted set scored by
// last_seen so the reaper can cheaply find the stale tail.
type Registry struct {
	kv  store.KV
	ttl time.Duration
}

const indexKey = "connreg:index"

func connKey(id string) string { return "connreg:" + id }

// New constructs a Registry with the given connection TTL.
func New(kv store.KV, ttl time.Duration) *Registry {
	return &Registry{kv: kv, ttl: ttl}
}

// Connect records a new $connect event.
func (r *Registry) Connect(ctx context.Context, connectionID, unifiedUserID string, now time.Time) error {
	c := Connection{
		ConnectionID:  connectionID,
		UnifiedUserID: unifiedUserID,
		ConnectedAt:   now,
		LastSeenAt:    now,
	}
	return r.put(ctx, &c)
}

// Touch refreshes a connection's last-seen time and TTL on each $default
// event, keeping active connections from being reaped.
func (r *Registry) Touch(ctx context.Context, connectionID string, now time.Time) error {
	c, err := r.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	c.LastSeenAt = now
	return r.put(ctx, c)
}

// Disconnect removes a connection record. Per the $disconnect contract it
// is best-effort: a missing record is not an error.
func (r *Registry) Disconnect(ctx context.Context, connectionID string) error {
	_ = r.kv.Delete(ctx, connKey(connectionID))
	_ = r.kv.ZRem(ctx, indexKey, connectionID)
	return nil
}

// Get loads a connection record.
func (r *Registry) Get(ctx context.Context, connectionID string) (*Connection, error) {
	raw, err := r.kv.Get(ctx, connKey(connectionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "connection not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "connection registry unavailable", err)
	}
	var c Connection
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &c); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt connection record", err)
	}
	return &c, nil
}

func (r *Registry) put(ctx context.Context, c *Connection) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(c)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, connKey(c.ConnectionID), data, r.ttl); err != nil {
		return err
	}
	return r.kv.ZAdd(ctx, indexKey, float64(c.LastSeenAt.Unix()), c.ConnectionID)
}

// Stale returns connection ids last seen before the cutoff, for the reaper
// to clean up. Entries past the TTL will usually have already expired out
// of the KV on their own; this covers the index drifting from a crash or a
// backend that does not actively expire (e.g. memkv without a sweep).
func (r *Registry) Stale(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.kv.ZRangeByScore(ctx, indexKey, 0, float64(cutoff.Unix()))
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "connection registry unavailable", err)
	}
	return ids, nil
}

// Reap removes every connection whose index entry was last seen at or
// before cutoff, whether or not its record has already expired from the
// KV. Returns the count removed.
func (r *Registry) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := r.Stale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range stale {
		if err := r.Disconnect(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}
