package connreg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/connreg"
	"relay/internal/relayerr"
	"relay/internal/store/memkv"
)

func TestConnectTouchDisconnect(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	reg := connreg.New(kv, 2*time.Hour)

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Connect(ctx, "conn-1", "uid-1", t0))

	c, err := reg.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", c.UnifiedUserID)

	t1 := t0.Add(time.Minute)
	require.NoError(t, reg.Touch(ctx, "conn-1", t1))
	c, err = reg.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, t1, c.LastSeenAt)

	require.NoError(t, reg.Disconnect(ctx, "conn-1"))
	_, err = reg.Get(ctx, "conn-1")
	assert.True(t, relayerr.Is(err, relayerr.KindNotFound))
}

func TestDisconnectMissingConnectionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	reg := connreg.New(memkv.New(), time.Hour)
	assert.NoError(t, reg.Disconnect(ctx, "never-existed"))
}

func TestReapRemovesStaleConnections(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	reg := connreg.New(kv, 2*time.Hour)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(3 * time.Hour)

	require.NoError(t, reg.Connect(ctx, "stale-conn", "uid-1", old))
	require.NoError(t, reg.Connect(ctx, "fresh-conn", "uid-2", fresh))

	removed, err := reg.Reap(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = reg.Get(ctx, "stale-conn")
	assert.True(t, relayerr.Is(err, relayerr.KindNotFound))

	_, err = reg.Get(ctx, "fresh-conn")
	assert.NoError(t, err)
}
