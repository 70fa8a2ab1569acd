package memkv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/store"
	"relay/internal/store/memkv"
)

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	require.NoError(t, s.Set(ctx, "k", "v", 0))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetTTLExpires(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	require.NoError(t, s.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	ok, err := s.SetNX(ctx, "k", "first", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "second", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	// key absent: oldValue "" required to succeed
	require.NoError(t, s.CompareAndSwap(ctx, "k", "", "v1", 0))

	// wrong oldValue is rejected
	err := s.CompareAndSwap(ctx, "k", "wrong", "v2", 0)
	assert.ErrorIs(t, err, store.ErrConflict)

	// correct oldValue succeeds
	require.NoError(t, s.CompareAndSwap(ctx, "k", "v1", "v2", 0))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	// key already present: oldValue "" is rejected
	err = s.CompareAndSwap(ctx, "k", "", "v3", 0)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSortedSet(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	require.NoError(t, s.ZAdd(ctx, "z", 3, "c"))
	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 2, "b"))

	asc, err := s.ZRangeByScore(ctx, "z", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, asc)

	desc, err := s.ZRevRangeByScore(ctx, "z", 0, 10, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, desc)

	card, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)

	require.NoError(t, s.ZRemRangeByScore(ctx, "z", 0, 1))
	card, err = s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := memkv.New()

	require.NoError(t, s.Set(ctx, "user:1", "a", 0))
	require.NoError(t, s.Set(ctx, "user:2", "b", 0))
	require.NoError(t, s.Set(ctx, "conv:1", "c", 0))

	keys, err := s.Scan(ctx, "user:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)
}
