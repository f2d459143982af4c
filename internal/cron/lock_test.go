package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]string
	getErr error
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// a worker that never owned the lock must not clear it
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "cron")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "cron")
}

func TestRedisLockLeavesForeignToken(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.values["cron"] = "someone-else"
	require.NoError(t, l.Release(ctx))
	assert.Equal(t, "someone-else", store.values["cron"])
}

func TestRedisLockReleaseReadError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx)
	require.NoError(t, err)

	store.getErr = errors.New("down")
	assert.Error(t, l.Release(ctx))
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemStore(), "", 0)
	assert.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	var l LocalLock
	ok, _ := l.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = l.Acquire(ctx)
	assert.False(t, ok)
	require.NoError(t, l.Release(ctx))
	ok, _ = l.Acquire(ctx)
	assert.True(t, ok)
}
