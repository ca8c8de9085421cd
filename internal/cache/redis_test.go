package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreGetSet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "lr:")
	ctx := context.Background()

	mock.ExpectSet("lr:decision|x", []byte("cached"), 5*time.Second).SetVal("OK")
	s.Set(ctx, "decision|x", []byte("cached"), 5*time.Second)

	mock.ExpectGet("lr:decision|x").SetVal("cached")
	val, ok := s.Get(ctx, "decision|x")
	require.True(t, ok)
	assert.Equal(t, []byte("cached"), val)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreMissAndFault(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "")
	ctx := context.Background()

	mock.ExpectGet("absent").RedisNil()
	_, ok := s.Get(ctx, "absent")
	assert.False(t, ok)

	// Transport faults degrade to misses, never errors.
	mock.ExpectGet("broken").SetErr(errors.New("connection refused"))
	_, ok = s.Get(ctx, "broken")
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "lr:")
	ctx := context.Background()

	mock.ExpectDel("lr:stale").SetVal(1)
	s.Delete(ctx, "stale")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSkipsZeroTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "")

	s.Set(context.Background(), "x", []byte("v"), 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}
