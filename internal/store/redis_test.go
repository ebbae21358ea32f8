package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pricecache/internal/tier"
)

func TestRedisStore_GetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := &RedisStore{client: client}

	entry := CacheEntry{Quote: json.RawMessage(`{"price":"1.23"}`), InsertedAt: time.Now(), Tier: tier.T1}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectGet("price:ethereum:usdc:weth:1000:exactin").SetVal(string(raw))

	got, found := s.Get(context.Background(), "price:ethereum:usdc:weth:1000:exactin")
	assert.True(t, found)
	assert.Equal(t, tier.T1, got.Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetMissOnNil(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := &RedisStore{client: client}

	mock.ExpectGet("missing").RedisNil()

	_, found := s.Get(context.Background(), "missing")
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SetWritesTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := &RedisStore{client: client}

	entry := CacheEntry{Quote: json.RawMessage(`{"price":"1.23"}`), InsertedAt: time.Now(), Tier: tier.T2}
	mock.ExpectSet("k", mock.MatchAny(), 60*time.Second).SetVal("OK")

	s.Set(context.Background(), "k", entry, 60*time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetErrorIsTreatedAsMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := &RedisStore{client: client}

	mock.ExpectGet("k").SetErr(assert.AnError)

	_, found := s.Get(context.Background(), "k")
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
