package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, nil, "test-cookie-secret", time.Hour), mr
}

func TestCreateAndResolve(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	sid, err := s.Create(ctx, "sub-123", "127.0.0.1", "go-test")
	require.NoError(t, err)
	require.NotEmpty(t, sid)

	uid, err := s.UserID(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "sub-123", uid)

	ttl := mr.TTL("sess:" + sid)
	assert.Equal(t, time.Hour, ttl)
}

func TestDestroy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sid, err := s.Create(ctx, "sub-123", "", "")
	require.NoError(t, err)
	require.NoError(t, s.Destroy(ctx, sid))

	_, err = s.UserID(ctx, sid)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUnknownSession(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.UserID(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignVerifyRoundtrip(t *testing.T) {
	s, _ := newTestStore(t)

	cookie := s.Sign("abc123")
	sid, ok := s.Verify(cookie)
	require.True(t, ok)
	assert.Equal(t, "abc123", sid)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s, _ := newTestStore(t)

	cookie := s.Sign("abc123")

	_, ok := s.Verify("zzz999" + cookie[6:])
	assert.False(t, ok, "swapped sid must not verify")

	_, ok = s.Verify("abc123.0000000000000000000000000000000000000000000000000000000000000000")
	assert.False(t, ok, "forged signature must not verify")

	_, ok = s.Verify("no-separator")
	assert.False(t, ok)

	_, ok = s.Verify("")
	assert.False(t, ok)
}

func TestVerifyOtherSecret(t *testing.T) {
	s, _ := newTestStore(t)
	mr := miniredis.RunT(t)
	other := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil, "different-secret", time.Hour)

	_, ok := other.Verify(s.Sign("abc123"))
	assert.False(t, ok)
}
