package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendays/models"
)

func TestSessionFromHash(t *testing.T) {
	userID := uuid.New()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	s, err := sessionFromHash("tok", map[string]string{
		"user_id":    userID.String(),
		"created_at": created.Format(time.RFC3339Nano),
		"expires_at": expires.Format(time.RFC3339Nano),
		"user_agent": "curl/8.0",
		"ip_address": "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, userID, s.UserID)
	assert.True(t, created.Equal(s.CreatedAt))
	assert.True(t, expires.Equal(s.ExpiresAt))
	assert.Equal(t, "curl/8.0", s.UserAgent)

	_, err = sessionFromHash("tok", map[string]string{"user_id": "nope"})
	assert.ErrorContains(t, err, "malformed user_id")

	_, err = sessionFromHash("tok", map[string]string{"user_id": userID.String(), "created_at": "yesterday"})
	assert.ErrorContains(t, err, "malformed created_at")
}

func TestRedisSessionStoreRejectsExpired(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	store := NewRedisSessionStore(client)
	err := store.Store(context.Background(), models.Session{
		Token:     "tok",
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.ErrorContains(t, err, "already expired")
}

func TestRedisLimiterKey(t *testing.T) {
	l := NewRedisLimiter(nil)
	p := Policy{Name: "login", MaxRequests: 3, Window: time.Minute}
	assert.Equal(t, "ratelimit:login:10.0.0.1", l.prefix+p.Key("10.0.0.1"))
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisLimiter(client)
	ctx := context.Background()
	p := Policy{Name: "contact", MaxRequests: 5, Window: time.Minute}

	var got []bool
	for i := 0; i < 6; i++ {
		limited, err := l.Limited(ctx, "10.0.0.1", p)
		require.NoError(t, err)
		got = append(got, limited)
	}
	assert.Equal(t, []bool{false, false, false, false, false, true}, got)

	// denied calls do not count
	v, err := mr.Get("ratelimit:contact:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:contact:10.0.0.1"))

	limited, err := l.Limited(ctx, "10.0.0.2", p)
	require.NoError(t, err)
	assert.False(t, limited, "other clients are independent")

	limited, err = l.Limited(ctx, "10.0.0.1", Policy{Name: "login", MaxRequests: 3, Window: time.Minute})
	require.NoError(t, err)
	assert.False(t, limited, "policies are independent")

	mr.FastForward(time.Minute + time.Second)
	limited, err = l.Limited(ctx, "10.0.0.1", p)
	require.NoError(t, err)
	assert.False(t, limited, "window resets after expiry")
}

func TestRedisLimiterBackendDown(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.Close()

	_, err := NewRedisLimiter(client).Limited(context.Background(), "10.0.0.1",
		Policy{Name: "contact", MaxRequests: 5, Window: time.Minute})
	assert.ErrorContains(t, err, "redis rate limit")
}

func TestRedisSessionStore(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	now := time.Now().UTC()
	session := models.Session{
		Token:     "tok",
		UserID:    uuid.New(),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		UserAgent: "curl/8.0",
		IPAddress: "203.0.113.9",
	}
	require.NoError(t, store.Store(ctx, session))

	assert.True(t, mr.Exists("session:tok"))
	ttl := mr.TTL("session:tok")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
	assert.Equal(t, session.UserID.String(), mr.HGet("session:tok", "user_id"))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, "curl/8.0", got.UserAgent)
	assert.Equal(t, "203.0.113.9", got.IPAddress)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "tok"))
	assert.False(t, mr.Exists("session:tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// the key expires with the session
	require.NoError(t, store.Store(ctx, session))
	mr.FastForward(time.Hour + time.Second)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionManager(t *testing.T) {
	_, client := newMiniredis(t)
	m := NewSessionManager(NewRedisSessionStore(client), []byte("secret"), time.Hour, false)
	ctx := context.Background()
	userID := uuid.New()

	token, err := m.Create(ctx, userID, nil)
	require.NoError(t, err)

	got, ok, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, got)

	require.NoError(t, m.Destroy(ctx, token))
	_, ok, err = m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}
