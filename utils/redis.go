package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"opendays/models"
)

// OpenRedisPool initializes a Redis connection pool
func OpenRedisPool(dsn string) (*redis.Client, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 100
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func sessionKey(token string) string { return "session:" + token }

// RedisSessionStore keeps each session in a hash that expires with the session.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Store(ctx context.Context, session models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	key := sessionKey(session.Token)
	fields := map[string]any{
		"user_id":    session.UserID.String(),
		"created_at": session.CreatedAt.Format(time.RFC3339Nano),
		"expires_at": session.ExpiresAt.Format(time.RFC3339Nano),
		"user_agent": session.UserAgent,
		"ip_address": session.IPAddress,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := s.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}
	return sessionFromHash(token, data)
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func sessionFromHash(token string, data map[string]string) (*models.Session, error) {
	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("session has malformed user_id: %w", err)
	}
	session := &models.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: data["user_agent"],
		IPAddress: data["ip_address"],
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, data["created_at"]); err != nil {
		return nil, fmt.Errorf("session has malformed created_at: %w", err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339Nano, data["expires_at"]); err != nil {
		return nil, fmt.Errorf("session has malformed expires_at: %w", err)
	}
	return session, nil
}

// checkAndRecordScript mirrors MemoryLimiter.CheckAndRecord: the first call
// opens a window, calls at the limit are refused without counting.
var checkAndRecordScript = redis.NewScript(`
local count = redis.call("GET", KEYS[1])
if not count then
	redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
	return 0
end
if tonumber(count) >= tonumber(ARGV[1]) then
	return 1
end
redis.call("INCR", KEYS[1])
return 0
`)

// RedisLimiter shares rate windows between server instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Limited(ctx context.Context, client string, p Policy) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	keys := []string{l.prefix + p.Key(client)}
	res, err := checkAndRecordScript.Run(ctx, l.client, keys, p.MaxRequests, p.Window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return res == 1, nil
}
