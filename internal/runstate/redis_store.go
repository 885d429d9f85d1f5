// Package runstate coordinates sync runs: a per-repository run lock and a
// ledger of requests that have already been notified.
package runstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fipsync/internal/util"

	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another run holds the repository lock.
var ErrRunInProgress = errors.New("sync already running for repository")

// Release gives up a run lock.
type Release func(ctx context.Context) error

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps run state in Redis so separate processes share it.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "fipsync:",
	}
}

func (s *RedisStore) lockKey(repo string) string {
	return s.prefix + "lock:" + repo
}

func (s *RedisStore) notifiedKey(repo string, number int) string {
	return s.prefix + "notified:" + repo + ":" + strconv.Itoa(number)
}

// AcquireRunLock takes the run lock for repo. The lock expires after ttl so a
// crashed run cannot hold it forever.
func (s *RedisStore) AcquireRunLock(ctx context.Context, repo string, ttl time.Duration) (Release, error) {
	token := util.NewID("run")
	ok, err := s.client.SetNX(ctx, s.lockKey(repo), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, repo)
	}

	key := s.lockKey(repo)
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		return nil
	}, nil
}

// MarkNotified records that the request was notified. first is false when it
// already had been.
func (s *RedisStore) MarkNotified(ctx context.Context, repo string, number int) (first bool, err error) {
	first, err = s.client.SetNX(ctx, s.notifiedKey(repo, number), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	return first, nil
}

// ClearNotified forgets a notification so it is retried on the next run.
func (s *RedisStore) ClearNotified(ctx context.Context, repo string, number int) error {
	if err := s.client.Del(ctx, s.notifiedKey(repo, number)).Err(); err != nil {
		return fmt.Errorf("clear notified: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
