package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ele:thread:"

// RedisStore keeps each thread in three keys sharing one expiry: a marker, a message list and a
// run hash.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return rdb, nil
}

func threadKey(threadID string) string   { return redisKeyPrefix + threadID }
func messagesKey(threadID string) string { return redisKeyPrefix + threadID + ":messages" }
func runsKey(threadID string) string     { return redisKeyPrefix + threadID + ":runs" }

func (s *RedisStore) CreateThread(ctx context.Context, threadID string) error {
	return s.rdb.Set(ctx, threadKey(threadID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}

func (s *RedisStore) AppendMessage(ctx context.Context, threadID string, msg Message) error {
	if err := s.exists(ctx, threadID); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(threadID), data)
		pipe.Expire(ctx, messagesKey(threadID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message to thread %s: %w", threadID, err)
	}
	return nil
}

func (s *RedisStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	if err := s.exists(ctx, threadID); err != nil {
		return nil, err
	}

	items, err := s.rdb.LRange(ctx, messagesKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages of thread %s: %w", threadID, err)
	}

	messages := make([]Message, 0, len(items))
	for _, item := range items {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message of thread %s: %w", threadID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) SaveRun(ctx context.Context, run Run) error {
	if err := s.exists(ctx, run.ThreadID); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, runsKey(run.ThreadID), run.ID, data)
		pipe.Expire(ctx, runsKey(run.ThreadID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisStore) Run(ctx context.Context, threadID, runID string) (Run, error) {
	data, err := s.rdb.HGet(ctx, runsKey(threadID), runID).Result()
	if errors.Is(err, redis.Nil) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}

	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}

func (s *RedisStore) exists(ctx context.Context, threadID string) error {
	n, err := s.rdb.Exists(ctx, threadKey(threadID)).Result()
	if err != nil {
		return fmt.Errorf("check thread %s: %w", threadID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
