package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each thread's checkpoints in a Redis list, newest at
// the head, so several server processes can share conversation state.
type RedisStore struct {
	client *redis.Client
	keep   int
	prefix string
}

// redisRecord is the list element: metadata in clear, state compressed.
type redisRecord struct {
	Checkpoint
	StateGz []byte `json:"state_gz"`
}

// OpenRedis connects to the server named by a redis:// URL and verifies
// it answers.
func OpenRedis(ctx context.Context, url string, keep int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, keep), nil
}

// NewRedisStore wraps an existing client. keep bounds the list length
// per thread; zero keeps everything.
func NewRedisStore(client *redis.Client, keep int) *RedisStore {
	return &RedisStore{client: client, keep: keep, prefix: "shopkeep:checkpoints:"}
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

// Put pushes state onto the thread's list and trims it.
func (s *RedisStore) Put(ctx context.Context, node Node, state *State) (*Checkpoint, error) {
	cp, blob, err := newCheckpoint(node, state)
	if err != nil {
		return nil, err
	}

	rec := redisRecord{Checkpoint: *cp, StateGz: blob}
	rec.State = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	key := s.key(cp.ThreadID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		if s.keep > 0 {
			pipe.LTrim(ctx, key, 0, int64(s.keep-1))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("push checkpoint: %w", err)
	}
	return cp, nil
}

// Latest returns the head of the thread's list with its state.
func (s *RedisStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	data, err := s.client.LIndex(ctx, s.key(threadID), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	cp := rec.Checkpoint
	cp.State = &State{}
	if err := decompress(rec.StateGz, cp.State); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", cp.ID, err)
	}
	return &cp, nil
}

// List returns up to limit checkpoints, newest first, without state.
func (s *RedisStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}
	items, err := s.client.LRange(ctx, s.key(threadID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	checkpoints := make([]*Checkpoint, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord([]byte(item))
		if err != nil {
			return nil, err
		}
		cp := rec.Checkpoint
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(data []byte) (*redisRecord, error) {
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode checkpoint record: %w", err)
	}
	return &rec, nil
}
