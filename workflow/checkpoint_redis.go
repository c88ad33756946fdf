package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ====== Redis store ======

// RedisCheckpointStore keeps each checkpoint under its own key and indexes
// them per run in a sorted set scored by step.
type RedisCheckpointStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCheckpointStore creates a store. ttl of zero keeps checkpoints
// until they are deleted.
func NewRedisCheckpointStore(client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "ragnar"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCheckpointStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	runKey := s.runKey(cp.RunID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.checkpointKey(cp.ID), data, s.ttl)
		pipe.ZAdd(ctx, runKey, redis.Z{Score: float64(cp.Step), Member: cp.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, runKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}

	s.logger.Debug("checkpoint saved to redis",
		zap.String("checkpoint_id", cp.ID),
		zap.String("run_id", cp.RunID),
		zap.Int("step", cp.Step),
	)
	return nil
}

func (s *RedisCheckpointStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.runKey(runID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrCheckpointNotFound, runID)
	}
	return s.load(ctx, ids[0])
}

func (s *RedisCheckpointStore) History(ctx context.Context, runID string) ([]*Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}
	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrCheckpointNotFound) {
				// expired independently of the index
				s.logger.Warn("checkpoint missing from index", zap.String("id", id))
				continue
			}
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisCheckpointStore) Delete(ctx context.Context, runID string) error {
	runKey := s.runKey(runID)
	ids, err := s.client.ZRange(ctx, runKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read run index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.checkpointKey(id))
	}
	keys = append(keys, runKey)
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisCheckpointStore) load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) checkpointKey(id string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, id)
}

func (s *RedisCheckpointStore) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", s.prefix, runID)
}
