package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyTriggerSet is the sorted set of pending keys scored by fire time in ms.
	KeyTriggerSet = "postshare:triggers"
	// KeyTriggerPayloads maps each pending key to its JSON payload.
	KeyTriggerPayloads = "postshare:trigger:payloads"
)

// FireScore converts a fire time into a sorted set score.
func FireScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// ScoreTime converts a sorted set score back into a fire time.
func ScoreTime(score float64) time.Time {
	return time.UnixMilli(int64(score))
}

// Redis keeps deferred requests in a sorted set. Scheduling a key that is
// already pending moves its fire time. Requests survive process restarts.
type Redis struct {
	client       *redis.Client
	pollInterval time.Duration
	batchSize    int64
	retryDelay   time.Duration
	logger       *zap.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RedisOptions struct {
	PollInterval time.Duration
	BatchSize    int
	RetryDelay   time.Duration
}

func NewRedis(client *redis.Client, opts RedisOptions, logger *zap.Logger) *Redis {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Redis{
		client:       client,
		pollInterval: opts.PollInterval,
		batchSize:    int64(opts.BatchSize),
		retryDelay:   opts.RetryDelay,
		logger:       logger,
		now:          time.Now,
	}
}

func (r *Redis) Schedule(ctx context.Context, req Request) error {
	data, err := json.Marshal(req.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, KeyTriggerPayloads, req.Key, data)
		pipe.ZAdd(ctx, KeyTriggerSet, redis.Z{Score: FireScore(req.FireAt), Member: req.Key})
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to schedule %s", req.Key)
	}
	return nil
}

// Start launches the poller. Several processes may poll the same set; each
// due key is dispatched by the one that removes it.
func (r *Redis) Start(ctx context.Context, dispatch DispatchFunc) error {
	if r.cancel != nil {
		return errors.New("redis queue already started")
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			if err := r.Poll(ctx, dispatch); err != nil && ctx.Err() == nil {
				r.logger.Error("Failed to poll share triggers", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	r.logger.Info("Redis queue started", zap.Duration("poll_interval", r.pollInterval))
	return nil
}

// Poll dispatches every key that is due now, up to the batch size.
func (r *Redis) Poll(ctx context.Context, dispatch DispatchFunc) error {
	now := r.now()
	keys, err := r.client.ZRangeByScore(ctx, KeyTriggerSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: r.batchSize,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "failed to list due triggers")
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return nil
		}
		r.deliver(ctx, key, dispatch)
	}
	return nil
}

func (r *Redis) deliver(ctx context.Context, key string, dispatch DispatchFunc) {
	removed, err := r.client.ZRem(ctx, KeyTriggerSet, key).Result()
	if err != nil {
		r.logger.Error("Failed to claim trigger", zap.String("key", key), zap.Error(err))
		return
	}
	if removed == 0 {
		return
	}

	data, err := r.client.HGet(ctx, KeyTriggerPayloads, key).Bytes()
	if err != nil {
		r.logger.Error("Trigger payload missing, dropping", zap.String("key", key), zap.Error(err))
		return
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Error("Malformed trigger payload, dropping", zap.String("key", key), zap.Error(err))
		r.client.HDel(ctx, KeyTriggerPayloads, key)
		return
	}

	if err := dispatch(ctx, payload); err != nil {
		r.logger.Warn("Dispatch failed, will retry",
			zap.String("key", key),
			zap.Duration("retry_in", r.retryDelay),
			zap.Error(err))
		// NX keeps a fire time set by a newer schedule call
		retryAt := r.now().Add(r.retryDelay)
		if err := r.client.ZAddNX(ctx, KeyTriggerSet, redis.Z{Score: FireScore(retryAt), Member: key}).Err(); err != nil {
			r.logger.Error("Failed to requeue trigger", zap.String("key", key), zap.Error(err))
		}
		return
	}

	// Keep the payload if the key was scheduled again meanwhile
	if err := r.client.ZScore(ctx, KeyTriggerSet, key).Err(); errors.Is(err, redis.Nil) {
		r.client.HDel(ctx, KeyTriggerPayloads, key)
	}
}

// Pending returns the number of keys waiting for their fire time.
func (r *Redis) Pending(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, KeyTriggerSet).Result()
}

// Stop ends the poller and waits for the current batch.
func (r *Redis) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.logger.Info("Redis queue stopped")
}
