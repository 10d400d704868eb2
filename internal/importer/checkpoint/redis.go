package checkpoint

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const (
	redisKeyPrefix  = "flowlens:import-index:"
	maxWatchRetries = 10
)

// RedisStore keeps one hash per entity type, keyed by data source id.
type RedisStore struct {
	db redis.UniversalClient
}

func NewRedisStore(options *redis.UniversalOptions) *RedisStore {
	return NewRedisStoreFromClient(redis.NewUniversalClient(options))
}

func NewRedisStoreFromClient(db redis.UniversalClient) *RedisStore {
	return &RedisStore{db: db}
}

func redisKey(entityTypeId string) string {
	return redisKeyPrefix + entityTypeId
}

func (s *RedisStore) Get(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error) {
	return getFrom(ctx, s.db, entityTypeId, dataSourceId)
}

func getFrom(ctx *flowlenscontext.Context, c redis.Cmdable, entityTypeId string, dataSourceId string) (*model.IndexState, error) {
	data, err := c.HGet(ctx, redisKey(entityTypeId), dataSourceId).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error retrieving checkpoint %s from redis", model.IndexKey(entityTypeId, dataSourceId))
	}
	return decode(data)
}

// Put compares and sets each state under WATCH so that a concurrent writer cannot move a checkpoint backwards.
func (s *RedisStore) Put(ctx *flowlenscontext.Context, states ...model.IndexState) error {
	for _, state := range states {
		if err := s.put(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) put(ctx *flowlenscontext.Context, state model.IndexState) error {
	key := redisKey(state.EntityTypeId)
	txf := func(tx *redis.Tx) error {
		stored, err := getFrom(ctx, tx, state.EntityTypeId, state.DataSourceId)
		if err != nil {
			return err
		}
		if !advances(ctx, stored, state) {
			return nil
		}
		data, err := encode(state)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, state.DataSourceId, data)
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := s.db.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "error storing checkpoint %s in redis", state.Key())
		}
		return nil
	}
	return errors.Errorf("checkpoint %s was modified concurrently %d times", state.Key(), maxWatchRetries)
}

func (s *RedisStore) Delete(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) error {
	if err := s.db.HDel(ctx, redisKey(entityTypeId), dataSourceId).Err(); err != nil {
		return errors.Wrap(err, "error deleting checkpoint from redis")
	}
	return nil
}

func (s *RedisStore) List(ctx *flowlenscontext.Context) ([]model.IndexState, error) {
	var states []model.IndexState
	iter := s.db.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		result, err := s.db.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "error retrieving checkpoints of %s", strings.TrimPrefix(key, redisKeyPrefix))
		}
		for _, v := range result {
			state, err := decode([]byte(v))
			if err != nil {
				return nil, err
			}
			states = append(states, *state)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("error scanning %s keys", redisKeyPrefix))
	}
	return states, nil
}

func (s *RedisStore) Close() error {
	return s.db.Close()
}
