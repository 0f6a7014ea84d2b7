package payments

import (
	"context"
	"errors"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var recordJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisStore keeps each payment as a JSON string under {prefix}payment:{id}
// and the insertion order in a sorted set scored by a counter.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + "payment:" + id }
func (s *RedisStore) indexKey() string     { return s.prefix + "payments:index" }
func (s *RedisStore) seqKey() string       { return s.prefix + "payments:seq" }

func (s *RedisStore) Create(ctx context.Context, p *Payment) error {
	data, err := recordJSON.Marshal(p)
	if err != nil {
		return fmt.Errorf("[store] failed to marshal payment: %w", err)
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{s.key(p.ID), s.seqKey(), s.indexKey()}, data, p.ID).Int()
	if err != nil {
		return fmt.Errorf("[store] failed to create payment: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// createScript writes the record and its index entry atomically.
// KEYS: record, sequence, index. ARGV: record JSON, id.
var createScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX") == false then
	return 0
end
local seq = redis.call("INCR", KEYS[2])
redis.call("ZADD", KEYS[3], seq, ARGV[2])
return 1
`)

func (s *RedisStore) Get(ctx context.Context, id string) (*Payment, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[store] failed to get payment: %w", err)
	}
	return decodePayment(raw)
}

func (s *RedisStore) List(ctx context.Context) ([]*Payment, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("[store] failed to list payments: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("[store] failed to load payments: %w", err)
	}

	out := make([]*Payment, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between ZRANGE and MGET
		}
		p, err := decodePayment([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, p *Payment) error {
	key := s.key(p.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodePayment(raw)
		if err != nil {
			return err
		}
		if current.Version != p.Version {
			return ErrVersionConflict
		}

		next := p.Clone()
		next.Version++
		data, err := recordJSON.Marshal(next)
		if err != nil {
			return fmt.Errorf("[store] failed to marshal payment: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		p.Version++
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return err
	default:
		return fmt.Errorf("[store] failed to update payment: %w", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("[store] failed to delete payment: %w", err)
	}
	return nil
}

func decodePayment(raw []byte) (*Payment, error) {
	var p Payment
	if err := recordJSON.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("[store] failed to unmarshal payment: %w", err)
	}
	return &p, nil
}
