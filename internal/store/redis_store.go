package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func key(transactionID string) string {
	return "tx:" + transactionID
}

func (r *RedisStore) Begin(ctx context.Context, transactionID string, action protocol.Action, target string) error {
	k := key(transactionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"action", string(action),
			"target", target,
			"status", StatusPending,
			"updated_at", time.Now().UnixMilli(),
		)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	return err
}

func (r *RedisStore) Settle(ctx context.Context, transactionID string, status protocol.Status, message protocol.Message) error {
	k := key(transactionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"status", string(status),
			"message", string(message),
			"updated_at", time.Now().UnixMilli(),
		)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, transactionID string) (Record, error) {
	fields, err := r.client.HGetAll(ctx, key(transactionID)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	rec := Record{
		TransactionID: transactionID,
		Action:        protocol.Action(fields["action"]),
		Target:        fields["target"],
		Status:        fields["status"],
		Message:       protocol.Message(fields["message"]),
	}
	if ms := fields["updated_at"]; ms != "" {
		v, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse updated_at failed: %w", err)
		}
		rec.UpdatedAt = time.UnixMilli(v)
	}
	return rec, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
