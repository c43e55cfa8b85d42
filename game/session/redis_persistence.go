package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wricardo/qlink/game/engine"
)

// DefaultRedisPrefix namespaces saved games in a shared Redis.
const DefaultRedisPrefix = "qlink:save:"

// RedisPersistence implements SessionPersistence on Redis string keys
type RedisPersistence struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisPersistence stores records under prefix+id. The client is not closed
// by the persistence layer.
func NewRedisPersistence(client redis.UniversalClient, prefix string) *RedisPersistence {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPersistence{client: client, prefix: prefix, timeout: 5 * time.Second}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (rp *RedisPersistence) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rp.timeout)
}

// Save writes a record, replacing any previous one
func (rp *RedisPersistence) Save(id string, rec *engine.Record) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}
	ctx, cancel := rp.ctx()
	defer cancel()
	if err := rp.client.Set(ctx, rp.prefix+id, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return nil
}

// Load reads a record
func (rp *RedisPersistence) Load(id string) (*engine.Record, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	ctx, cancel := rp.ctx()
	defer cancel()
	data, err := rp.client.Get(ctx, rp.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return decode(id, data)
}

// Delete removes a record
func (rp *RedisPersistence) Delete(id string) error {
	ctx, cancel := rp.ctx()
	defer cancel()
	n, err := rp.client.Del(ctx, rp.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// ListAll scans the prefix and returns the ids found, sorted
func (rp *RedisPersistence) ListAll() ([]string, error) {
	ctx, cancel := rp.ctx()
	defer cancel()

	ids := []string{}
	iter := rp.client.Scan(ctx, 0, rp.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), rp.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists checks if a record exists
func (rp *RedisPersistence) Exists(id string) bool {
	ctx, cancel := rp.ctx()
	defer cancel()
	n, err := rp.client.Exists(ctx, rp.prefix+id).Result()
	return err == nil && n > 0
}
