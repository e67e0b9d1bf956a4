package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/avcore/internal/config"
	"github.com/zsiec/avcore/internal/metrics"
)

const (
	defaultPrefix = "avcore:containers:"
	defaultTTL    = 10 * time.Minute
)

// putScript stores a snapshot and adds it to the active set atomically.
var putScript = redis.NewScript(`
	local key = KEYS[1]
	local active_key = KEYS[2]
	local data = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local id = ARGV[3]
	redis.call('SET', key, data, 'PX', ttl)
	redis.call('SADD', active_key, id)
	return 1
`)

// listScript returns every live snapshot and drops expired IDs from the
// active set.
var listScript = redis.NewScript(`
	local active_key = KEYS[1]
	local prefix = ARGV[1]
	local active = redis.call('SMEMBERS', active_key)
	local result = {}
	local to_remove = {}

	for i, id in ipairs(active) do
		local snap = redis.call('GET', prefix .. id)
		if snap then
			table.insert(result, snap)
		else
			table.insert(to_remove, id)
		end
	end

	for i, id in ipairs(to_remove) do
		redis.call('SREM', active_key, id)
	end

	return result
`)

// RedisStore implements Store using Redis as backend. Snapshots expire after
// the TTL unless refreshed by another Put.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Entry
	prefix string
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	addr := "localhost:6379"
	if len(cfg.Addresses) > 0 {
		addr = cfg.Addresses[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

// NewRedisStore creates a Redis-backed store. An empty prefix or
// non-positive ttl selects the defaults.
func NewRedisStore(client *redis.Client, logger *logrus.Logger, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{
		client: client,
		logger: logger.WithField("component", "registry"),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) activeKey() string { return r.prefix + "active" }

// Put stores snap, preserving CreatedAt of an existing snapshot.
func (r *RedisStore) Put(ctx context.Context, snap *ContainerSnapshot) (err error) {
	defer func() { metrics.IncrementRegistryOperation("redis", "put", err) }()

	c := snap.Clone()
	existing, err := r.Get(ctx, snap.ID)
	switch {
	case err == nil:
		c.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrNotFound):
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
	default:
		return fmt.Errorf("failed to check existing snapshot: %w", err)
	}
	c.UpdatedAt = time.Now()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := putScript.Run(ctx, r.client,
		[]string{r.key(c.ID), r.activeKey()},
		data, r.ttl.Milliseconds(), c.ID).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"container_id": c.ID,
		"state":        c.State,
		"streams":      len(c.Streams),
	}).Debug("Container snapshot stored")
	return nil
}

// Get retrieves a snapshot by ID
func (r *RedisStore) Get(ctx context.Context, id string) (*ContainerSnapshot, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap ContainerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns all live snapshots
func (r *RedisStore) List(ctx context.Context) (_ []*ContainerSnapshot, err error) {
	defer func() { metrics.IncrementRegistryOperation("redis", "list", err) }()

	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from script")
	}

	snaps := make([]*ContainerSnapshot, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in result")
			continue
		}

		var snap ContainerSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal snapshot")
			continue
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// ListPaginated returns a page of live snapshots using SSCAN over the active
// set.
func (r *RedisStore) ListPaginated(ctx context.Context, cursor uint64, count int64) ([]*ContainerSnapshot, uint64, error) {
	ids, next, err := r.client.SScan(ctx, r.activeKey(), cursor, "*", count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	if len(ids) == 0 {
		return []*ContainerSnapshot{}, next, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get snapshots: %w", err)
	}

	snaps := make([]*ContainerSnapshot, 0, len(cmds))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			expired = append(expired, ids[i])
			continue
		} else if err != nil {
			r.logger.WithError(err).Warnf("Failed to get snapshot %s", ids[i])
			continue
		}

		var snap ContainerSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			r.logger.WithError(err).Warnf("Failed to unmarshal snapshot %s", ids[i])
			continue
		}
		snaps = append(snaps, &snap)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, r.activeKey(), expired...).Err(); err != nil {
			r.logger.WithError(err).Warn("Failed to remove expired snapshots from active set")
		}
	}
	return snaps, next, nil
}

// Delete removes a snapshot
func (r *RedisStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { metrics.IncrementRegistryOperation("redis", "delete", err) }()

	deleted, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if deleted == 0 {
		return notFound(id)
	}

	if err := r.client.SRem(ctx, r.activeKey(), id).Err(); err != nil {
		r.logger.Warnf("Failed to remove container %s from active set: %v", id, err)
	}
	r.logger.WithField("container_id", id).Info("Container snapshot deleted")
	return nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
