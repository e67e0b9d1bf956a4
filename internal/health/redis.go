package health

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/avcore/internal/registry"
)

// RedisChecker checks Redis connectivity. Only PING decides the result;
// the server version from INFO is reported when the server answers it.
type RedisChecker struct {
	client  redis.UniversalClient
	name    string
	logger  *logrus.Entry
	version atomic.Value
}

// NewRedisChecker creates a new Redis health checker. logger may be nil.
func NewRedisChecker(client redis.UniversalClient, logger *logrus.Logger) *RedisChecker {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &RedisChecker{
		client: client,
		name:   "redis",
		logger: logger.WithField("checker", "redis"),
	}
}

// Name returns the name of the checker.
func (r *RedisChecker) Name() string {
	return r.name
}

// Check pings Redis, then reads the server section of INFO for Details.
func (r *RedisChecker) Check(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	info, err := r.client.Info(ctx, "server").Result()
	if err != nil {
		r.logger.WithError(err).Debug("Redis INFO unavailable, skipping version")
		r.version.Store("")
		return nil
	}
	r.version.Store(parseRedisVersion(info))
	return nil
}

// Details implements Detailer.
func (r *RedisChecker) Details() map[string]interface{} {
	v, _ := r.version.Load().(string)
	if v == "" {
		return nil
	}
	return map[string]interface{}{"redis_version": v}
}

func parseRedisVersion(info string) string {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "redis_version:"); ok {
			return v
		}
	}
	return ""
}

// RegistryChecker checks that the container registry answers List. A
// failing registry leaves transcoding usable, so it reports degraded.
type RegistryChecker struct {
	store registry.Store
	count atomic.Int64
}

// NewRegistryChecker creates a checker for store.
func NewRegistryChecker(store registry.Store) *RegistryChecker {
	return &RegistryChecker{store: store}
}

// Name returns the name of the checker.
func (r *RegistryChecker) Name() string {
	return "registry"
}

// Check lists the registry.
func (r *RegistryChecker) Check(ctx context.Context) error {
	snaps, err := r.store.List(ctx)
	if err != nil {
		return Degraded(fmt.Errorf("registry list failed: %w", err))
	}
	r.count.Store(int64(len(snaps)))
	return nil
}

// Details implements Detailer.
func (r *RegistryChecker) Details() map[string]interface{} {
	return map[string]interface{}{"containers": r.count.Load()}
}
