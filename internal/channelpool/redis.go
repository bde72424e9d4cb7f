package channelpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LerianStudio/acsd/pkg/mlog"
)

// RedisConnection is a lazily-dialed connection hub: one client per
// Router process, dialed on first GetDB call.
type RedisConnection struct {
	ConnectionStringSource string
	Logger                 mlog.Logger

	client *redis.Client
}

// Connect dials redis and pings it once, the way mredis.RedisConnection
// does, but returns the error instead of panicking on a malformed URL.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(rc.ConnectionStringSource)
	if err != nil {
		return fmt.Errorf("channelpool: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("channelpool: redis ping: %w", err)
	}

	if rc.Logger != nil {
		rc.Logger.Info("channelpool: connected to redis")
	}
	rc.client = client
	return nil
}

// GetDB returns the connection's client, dialing it on first use.
func (rc *RedisConnection) GetDB(ctx context.Context) (*redis.Client, error) {
	if rc.client == nil {
		if err := rc.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return rc.client, nil
}

// redisEntryTTL bounds how long a stale replica's cached entry can
// survive a tenant's worker being restarted before it self-expires,
// independent of an explicit Evict call reaching this replica.
const redisEntryTTL = 5 * time.Minute

// redisCache is the RemoteCache implementation backing cross-replica
// Channel Pool sharing.
type redisCache struct {
	conn *RedisConnection
}

// NewRedisCache wraps conn as a RemoteCache.
func NewRedisCache(conn *RedisConnection) RemoteCache {
	return &redisCache{conn: conn}
}

type redisEntry struct {
	TenantID   string    `json:"tenant_id"`
	Generation uint64    `json:"generation"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	OpenedAt   time.Time `json:"opened_at"`
}

func redisKey(tenantID string) string {
	return "acsd:channelpool:" + tenantID
}

func (c *redisCache) Get(ctx context.Context, tenantID string) (ChannelEntry, bool, error) {
	db, err := c.conn.GetDB(ctx)
	if err != nil {
		return ChannelEntry{}, false, err
	}

	raw, err := db.Get(ctx, redisKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ChannelEntry{}, false, nil
	}
	if err != nil {
		return ChannelEntry{}, false, err
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return ChannelEntry{}, false, fmt.Errorf("channelpool: decode cached entry: %w", err)
	}

	return ChannelEntry{
		TenantID:   e.TenantID,
		Generation: e.Generation,
		Host:       e.Host,
		Port:       e.Port,
		OpenedAt:   e.OpenedAt,
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, entry ChannelEntry) error {
	db, err := c.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(redisEntry{
		TenantID:   entry.TenantID,
		Generation: entry.Generation,
		Host:       entry.Host,
		Port:       entry.Port,
		OpenedAt:   entry.OpenedAt,
	})
	if err != nil {
		return err
	}

	return db.Set(ctx, redisKey(entry.TenantID), raw, redisEntryTTL).Err()
}

func (c *redisCache) Delete(ctx context.Context, tenantID string) error {
	db, err := c.conn.GetDB(ctx)
	if err != nil {
		return err
	}
	return db.Del(ctx, redisKey(tenantID)).Err()
}
