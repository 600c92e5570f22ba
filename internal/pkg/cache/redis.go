package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "checkin"
	offsetTTL     = 24 * time.Hour
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Key joins parts under the prefix with ':'.
func Key(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return strings.Join(append([]string{prefix}, parts...), ":")
}

// OffsetCache keeps the trusted clock offset in redis. Entries expire after
// a day so a long-offline instance never restores a stale offset.
type OffsetCache struct {
	client *redis.Client
	key    string
}

var _ timesync.OffsetCache = (*OffsetCache)(nil)

func NewOffsetCache(client *redis.Client, prefix string) *OffsetCache {
	return &OffsetCache{client: client, key: Key(prefix, "clock", "offset")}
}

type offsetEntry struct {
	OffsetNanos int64     `json:"offset_ns"`
	Source      string    `json:"source"`
	SavedAt     time.Time `json:"saved_at"`
}

func (c *OffsetCache) Load(ctx context.Context) (timesync.CachedOffset, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return timesync.CachedOffset{}, false, nil
	}
	if err != nil {
		return timesync.CachedOffset{}, false, fmt.Errorf("failed to load clock offset: %w", err)
	}

	var entry offsetEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return timesync.CachedOffset{}, false, fmt.Errorf("failed to decode clock offset: %w", err)
	}
	return timesync.CachedOffset{
		Offset:  time.Duration(entry.OffsetNanos),
		Source:  entry.Source,
		SavedAt: entry.SavedAt,
	}, true, nil
}

func (c *OffsetCache) Save(ctx context.Context, offset timesync.CachedOffset) error {
	raw, err := json.Marshal(offsetEntry{
		OffsetNanos: int64(offset.Offset),
		Source:      offset.Source,
		SavedAt:     offset.SavedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode clock offset: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, offsetTTL).Err(); err != nil {
		return fmt.Errorf("failed to save clock offset: %w", err)
	}
	return nil
}
