// Package progresscache is the optional live-progress sink. It writes a
// per-job Redis hash that the standalone cmd/tracker sidecar polls; the
// dispatcher never reads it back.
package progresscache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "transcodefleet:job:"

// Cache is the capability the Dispatcher's hooks use to publish progress.
// A write failure is logged and otherwise ignored; the client never depends
// on the cache or its reader being present.
type Cache interface {
	SetSegmentCounts(ctx context.Context, jobID string, completed, total int)
	SetWorkerStat(ctx context.Context, jobID, worker string, dispatched, failures int64, quarantined bool)
	Close() error
}

type noop struct{}

func (noop) SetSegmentCounts(context.Context, string, int, int)                   {}
func (noop) SetWorkerStat(context.Context, string, string, int64, int64, bool) {}
func (noop) Close() error                                                         { return nil }

// NoopCache is the zero-configuration Cache.
var NoopCache Cache = noop{}

type redisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// New builds a Cache backed by Redis when addr is non-empty, or the no-op
// Cache otherwise.
func New(addr string, logger *slog.Logger) Cache {
	if addr == "" {
		return NoopCache
	}
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

func (c *redisCache) SetSegmentCounts(ctx context.Context, jobID string, completed, total int) {
	key := keyPrefix + jobID
	err := c.client.HSet(ctx, key,
		"completed", strconv.Itoa(completed),
		"total", strconv.Itoa(total),
	).Err()
	c.logIfErr(err, "write segment counts")
}

func (c *redisCache) SetWorkerStat(ctx context.Context, jobID, worker string, dispatched, failures int64, quarantined bool) {
	key := fmt.Sprintf("%s%s:worker:%s", keyPrefix, jobID, worker)
	err := c.client.HSet(ctx, key,
		"dispatched", dispatched,
		"failures", failures,
		"quarantined", quarantined,
	).Err()
	c.logIfErr(err, "write worker stat")
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) logIfErr(err error, what string) {
	if err != nil && c.logger != nil {
		c.logger.Warn("progresscache write failed", "what", what, "error", err)
	}
}
