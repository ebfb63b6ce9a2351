package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
)

const (
	latestTickKey = "stonks:latest_tick"
	latestTickTTL = 24 * time.Hour
)

// Cached wraps a TickRepository with a redis read-aside cache for the most
// recent tick. The latest tick is read on every subscriber registration and
// status snapshot, so keeping it hot avoids a postgres round trip per
// connection. Cache failures degrade to the inner repository silently.
type Cached struct {
	inner TickRepository
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewCached builds the write-through wrapper.
func NewCached(inner TickRepository, rdb *redis.Client, log zerolog.Logger) *Cached {
	return &Cached{inner: inner, rdb: rdb, log: log}
}

func (c *Cached) Insert(ctx context.Context, tick signal.Tick) error {
	if err := c.inner.Insert(ctx, tick); err != nil {
		return err
	}
	payload, err := json.Marshal(tick)
	if err == nil {
		if err := c.rdb.Set(ctx, latestTickKey, payload, latestTickTTL).Err(); err != nil {
			c.log.Warn().Err(err).Msg("failed to cache latest tick")
		}
	}
	return nil
}

func (c *Cached) Latest(ctx context.Context) (*signal.Tick, error) {
	raw, err := c.rdb.Get(ctx, latestTickKey).Bytes()
	if err == nil {
		var tick signal.Tick
		if err := json.Unmarshal(raw, &tick); err == nil {
			return &tick, nil
		}
		c.log.Warn().Msg("discarding malformed cached tick")
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Msg("redis latest tick read failed")
	}

	tick, err := c.inner.Latest(ctx)
	if err != nil || tick == nil {
		return tick, err
	}
	if payload, merr := json.Marshal(tick); merr == nil {
		if serr := c.rdb.Set(ctx, latestTickKey, payload, latestTickTTL).Err(); serr != nil {
			c.log.Warn().Err(serr).Msg("failed to backfill latest tick cache")
		}
	}
	return tick, nil
}

func (c *Cached) SumCounts(ctx context.Context) (int64, int64, error) {
	return c.inner.SumCounts(ctx)
}

func (c *Cached) SumCountsBefore(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	return c.inner.SumCountsBefore(ctx, cutoff)
}

func (c *Cached) Range(ctx context.Context, since time.Time) ([]signal.Tick, error) {
	return c.inner.Range(ctx, since)
}
