// Package store persists price ticks and answers the aggregate queries the
// engine needs for startup recovery and history bucketing.
package store

import (
	"context"
	"time"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
)

// TickRepository is the persistence contract the engine depends on. Records
// are append-only: nothing in this interface mutates or deletes a tick.
type TickRepository interface {
	// Insert appends one tick record.
	Insert(ctx context.Context, tick signal.Tick) error
	// Latest returns the most recent tick by timestamp, or nil when the
	// store is empty.
	Latest(ctx context.Context) (*signal.Tick, error)
	// SumCounts totals the up and down counts across every record.
	SumCounts(ctx context.Context) (up, down int64, err error)
	// Range returns all ticks with timestamp >= since, ascending.
	Range(ctx context.Context, since time.Time) ([]signal.Tick, error)
	// SumCountsBefore totals counts from records strictly older than the
	// cutoff, used for the history baseline.
	SumCountsBefore(ctx context.Context, cutoff time.Time) (up, down int64, err error)
}
