package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
)

// ErrUnknownRange rejects history queries with a range token outside the
// supported set.
var ErrUnknownRange = errors.New("unknown history range")

var rangeDurations = map[string]time.Duration{
	"today":   24 * time.Hour,
	"3days":   3 * 24 * time.Hour,
	"7days":   7 * 24 * time.Hour,
	"30days":  30 * 24 * time.Hour,
	"3months": 90 * 24 * time.Hour,
	"6months": 180 * 24 * time.Hour,
	"1year":   365 * 24 * time.Hour,
}

// Lookbacks up to this long bucket hourly; anything longer buckets daily.
const hourlyMaxLookback = 7 * 24 * time.Hour

type bucketCounts struct {
	up   int64
	down int64
}

// History reconstructs the price curve over the named range by bucketing
// persisted ticks into fixed UTC windows. Activity older than the window is
// collapsed into a baseline price; each bucket then applies its net delta to
// the running price, clamped at zero, so every row is derivable purely from
// the baseline and the deltas preceding it.
func (e *Engine) History(ctx context.Context, rangeToken string) ([]signal.Tick, error) {
	lookback, ok := rangeDurations[rangeToken]
	if !ok {
		return nil, ErrUnknownRange
	}
	start := e.now().Add(-lookback)

	baseUp, baseDown, err := e.repo.SumCountsBefore(ctx, start)
	if err != nil {
		return nil, err
	}
	price := clamp(e.cfg.InitialPrice + float64(baseUp-baseDown)*e.cfg.UnitStep)

	ticks, err := e.repo.Range(ctx, start)
	if err != nil {
		return nil, err
	}

	granularity := 24 * time.Hour
	if lookback <= hourlyMaxLookback {
		granularity = time.Hour
	}

	buckets := make(map[time.Time]*bucketCounts)
	for _, tick := range ticks {
		key := tick.Timestamp.UTC().Truncate(granularity)
		counts, ok := buckets[key]
		if !ok {
			counts = &bucketCounts{}
			buckets[key] = counts
		}
		counts.up += tick.UpCount
		counts.down += tick.DownCount
	}

	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	series := make([]signal.Tick, 0, len(keys))
	for _, key := range keys {
		counts := buckets[key]
		price = clamp(price + float64(counts.up-counts.down)*e.cfg.UnitStep)
		series = append(series, signal.Tick{
			Timestamp: key,
			Price:     price,
			UpCount:   counts.up,
			DownCount: counts.down,
		})
	}
	return series, nil
}

// Ranges lists the accepted history range tokens, sorted by lookback.
func Ranges() []string {
	tokens := make([]string, 0, len(rangeDurations))
	for token := range rangeDurations {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return rangeDurations[tokens[i]] < rangeDurations[tokens[j]]
	})
	return tokens
}
