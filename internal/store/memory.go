package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
)

// Memory keeps ticks in a mutex-guarded slice. It backs tests and local runs
// without a database; ordering is maintained on insert so queries stay cheap.
type Memory struct {
	mu    sync.Mutex
	ticks []signal.Tick
}

// NewMemory creates an empty in-memory repository, optionally pre-sizing
// storage.
func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{ticks: make([]signal.Tick, 0, capacity)}
}

func (m *Memory) Insert(_ context.Context, tick signal.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, tick)
	// Inserts arrive in timestamp order from the engine, but seeded test
	// fixtures may not, so keep the slice sorted.
	sort.Slice(m.ticks, func(i, j int) bool {
		return m.ticks[i].Timestamp.Before(m.ticks[j].Timestamp)
	})
	return nil
}

func (m *Memory) Latest(_ context.Context) (*signal.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ticks) == 0 {
		return nil, nil
	}
	tick := m.ticks[len(m.ticks)-1]
	return &tick, nil
}

func (m *Memory) SumCounts(_ context.Context) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var up, down int64
	for _, tick := range m.ticks {
		up += tick.UpCount
		down += tick.DownCount
	}
	return up, down, nil
}

func (m *Memory) SumCountsBefore(_ context.Context, cutoff time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var up, down int64
	for _, tick := range m.ticks {
		if tick.Timestamp.Before(cutoff) {
			up += tick.UpCount
			down += tick.DownCount
		}
	}
	return up, down, nil
}

func (m *Memory) Range(_ context.Context, since time.Time) ([]signal.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []signal.Tick{}
	for _, tick := range m.ticks {
		if !tick.Timestamp.Before(since) {
			out = append(out, tick)
		}
	}
	return out, nil
}

// Snapshot returns a copy of every stored tick, oldest first.
func (m *Memory) Snapshot() []signal.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]signal.Tick, len(m.ticks))
	copy(out, m.ticks)
	return out
}
