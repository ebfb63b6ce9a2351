package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
	"github.com/Aithusa712/TwitchStonks/internal/store"
)

func TestHistoryRejectsUnknownRange(t *testing.T) {
	e, _ := newTestEngine(t, store.NewMemory(0))
	if _, err := e.History(context.Background(), "2weeks"); !errors.Is(err, ErrUnknownRange) {
		t.Fatalf("expected ErrUnknownRange, got %v", err)
	}
}

func TestHistoryEmptyWindow(t *testing.T) {
	e, _ := newTestEngine(t, store.NewMemory(0))
	series, err := e.History(context.Background(), "today")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if series == nil || len(series) != 0 {
		t.Fatalf("expected empty non-nil series, got %#v", series)
	}
}

func TestHistoryBaselinePlusBucket(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory(0)

	// One record older than the window, one inside it.
	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-48 * time.Hour), Price: 104, UpCount: 10, DownCount: 2})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-2 * time.Hour), Price: 104.5, UpCount: 1, DownCount: 0})

	e, _ := newTestEngine(t, repo)
	series, err := e.History(ctx, "today")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(series))
	}
	// Baseline: max(0, 100 + 8*0.5) = 104, then +0.5 for the in-window bucket.
	if series[0].Price != 104.5 {
		t.Fatalf("expected bucket price 104.5, got %.2f", series[0].Price)
	}
	if series[0].UpCount != 1 || series[0].DownCount != 0 {
		t.Fatalf("unexpected bucket counts: %+v", series[0])
	}
}

func TestHistoryHourlyBucketsAggregate(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory(0)

	hour := testStart.Add(-3 * time.Hour).Truncate(time.Hour)
	_ = repo.Insert(ctx, signal.Tick{Timestamp: hour.Add(5 * time.Minute), UpCount: 2, DownCount: 0})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: hour.Add(35 * time.Minute), UpCount: 1, DownCount: 0})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: hour.Add(90 * time.Minute), UpCount: 0, DownCount: 4})

	e, _ := newTestEngine(t, repo)
	series, err := e.History(ctx, "today")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 hourly buckets, got %d", len(series))
	}
	if !series[0].Timestamp.Equal(hour) {
		t.Fatalf("first bucket start %v, want %v", series[0].Timestamp, hour)
	}
	if series[0].UpCount != 3 || series[0].DownCount != 0 {
		t.Fatalf("first bucket counts wrong: %+v", series[0])
	}
	if series[0].Price != 101.5 {
		t.Fatalf("first bucket price %.2f, want 101.5", series[0].Price)
	}
	// Second bucket: 101.5 + (0-4)*0.5 = 99.5
	if series[1].Price != 99.5 {
		t.Fatalf("second bucket price %.2f, want 99.5", series[1].Price)
	}
	if !series[0].Timestamp.Before(series[1].Timestamp) {
		t.Fatalf("series not monotonically timestamped")
	}
}

func TestHistoryDailyGranularityForLongRanges(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory(0)

	day := testStart.Add(-10 * 24 * time.Hour).Truncate(24 * time.Hour)
	_ = repo.Insert(ctx, signal.Tick{Timestamp: day.Add(2 * time.Hour), UpCount: 4, DownCount: 0})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: day.Add(20 * time.Hour), UpCount: 2, DownCount: 0})

	e, _ := newTestEngine(t, repo)
	series, err := e.History(ctx, "30days")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected records collapsed into one daily bucket, got %d", len(series))
	}
	if !series[0].Timestamp.Equal(day) {
		t.Fatalf("bucket start %v, want %v", series[0].Timestamp, day)
	}
	if series[0].UpCount != 6 {
		t.Fatalf("bucket up count %d, want 6", series[0].UpCount)
	}
}

func TestHistoryClampsDuringReplay(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory(0)

	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-5 * time.Hour), UpCount: 0, DownCount: 500})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-2 * time.Hour), UpCount: 3, DownCount: 0})

	e, _ := newTestEngine(t, repo)
	series, err := e.History(ctx, "today")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(series))
	}
	if series[0].Price != 0 {
		t.Fatalf("expected first bucket clamped to 0, got %.2f", series[0].Price)
	}
	if series[1].Price != 1.5 {
		t.Fatalf("expected second bucket to climb from the clamp, got %.2f", series[1].Price)
	}
}

func TestHistoryBaselineClampedAtZero(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory(0)

	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-48 * time.Hour), UpCount: 0, DownCount: 1000})
	_ = repo.Insert(ctx, signal.Tick{Timestamp: testStart.Add(-time.Hour), UpCount: 2, DownCount: 0})

	e, _ := newTestEngine(t, repo)
	series, err := e.History(ctx, "today")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(series))
	}
	if series[0].Price != 1.0 {
		t.Fatalf("expected price 1.0 from zero baseline, got %.2f", series[0].Price)
	}
}

func TestRangesSortedByLookback(t *testing.T) {
	got := Ranges()
	want := []string{"today", "3days", "7days", "30days", "3months", "6months", "1year"}
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
