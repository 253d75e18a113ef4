package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

func mustTime(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func makeHistory(n int, step time.Duration) []domain.HistoryPoint {
	start := mustTime("2026-01-01T00:00:00Z")
	points := make([]domain.HistoryPoint, n)
	for i := range points {
		points[i] = domain.HistoryPoint{
			ID:         int64(i),
			RecordedAt: start.Add(time.Duration(i) * step),
		}
	}
	return points
}

func TestAdaptiveDownsample_SmallHistoryIsRaw(t *testing.T) {
	for _, n := range []int{0, 1, 500, 1000} {
		records := makeHistory(n, time.Minute)
		out, interval := domain.AdaptiveDownsample(records, 800)
		assert.Equal(t, 0, interval, "n=%d", n)
		assert.Len(t, out, n)
	}
}

func TestOptimalInterval_Ladder(t *testing.T) {
	tests := []struct {
		count, target, want int
	}{
		{1000, 800, 0},
		{1001, 800, 5},    // ratio 1.25
		{1600, 800, 5},    // ratio 2.0
		{3200, 800, 15},   // ratio 4.0
		{6400, 800, 30},   // ratio 8.0
		{12800, 800, 60},  // ratio 16
		{25600, 800, 120}, // ratio 32
		{51200, 800, 240}, // ratio 64
		{51201, 800, 1440},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.OptimalInterval(tt.count, tt.target),
			"count=%d target=%d", tt.count, tt.target)
	}
}

func TestDownsampleHistory_KeepsLatestPerBucket(t *testing.T) {
	// Three points in the same 5-minute bucket plus one in the next.
	base := mustTime("2026-01-01T00:00:00Z")
	records := []domain.HistoryPoint{
		{ID: 1, RecordedAt: base},
		{ID: 2, RecordedAt: base.Add(2 * time.Minute)},
		{ID: 3, RecordedAt: base.Add(4 * time.Minute)},
		{ID: 4, RecordedAt: base.Add(6 * time.Minute)},
	}

	out := domain.DownsampleHistory(records, 5)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].ID, "latest point of the first bucket wins")
	assert.Equal(t, int64(4), out[1].ID)
}

func TestDownsampleHistory_Properties(t *testing.T) {
	records := makeHistory(5000, time.Minute)
	out, interval := domain.AdaptiveDownsample(records, 800)

	require.NotZero(t, interval)
	assert.LessOrEqual(t, len(out), len(records))

	for i, r := range out {
		// Bucket boundaries are multiples of the interval.
		mins := r.RecordedAt.Unix() / 60
		_ = mins // points themselves need not align; their buckets do
		if i > 0 {
			assert.True(t, out[i-1].RecordedAt.Before(r.RecordedAt), "ascending order")
		}
	}

	// Each surviving point is the max recorded_at of its bucket.
	bucketOf := func(ts time.Time) int64 {
		return (ts.Unix() / 60) / int64(interval)
	}
	latest := make(map[int64]time.Time)
	for _, r := range records {
		b := bucketOf(r.RecordedAt)
		if r.RecordedAt.After(latest[b]) {
			latest[b] = r.RecordedAt
		}
	}
	for _, r := range out {
		assert.Equal(t, latest[bucketOf(r.RecordedAt)], r.RecordedAt)
	}
}
