package domain

// downsample.go — adaptive bucketing for portfolio history chart queries.
// Small histories are returned raw; large ones collapse into fixed-minute
// buckets, keeping the most recent snapshot per bucket.

import "sort"

// rawLimit is the record count below which no downsampling happens.
const rawLimit = 1000

// DefaultTargetPoints is the chart-friendly output size aimed for when
// downsampling kicks in.
const DefaultTargetPoints = 800

// OptimalInterval picks the bucket size in minutes for a history of
// recordCount points aimed at targetPoints. Zero means "return raw".
func OptimalInterval(recordCount, targetPoints int) int {
	if recordCount <= rawLimit {
		return 0
	}
	if targetPoints <= 0 {
		targetPoints = DefaultTargetPoints
	}
	ratio := float64(recordCount) / float64(targetPoints)
	switch {
	case ratio <= 2:
		return 5
	case ratio <= 4:
		return 15
	case ratio <= 8:
		return 30
	case ratio <= 16:
		return 60
	case ratio <= 32:
		return 120
	case ratio <= 64:
		return 240
	default:
		return 1440
	}
}

// DownsampleHistory buckets records by floor(epoch_minutes/interval)·interval
// and keeps the latest point in each bucket. Output is sorted ascending by
// recorded_at. Interval zero returns the input unchanged.
func DownsampleHistory(records []HistoryPoint, intervalMinutes int) []HistoryPoint {
	if len(records) == 0 || intervalMinutes == 0 {
		return records
	}

	buckets := make(map[int64]HistoryPoint)
	for _, r := range records {
		mins := r.RecordedAt.Unix() / 60
		bucket := (mins / int64(intervalMinutes)) * int64(intervalMinutes)
		if prev, ok := buckets[bucket]; !ok || r.RecordedAt.After(prev.RecordedAt) {
			buckets[bucket] = r
		}
	}

	out := make([]HistoryPoint, 0, len(buckets))
	for _, r := range buckets {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}

// AdaptiveDownsample returns the records thinned to roughly targetPoints
// together with the bucket interval used (0 = raw passthrough).
func AdaptiveDownsample(records []HistoryPoint, targetPoints int) ([]HistoryPoint, int) {
	interval := OptimalInterval(len(records), targetPoints)
	if interval == 0 {
		return records, 0
	}
	return DownsampleHistory(records, interval), interval
}
