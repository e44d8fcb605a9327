package runner

import (
	"testing"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	last := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	nowSecond := time.Date(2025, 7, 16, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		name     string
		last     *time.Time
		interval domain.DeltaInterval
		now      time.Time
		want     time.Time
	}{
		{
			name:     "first run falls back to one interval plus overlap",
			last:     nil,
			interval: domain.Every15Minutes,
			now:      now,
			want:     time.Date(2025, 7, 16, 9, 44, 30, 0, time.UTC),
		},
		{
			name:     "subsequent run overlaps last successful run",
			last:     &last,
			interval: domain.Every15Minutes,
			now:      nowSecond,
			want:     time.Date(2025, 7, 16, 9, 59, 30, 0, time.UTC),
		},
		{
			name:     "first run with short cadence",
			last:     nil,
			interval: domain.Every2Minutes,
			now:      now,
			want:     time.Date(2025, 7, 16, 9, 57, 30, 0, time.UTC),
		},
		{
			name:     "window ignores current time once a last run exists",
			last:     &last,
			interval: domain.Every12Hours,
			now:      nowSecond,
			want:     time.Date(2025, 7, 16, 9, 59, 30, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := windowStart(tt.last, tt.interval.Duration(), tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("windowStart() = %s, want %s", got.Format(time.RFC3339), tt.want.Format(time.RFC3339))
			}
		})
	}
}
