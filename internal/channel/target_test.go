package channel

import (
	"testing"
	"time"
)

func TestTargetAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  time.Time
		d    time.Duration
		want Target
	}{
		{
			name: "plain two minute lookahead",
			now:  time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
			d:    2 * time.Minute,
			want: Target{Hour: 14, Minute: 32},
		},
		{
			name: "minute carry into next hour",
			now:  time.Date(2025, 3, 10, 14, 59, 0, 0, time.UTC),
			d:    2 * time.Minute,
			want: Target{Hour: 15, Minute: 1},
		},
		{
			name: "midnight wrap lands on next day 00:01",
			now:  time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC),
			d:    2 * time.Minute,
			want: Target{Hour: 0, Minute: 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetAfter(tt.now, tt.d); got != tt.want {
				t.Fatalf("TargetAfter(%v, %v) = %v, want %v", tt.now, tt.d, got, tt.want)
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 10, 10, 0, 30, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		target Target
		want   time.Time
	}{
		{
			name:   "future same day",
			now:    base,
			target: Target{Hour: 18, Minute: 15},
			want:   time.Date(2025, 3, 10, 18, 15, 0, 0, time.UTC),
		},
		{
			name:   "inside current minute resolves to now",
			now:    base,
			target: Target{Hour: 10, Minute: 0},
			want:   base,
		},
		{
			name:   "already past rolls to tomorrow",
			now:    base,
			target: Target{Hour: 9, Minute: 0},
			want:   time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:   "before midnight to just after",
			now:    time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC),
			target: Target{Hour: 0, Minute: 1},
			want:   time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := NextOccurrence(tt.now, tt.target); !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence(%v, %v) = %v, want %v", tt.now, tt.target, got, tt.want)
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	t.Parallel()
	if got := (Target{Hour: 9, Minute: 5}).String(); got != "09:05" {
		t.Fatalf("Target.String() = %q, want 09:05", got)
	}
}
