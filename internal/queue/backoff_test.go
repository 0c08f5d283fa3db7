package queue

import (
	"testing"
	"time"
)

func TestBackoffDelayDoubles(t *testing.T) {
	b := BackoffConfig{Base: 2 * time.Second, Max: 2 * time.Minute}

	tests := []struct {
		delivered uint64
		want      time.Duration
	}{
		{0, 2 * time.Second}, // clamped to first delivery
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 64 * time.Second},
		{7, 2 * time.Minute}, // capped
		{20, 2 * time.Minute},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.delivered); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.delivered, got, tt.want)
		}
	}
}

func TestBackoffDelayBaseAboveMax(t *testing.T) {
	b := BackoffConfig{Base: 5 * time.Minute, Max: time.Minute}
	if got := b.Delay(1); got != time.Minute {
		t.Errorf("Delay(1) = %s, want the max %s", got, time.Minute)
	}
}
