package queue

import (
	"math"
	"testing"
	"time"
)

func TestSatAddMs(t *testing.T) {
	if got := satAddMs(1000, 500*time.Millisecond); got != 1500 {
		t.Fatalf("plain add: got %d", got)
	}
	if got := satAddMs(1000, -2*time.Second); got != -1000 {
		t.Fatalf("negative add: got %d", got)
	}
	if got := satAddMs(math.MaxInt64-1, time.Hour); got != maxInstantMs {
		t.Fatalf("positive overflow should clamp, got %d", got)
	}
	if got := satAddMs(math.MinInt64+1, -time.Hour); got != math.MinInt64 {
		t.Fatalf("negative overflow should clamp, got %d", got)
	}
}
