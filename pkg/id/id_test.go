package id

import (
	"strings"
	"testing"
	"time"
)

func withFrozenClock(t *testing.T, ms int64) {
	t.Helper()
	NowMs = func() int64 { return ms }
	t.Cleanup(func() { NowMs = func() int64 { return time.Now().UnixMilli() } })
}

func TestNextIsMonotonic(t *testing.T) {
	withFrozenClock(t, 1000)
	g := NewGenerator()
	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("want a < b, got %s >= %s", a, b)
	}
	if a.String() >= b.String() {
		t.Fatalf("hex form not sortable: %s >= %s", a, b)
	}
}

func TestClockRegressionPinsToLastMs(t *testing.T) {
	now := int64(1000)
	NowMs = func() int64 { return now }
	t.Cleanup(func() { NowMs = func() int64 { return time.Now().UnixMilli() } })

	g := NewGenerator()
	a := g.Next()
	now = 900 // clock went backwards
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("want b > a despite clock regression")
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	back, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back != a {
		t.Fatalf("round trip mismatch: %s != %s", back, a)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("want error for short input")
	}
	if _, err := Parse(strings.Repeat("zx", 16)); err == nil {
		t.Fatalf("want error for bad hex")
	}
}
