package queue

import (
	"math"
	"time"
)

// maxInstantMs is the "no active lease" resetTimestamp sentinel.
const maxInstantMs = int64(math.MaxInt64)

// satAddMs adds a duration to a ms instant, saturating to the max or min
// representable instant by the sign of d instead of wrapping.
func satAddMs(baseMs int64, d time.Duration) int64 {
	deltaMs := d.Milliseconds()
	sum := baseMs + deltaMs
	if deltaMs >= 0 {
		if sum < baseMs {
			return math.MaxInt64
		}
	} else if sum > baseMs {
		return math.MinInt64
	}
	return sum
}
