package queue

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// randFloat returns a uniform random float64 in [min, max). Randomness is
// cryptographically sourced so consumer fleets started in lockstep draw
// independent wait jitter and desynchronize their polling.
func randFloat(min, max float64) (float64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("queue: read random bytes: %w", err)
	}
	// 53 uniform bits, the full precision of a float64 mantissa.
	u := binary.BigEndian.Uint64(buf[:]) >> 11
	f := float64(u) / float64(1<<53)
	return min + f*(max-min), nil
}
