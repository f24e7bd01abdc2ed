package runtime

import "time"

// nowUnix returns the current wall-clock time in seconds, the unit the
// wire Message.Time field carries (spec §3).
func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
