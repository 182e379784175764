package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Ms converts a millisecond count to a Duration; zero and negative counts
// return def.
func Ms[T ~int | ~int32 | ~uint16 | ~uint32](ms T, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
