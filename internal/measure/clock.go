package measure

import "time"

var origin = time.Now()

// Nanotime returns monotonic nanoseconds since process start. All sample
// timestamps in this project use this clock so readings from independently
// driven sources compare on one time base.
func Nanotime() int64 {
	return int64(time.Since(origin))
}
