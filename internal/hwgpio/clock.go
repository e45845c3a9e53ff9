package hwgpio

import "time"

// Clock implements dht11.Timing on the Go runtime's monotonic clock.
// Timestamps are microseconds since the clock was created.
type Clock struct {
	start time.Time
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

func (c *Clock) Wait(microseconds uint32) {
	time.Sleep(time.Duration(microseconds) * time.Microsecond)
}

func (c *Clock) Now() uint64 {
	return uint64(time.Since(c.start) / time.Microsecond)
}
