package domain

import (
	"fmt"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Normalizer turns device microsecond ticks into wall-clock strings of the
// form "YYYY-MM-DD HH:mm:ss:fff". Sub-millisecond precision is truncated.
type Normalizer struct {
	Location *time.Location
}

// Normalize formats ticks in the process's local time zone.
func Normalize(ticks int64) string {
	return Normalizer{}.Format(ticks)
}

func (n Normalizer) Format(ticks int64) string {
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(ticks / 1000).In(loc)
	return fmt.Sprintf("%s:%03d", t.Format(timeLayout), t.Nanosecond()/int(time.Millisecond))
}
