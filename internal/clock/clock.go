package clock

import "time"

// Clock supplies the current time so storage code can be tested against a
// controlled timeline.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed returns the same instant on every call; the generation tests advance
// it manually.
type Fixed struct {
	Instant time.Time
}

func (f *Fixed) Now() time.Time { return f.Instant }

func (f *Fixed) Advance(d time.Duration) { f.Instant = f.Instant.Add(d) }
