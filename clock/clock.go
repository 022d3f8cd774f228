// Package clock supplies the notion of "now" and "today" used by every
// day-scoped record. Days are calendar dates in a single reference location
// rendered as YYYY-MM-DD, so they compare and store as plain strings.
package clock

import (
	"sync"
	"time"
)

// DateLayout is the on-disk format of every day column.
const DateLayout = "2006-01-02"

// Clock reports the current instant in the server's reference location.
type Clock interface {
	Now() time.Time
}

type system struct {
	loc *time.Location
}

// System returns the wall clock pinned to loc. A nil loc means time.Local.
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return system{loc: loc}
}

func (s system) Now() time.Time { return time.Now().In(s.loc) }

// Fake is a settable Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake { return &Fake{now: now} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Today is the current day in the clock's location.
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// Yesterday is the day before Today, honouring DST transitions.
func Yesterday(c Clock) string {
	return c.Now().AddDate(0, 0, -1).Format(DateLayout)
}

// DateOf projects a stored instant onto the clock's calendar.
func DateOf(c Clock, t time.Time) string {
	return t.In(c.Now().Location()).Format(DateLayout)
}

// Stamp is the instant written to timestamp columns. Timestamps are persisted
// in UTC so that range comparisons behave identically on every dialect.
func Stamp(c Clock) time.Time {
	return c.Now().UTC()
}
