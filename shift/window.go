// Package shift converts instants into the organization's calendar day and shift window,
// decides late joins, and accounts active seconds inside the window.
package shift

import (
	"log"
	"math"
	"time"

	"shifttrack/config"
)

// Policy is the static shift configuration bound to the organization's time zone.
// All methods are pure and safe for concurrent use.
type Policy struct {
	cfg config.ShiftConfig
	loc *time.Location
}

func NewPolicy(cfg config.ShiftConfig) *Policy {
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			log.Printf("Unknown shift timezone %q, using UTC: %v", cfg.Timezone, err)
			loc = time.UTC
		}
	}
	return &Policy{cfg: cfg, loc: loc}
}

func (p *Policy) Location() *time.Location {
	return p.loc
}

// Local returns t in the organization's zone.
func (p *Policy) Local(t time.Time) time.Time {
	return t.In(p.loc)
}

// StartOfDay is local midnight of the calendar day containing t.
func (p *Policy) StartOfDay(t time.Time) time.Time {
	l := p.Local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, p.loc)
}

// SameDay reports whether a and b fall on the same local calendar day.
func (p *Policy) SameDay(a, b time.Time) bool {
	return p.StartOfDay(a).Equal(p.StartOfDay(b))
}

func (p *Policy) at(t time.Time, c config.Clock) time.Time {
	l := p.Local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), c.Hour, c.Minute, 0, 0, p.loc)
}

// Window returns the shift boundaries of the day containing t.
func (p *Policy) Window(t time.Time) (start, end time.Time) {
	return p.at(t, p.cfg.Start), p.at(t, p.cfg.End)
}

// Clamp pins t into its own day's shift window.
func (p *Policy) Clamp(t time.Time) time.Time {
	start, end := p.Window(t)
	return clampInto(t, start, end)
}

func clampInto(t, start, end time.Time) time.Time {
	if t.Before(start) {
		return start
	}
	if t.After(end) {
		return end
	}
	return t
}

// ShiftLength is the configured window length.
func (p *Policy) ShiftLength() time.Duration {
	return p.cfg.Length()
}

// Lateness is computed once when a session is created. A login is late after the morning
// grace; the minutes are counted from shift start and rounded up.
func (p *Policy) Lateness(login time.Time) (isLate bool, lateByMin int) {
	if !p.MorningLate(login) {
		return false, 0
	}
	start, _ := p.Window(login)
	secs := login.Sub(start).Seconds()
	return true, int(math.Ceil(secs / 60))
}

// MorningLate: after shift start plus grace.
func (p *Policy) MorningLate(login time.Time) bool {
	start, _ := p.Window(login)
	return login.After(start.Add(p.cfg.MorningGrace))
}

// LunchLate: after lunch end plus grace, while still inside the lunch-to-shift-end span.
func (p *Policy) LunchLate(login time.Time) bool {
	return p.breakLate(login, p.cfg.LunchStart, p.cfg.LunchEnd, p.cfg.LunchGrace)
}

// TeaLate: after tea end plus grace, while still inside the tea-to-shift-end span.
func (p *Policy) TeaLate(login time.Time) bool {
	return p.breakLate(login, p.cfg.TeaStart, p.cfg.TeaEnd, p.cfg.TeaGrace)
}

func (p *Policy) breakLate(login time.Time, from, until config.Clock, grace time.Duration) bool {
	spanStart := p.at(login, from)
	_, shiftEnd := p.Window(login)
	if login.Before(spanStart) || login.After(shiftEnd) {
		return false
	}
	return login.After(p.at(login, until).Add(grace))
}

// IsLateJoin evaluates all three rules; any match marks the login late.
func (p *Policy) IsLateJoin(login time.Time) bool {
	if login.IsZero() {
		return false
	}
	morning := p.MorningLate(login)
	lunch := p.LunchLate(login)
	tea := p.TeaLate(login)
	return morning || lunch || tea
}
