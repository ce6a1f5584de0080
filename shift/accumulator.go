package shift

import (
	"time"

	"shifttrack/model"
)

// ActiveSeconds is the number of whole seconds of [from, to) that count as active for s:
// both ends are clamped into the shift window of the day containing from, and nothing
// before the session's login counts. It does not modify s.
func (p *Policy) ActiveSeconds(s *model.Session, from, to time.Time) int64 {
	if s == nil || from.IsZero() || to.IsZero() || !to.After(from) {
		return 0
	}

	start, end := p.Window(from)
	fromClamped := clampInto(from, start, end)
	toClamped := clampInto(to, start, end)

	if !s.LoginTime.IsZero() && fromClamped.Before(s.LoginTime) {
		fromClamped = s.LoginTime
	}
	if !toClamped.After(fromClamped) {
		return 0
	}
	return int64(toClamped.Sub(fromClamped) / time.Second)
}

// AddActiveSeconds adds ActiveSeconds to s.TotalDuration and returns the delta.
// This is the only place accounted time is ever added.
func (p *Policy) AddActiveSeconds(s *model.Session, from, to time.Time) int64 {
	if s == nil {
		return 0
	}
	if s.TotalDuration < 0 {
		s.TotalDuration = 0
	}
	delta := p.ActiveSeconds(s, from, to)
	if delta <= 0 {
		return 0
	}
	s.TotalDuration += delta
	return delta
}
