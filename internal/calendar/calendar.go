// Package calendar answers business-hours questions for an SLA configuration.
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// maxScanDays bounds the search for the next business day when holidays
// swallow every workday.
const maxScanDays = 3660

// Calendar evaluates one SLA configuration's business window. It holds no
// mutable state and is safe for concurrent use.
type Calendar struct {
	cfg domain.SLAConfig
	loc *time.Location
	biz *cal.BusinessCalendar
}

// New validates cfg and builds its calendar. Holidays are skipped like
// excluded weekend days.
func New(cfg domain.SLAConfig, holidays ...*cal.Holiday) (*Calendar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	biz := cal.NewBusinessCalendar()
	biz.SetWorkday(time.Saturday, cfg.IncludeWeekends)
	biz.SetWorkday(time.Sunday, cfg.IncludeWeekends)
	if cfg.BusinessHoursOnly {
		biz.SetWorkHours(cfg.BusinessStart.Offset(), cfg.BusinessEnd.Offset())
	}
	if len(holidays) > 0 {
		biz.AddHoliday(holidays...)
	}

	return &Calendar{cfg: cfg, loc: loc, biz: biz}, nil
}

// Config returns the configuration the calendar was built from.
func (c *Calendar) Config() domain.SLAConfig {
	return c.cfg
}

// Location returns the calendar's local timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsWithinBusinessHours reports whether t falls on an eligible day and inside
// [business start, business end) local time.
func (c *Calendar) IsWithinBusinessHours(t time.Time) bool {
	local := t.In(c.loc)
	if !c.isBusinessDay(local) {
		return false
	}
	open, closing := c.window(local)
	return !local.Before(open) && local.Before(closing)
}

// NextBusinessDayStart returns business start on the first eligible calendar
// day after the day of t.
func (c *Calendar) NextBusinessDayStart(t time.Time) time.Time {
	local := t.In(c.loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc)
	for i := 0; i < maxScanDays && !c.isBusinessDay(next); i++ {
		next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, c.loc)
	}
	return c.cfg.BusinessStart.On(next, c.loc)
}

// AddBusinessHours is AddBusinessDuration for whole hours.
func (c *Calendar) AddBusinessHours(start time.Time, hours int) time.Time {
	return c.AddBusinessDuration(start, time.Duration(hours)*time.Hour)
}

// AddBusinessDuration returns the instant d of business time after start.
//
// Without business-hours-only the result is start+d. Otherwise an
// out-of-hours start first rolls forward to the next business open, so a zero
// duration from an out-of-hours start yields that open. Results always lie
// inside [business start, business end) on an eligible day; a duration that
// ends exactly at close is carried to the next business open.
func (c *Calendar) AddBusinessDuration(start time.Time, d time.Duration) time.Time {
	if !c.cfg.BusinessHoursOnly {
		return start.Add(d)
	}
	if d < 0 {
		d = 0
	}

	cur := c.openAtOrAfter(start)
	remaining := d
	for {
		_, closing := c.window(cur)
		available := closing.Sub(cur)
		if remaining < available {
			return cur.Add(remaining)
		}
		remaining -= available
		cur = c.NextBusinessDayStart(cur)
	}
}

// BusinessHoursBetween sums the business time inside [start, end], in hours.
func (c *Calendar) BusinessHoursBetween(start, end time.Time) float64 {
	if !end.After(start) {
		return 0
	}
	if !c.cfg.BusinessHoursOnly {
		return end.Sub(start).Hours()
	}

	from := start.In(c.loc)
	to := end.In(c.loc)
	var total time.Duration
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.loc)
	for !day.After(to) {
		if c.isBusinessDay(day) {
			open, closing := c.window(day)
			lo := laterOf(open, from)
			hi := earlierOf(closing, to)
			if hi.After(lo) {
				total += hi.Sub(lo)
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, c.loc)
	}
	return total.Hours()
}

func (c *Calendar) openAtOrAfter(t time.Time) time.Time {
	local := t.In(c.loc)
	if c.isBusinessDay(local) {
		open, closing := c.window(local)
		if local.Before(open) {
			return open
		}
		if local.Before(closing) {
			return local
		}
	}
	return c.NextBusinessDayStart(local)
}

func (c *Calendar) window(day time.Time) (time.Time, time.Time) {
	return c.cfg.BusinessStart.On(day, c.loc), c.cfg.BusinessEnd.On(day, c.loc)
}

func (c *Calendar) isBusinessDay(t time.Time) bool {
	return c.biz.IsWorkday(t.In(c.loc))
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
