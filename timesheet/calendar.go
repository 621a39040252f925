/*
calendar.go - Holiday calendar and per-weekday hour caps

PURPOSE:
  Answers the two questions every other component asks about a date:
  "is it a holiday?" and "how many hours may be booked on it?".

HOLIDAY RULES (rickar/cal):
  1. Config.FixedHolidays as day-of-month holidays repeated every year
  2. Config.MovableFeastOffsets as Easter offsets (Good Friday and Holy
     Saturday by default)
  3. Config.ManualHolidays as day-of-month holidays bounded to their year

  A year's set is sorted and deduplicated.

CACHE:
  Each HolidayCalendar owns its cache. A year is computed on first request
  and never recomputed or evicted for the lifetime of the instance, so the
  cache only grows. Reads take a shared lock; the fill takes the exclusive
  lock and re-checks before computing.

DAILY CAP:
  DailyCap(date) is the cap-table value for the date's weekday index.
  Holidays do NOT lower the cap: a holiday is "no entry allowed", which is
  a separate validation rule (HolidayEntryNotAllowed).

SEE ALSO:
  - config.go: Holiday rules and cap table
  - validate.go: Uses IsHoliday and DailyCap
  - leave.go: Uses IsBusinessDay to expand leave ranges
*/
package timesheet

import (
	"sort"
	"sync"
	"time"

	cal "github.com/rickar/cal/v2"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

type HolidayCalendar struct {
	cfg   Config
	rules []*cal.Holiday
	biz   *cal.BusinessCalendar

	mu    sync.RWMutex
	years map[int]*yearSet
}

type yearSet struct {
	dates []generic.Date
	index map[generic.Date]struct{}
}

func NewHolidayCalendar(cfg Config) *HolidayCalendar {
	var rules []*cal.Holiday
	for _, md := range cfg.FixedHolidays {
		rules = append(rules, &cal.Holiday{
			Name:  md.String(),
			Month: md.Month,
			Day:   md.Day,
			Func:  calcFixedDay,
		})
	}
	for _, offset := range cfg.MovableFeastOffsets {
		rules = append(rules, &cal.Holiday{Offset: offset, Func: cal.CalcEasterOffset})
	}
	for year, dates := range cfg.ManualHolidays {
		for _, d := range dates {
			if d.Year() != year {
				continue
			}
			rules = append(rules, &cal.Holiday{
				Name:      d.String(),
				Month:     d.Month(),
				Day:       d.Day(),
				StartYear: year,
				EndYear:   year,
				Func:      calcFixedDay,
			})
		}
	}

	days := cfg.DaysPerWeek
	biz := cal.NewBusinessCalendar()
	biz.WorkdayFunc = func(t time.Time) bool {
		return generic.DateOf(t).WeekdayIndex() < days
	}
	biz.AddHoliday(rules...)

	cfg.ManualHolidays = nil
	return &HolidayCalendar{
		cfg:   cfg,
		rules: rules,
		biz:   biz,
		years: make(map[int]*yearSet),
	}
}

// calcFixedDay is cal.CalcDayOfMonth without the roll-over: Feb 29 yields
// no date outside leap years.
func calcFixedDay(h *cal.Holiday, year int) time.Time {
	t := cal.CalcDayOfMonth(h, year)
	if t.Month() != h.Month {
		return time.Time{}
	}
	return t
}

// HolidaysForYear returns the sorted holiday dates of a year.
func (c *HolidayCalendar) HolidaysForYear(year int) []generic.Date {
	set := c.year(year)
	return append([]generic.Date(nil), set.dates...)
}

func (c *HolidayCalendar) IsHoliday(d generic.Date) bool {
	_, ok := c.year(d.Year()).index[d]
	return ok
}

// DailyCap returns the maximum bookable hours for the date's weekday.
// Days outside the configured week (including weekends) have a zero cap.
func (c *HolidayCalendar) DailyCap(d generic.Date) generic.Hours {
	return c.cfg.CapFor(d.WeekdayIndex())
}

// IsWorkday reports whether the date falls inside the configured week.
func (c *HolidayCalendar) IsWorkday(d generic.Date) bool {
	return c.biz.WorkdayFunc(d.Time())
}

// IsBusinessDay reports whether the date is a configured workday and not a holiday.
func (c *HolidayCalendar) IsBusinessDay(d generic.Date) bool {
	// Non-workdays and cached holidays skip the rule walk.
	if !c.IsWorkday(d) || c.IsHoliday(d) {
		return false
	}
	return c.biz.IsWorkday(d.Time())
}

// BusinessDays returns the business days of a period in order.
func (c *HolidayCalendar) BusinessDays(p generic.Period) []generic.Date {
	var days []generic.Date
	for _, d := range p.Days() {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// NextBusinessDay returns the first business day strictly after d.
func (c *HolidayCalendar) NextBusinessDay(d generic.Date) generic.Date {
	next := d.AddDays(1)
	// A full year without a business day is not a valid configuration.
	for i := 0; i < 366 && !c.IsBusinessDay(next); i++ {
		next = next.AddDays(1)
	}
	return next
}

// =============================================================================
// CACHE
// =============================================================================

func (c *HolidayCalendar) year(year int) *yearSet {
	c.mu.RLock()
	set, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.years[year]; ok {
		return set
	}
	set = c.compute(year)
	c.years[year] = set
	return set
}

func (c *HolidayCalendar) compute(year int) *yearSet {
	set := &yearSet{index: make(map[generic.Date]struct{})}
	for _, h := range c.rules {
		actual, _ := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		d := generic.DateOf(actual)
		if d.Year() != year {
			continue
		}
		if _, dup := set.index[d]; dup {
			continue
		}
		set.index[d] = struct{}{}
		set.dates = append(set.dates, d)
	}

	sort.Slice(set.dates, func(i, j int) bool { return set.dates[i].Before(set.dates[j]) })
	return set
}
