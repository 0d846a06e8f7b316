// Package market reports open/closed/weekend state and time-to-transition for
// the calendars the engine trades against. US DST transitions are computed
// arithmetically from the timestamp's calendar year so identical input always
// yields identical output, regardless of host timezone data. That property is
// what makes backtests on arbitrary historical timestamps reproducible.
package market

import "time"

// Calendar identifies a market session calendar.
type Calendar uint8

const (
	CalendarNone Calendar = iota
	// CalendarStock: open Mon-Fri 09:30-16:00 America/New_York.
	CalendarStock
	// CalendarBitcoinFutures: open Sun 18:00 - Fri 17:00 America/New_York,
	// with a daily 17:00-18:00 maintenance closure.
	CalendarBitcoinFutures
)

func (c Calendar) String() string {
	switch c {
	case CalendarStock:
		return "Stock"
	case CalendarBitcoinFutures:
		return "Bitcoin"
	default:
		return "None"
	}
}

const (
	microsPerMinute = int64(60) * 1_000_000
	microsPerHour   = 60 * microsPerMinute
	microsPerDay    = 24 * microsPerHour

	stockOpenMins  = 9*60 + 30
	stockCloseMins = 16 * 60
	futuresMaint   = 17 * 60
	futuresReopen  = 18 * 60
)

// Schedule answers session queries for one calendar at one UTC instant.
type Schedule struct {
	cal    Calendar
	micros int64
}

// At binds a calendar to a UTC microsecond timestamp.
func At(cal Calendar, micros int64) Schedule {
	return Schedule{cal: cal, micros: micros}
}

// secondSundayInMarch returns the day-of-month DST starts for a year.
func secondSundayInMarch(year int) int {
	w := int(time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC).Weekday())
	first := 1
	if w != 0 {
		first = 8 - w
	}
	return first + 7
}

// firstSundayInNovember returns the day-of-month DST ends for a year.
func firstSundayInNovember(year int) int {
	w := int(time.Date(year, time.November, 1, 0, 0, 0, 0, time.UTC).Weekday())
	if w == 0 {
		return 1
	}
	return 8 - w
}

// easternOffsetMicros computes the America/New_York UTC offset for an instant.
// Breakdown uses only UTC arithmetic (the Go analog of gmtime), never the
// host zone database.
func easternOffsetMicros(utcMicros int64) int64 {
	year := time.UnixMicro(utcMicros).UTC().Year()

	// Candidate local time assuming standard offset, then test DST rules
	// against the candidate's local calendar date.
	cand := time.UnixMicro(utcMicros - 5*microsPerHour).UTC()

	inDST := false
	month := int(cand.Month())
	switch {
	case month > 3 && month < 11:
		inDST = true
	case month == 3:
		boundary := secondSundayInMarch(year)
		if cand.Day() > boundary || (cand.Day() == boundary && cand.Hour() >= 2) {
			inDST = true
		}
	case month == 11:
		boundary := firstSundayInNovember(year)
		if cand.Day() < boundary || (cand.Day() == boundary && cand.Hour() < 2) {
			inDST = true
		}
	}

	if inDST {
		return -4 * microsPerHour
	}
	return -5 * microsPerHour
}

// toEastern shifts a UTC timestamp into Eastern local micros.
func toEastern(utcMicros int64) int64 {
	return utcMicros + easternOffsetMicros(utcMicros)
}

// fromEastern converts a local boundary timestamp back to UTC, re-deriving
// the offset once so boundaries near a DST flip land on the right side.
func fromEastern(localMicros int64) int64 {
	utc := localMicros - easternOffsetMicros(localMicros)
	return localMicros - easternOffsetMicros(utc)
}

func localBreakdown(localMicros int64) time.Time {
	return time.UnixMicro(localMicros).UTC()
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// localDayStart truncates a local timestamp to local midnight.
func localDayStart(localMicros int64) int64 {
	t := localBreakdown(localMicros)
	secs := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	return localMicros - secs*1_000_000 - int64(t.Nanosecond()/1000)
}

func localAt(localMicros int64, mins int) int64 {
	return localDayStart(localMicros) + int64(mins)*microsPerMinute
}

func addDays(localMicros int64, days int) int64 {
	return localMicros + int64(days)*microsPerDay
}

// IsOpen reports whether the market is trading at the schedule instant.
func (s Schedule) IsOpen() bool {
	local := toEastern(s.micros)
	t := localBreakdown(local)
	mins := minutesOfDay(t)

	switch s.cal {
	case CalendarStock:
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			return false
		}
		return mins >= stockOpenMins && mins < stockCloseMins
	case CalendarBitcoinFutures:
		switch {
		case t.Weekday() == time.Saturday:
			return false
		case t.Weekday() == time.Sunday && mins < futuresReopen:
			return false
		case t.Weekday() == time.Friday && mins >= futuresMaint:
			return false
		case mins >= futuresMaint && mins < futuresReopen:
			return false
		}
		return true
	default:
		return false
	}
}

// IsClosed is the complement of IsOpen.
func (s Schedule) IsClosed() bool {
	return !s.IsOpen()
}

// IsWeekend reports whether the instant falls in the multi-day weekend closure.
func (s Schedule) IsWeekend() bool {
	if s.cal == CalendarNone {
		return false
	}
	local := toEastern(s.micros)
	t := localBreakdown(local)
	mins := minutesOfDay(t)

	if s.cal == CalendarStock {
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			return true
		}
		return t.Weekday() == time.Friday && mins >= stockCloseMins
	}

	// Bitcoin futures: closed Friday 17:00 through Sunday 18:00.
	switch {
	case t.Weekday() == time.Friday && mins >= futuresMaint:
		return true
	case t.Weekday() == time.Saturday:
		return true
	case t.Weekday() == time.Sunday && mins < futuresReopen:
		return true
	}
	return false
}

// IsWeekendNext reports whether the next scheduled close leads directly into
// a multi-day closure, used to pre-empt ramp-down.
func (s Schedule) IsWeekendNext() bool {
	if s.cal == CalendarNone || !s.IsOpen() {
		return false
	}
	local := toEastern(s.micros)
	t := localBreakdown(local)

	if s.cal == CalendarStock {
		return t.Weekday() == time.Friday
	}

	closeLocal := s.nextFuturesClose(local)
	ct := localBreakdown(closeLocal)
	mins := minutesOfDay(ct)
	switch {
	case ct.Weekday() == time.Friday && mins >= futuresMaint:
		return true
	case ct.Weekday() == time.Saturday:
		return true
	case ct.Weekday() == time.Sunday && mins < futuresReopen:
		return true
	}
	return false
}

// TillOpen returns microseconds until the next open, or 0 while open.
func (s Schedule) TillOpen() int64 {
	if s.cal == CalendarNone || s.IsOpen() {
		return 0
	}
	local := toEastern(s.micros)
	var openLocal int64
	if s.cal == CalendarStock {
		openLocal = s.nextStockOpen(local)
	} else {
		openLocal = s.nextFuturesOpen(local)
	}
	candidate := fromEastern(openLocal)
	if candidate <= s.micros {
		return 0
	}
	return candidate - s.micros
}

// TillClose returns microseconds until the next close, or 0 while closed.
func (s Schedule) TillClose() int64 {
	if s.cal == CalendarNone || !s.IsOpen() {
		return 0
	}
	local := toEastern(s.micros)
	var closeLocal int64
	if s.cal == CalendarStock {
		closeLocal = s.nextStockClose(local)
	} else {
		closeLocal = s.nextFuturesClose(local)
	}
	candidate := fromEastern(closeLocal)
	if candidate <= s.micros {
		return 0
	}
	return candidate - s.micros
}

// SinceOpen returns microseconds since the session opened, or 0 while closed.
func (s Schedule) SinceOpen() int64 {
	if s.cal == CalendarNone || !s.IsOpen() {
		return 0
	}
	local := toEastern(s.micros)
	mins := minutesOfDay(localBreakdown(local))

	var openLocal int64
	if s.cal == CalendarStock {
		openLocal = localAt(local, stockOpenMins)
	} else if mins >= futuresReopen {
		openLocal = localAt(local, futuresReopen)
	} else {
		// Open since yesterday evening.
		openLocal = localAt(addDays(local, -1), futuresReopen)
	}
	candidate := fromEastern(openLocal)
	if candidate >= s.micros {
		return 0
	}
	return s.micros - candidate
}

// SinceClose returns microseconds since the last close, or 0 while open.
func (s Schedule) SinceClose() int64 {
	if s.cal == CalendarNone || s.IsOpen() {
		return 0
	}
	local := toEastern(s.micros)
	t := localBreakdown(local)
	mins := minutesOfDay(t)

	var closeLocal int64
	if s.cal == CalendarStock {
		switch {
		case t.Weekday() == time.Saturday:
			closeLocal = localAt(addDays(local, -1), stockCloseMins)
		case t.Weekday() == time.Sunday:
			closeLocal = localAt(addDays(local, -2), stockCloseMins)
		case mins < stockOpenMins:
			closeLocal = localAt(addDays(local, -1), stockCloseMins)
		default:
			closeLocal = localAt(local, stockCloseMins)
		}
	} else {
		weekend := (t.Weekday() == time.Friday && mins >= futuresMaint) ||
			t.Weekday() == time.Saturday ||
			(t.Weekday() == time.Sunday && mins < futuresReopen)
		switch {
		case weekend:
			day := local
			for localBreakdown(day).Weekday() != time.Friday {
				day = addDays(day, -1)
			}
			closeLocal = localAt(day, futuresMaint)
		case mins >= futuresMaint && mins < futuresReopen:
			closeLocal = localAt(local, futuresMaint)
		case mins < futuresMaint:
			closeLocal = localAt(addDays(local, -1), futuresMaint)
		default:
			closeLocal = localAt(local, futuresMaint)
		}
	}
	candidate := fromEastern(closeLocal)
	if candidate >= s.micros {
		return 0
	}
	return s.micros - candidate
}

func (s Schedule) nextStockOpen(local int64) int64 {
	t := localBreakdown(local)
	mins := minutesOfDay(t)
	if mins < stockOpenMins && t.Weekday() >= time.Monday && t.Weekday() <= time.Friday {
		return localAt(local, stockOpenMins)
	}
	day := addDays(local, 1)
	for wd := localBreakdown(day).Weekday(); wd == time.Saturday || wd == time.Sunday; wd = localBreakdown(day).Weekday() {
		day = addDays(day, 1)
	}
	return localAt(day, stockOpenMins)
}

func (s Schedule) nextStockClose(local int64) int64 {
	t := localBreakdown(local)
	mins := minutesOfDay(t)
	if mins < stockCloseMins && t.Weekday() >= time.Monday && t.Weekday() <= time.Friday {
		return localAt(local, stockCloseMins)
	}
	day := addDays(local, 1)
	for wd := localBreakdown(day).Weekday(); wd == time.Saturday || wd == time.Sunday; wd = localBreakdown(day).Weekday() {
		day = addDays(day, 1)
	}
	return localAt(day, stockCloseMins)
}

func (s Schedule) nextFuturesOpen(local int64) int64 {
	t := localBreakdown(local)
	mins := minutesOfDay(t)

	// Daily maintenance closure reopens the same evening.
	if t.Weekday() >= time.Monday && t.Weekday() <= time.Thursday &&
		mins >= futuresMaint && mins < futuresReopen {
		return localAt(local, futuresReopen)
	}

	// Weekend closure reopens Sunday evening.
	if (t.Weekday() == time.Friday && mins >= futuresMaint) ||
		t.Weekday() == time.Saturday ||
		(t.Weekday() == time.Sunday && mins < futuresReopen) {
		day := local
		for localBreakdown(day).Weekday() != time.Sunday {
			day = addDays(day, 1)
		}
		return localAt(day, futuresReopen)
	}

	return local
}

func (s Schedule) nextFuturesClose(local int64) int64 {
	t := localBreakdown(local)
	mins := minutesOfDay(t)
	if mins < futuresMaint && t.Weekday() >= time.Monday && t.Weekday() <= time.Friday {
		return localAt(local, futuresMaint)
	}
	day := addDays(local, 1)
	for wd := localBreakdown(day).Weekday(); wd == time.Saturday || wd == time.Sunday; wd = localBreakdown(day).Weekday() {
		day = addDays(day, 1)
	}
	return localAt(day, futuresMaint)
}
