package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func utc(y int, m time.Month, d, hh, mm, ss int) int64 {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC).UnixMicro()
}

func TestBitcoinFuturesWeekendBoundaries(t *testing.T) {
	// Friday 2024-01-05 16:59:59 ET: one second before the weekend close.
	s := At(CalendarBitcoinFutures, utc(2024, time.January, 5, 21, 59, 59))
	assert.True(t, s.IsOpen())
	assert.False(t, s.IsWeekend())
	assert.Equal(t, int64(1_000_000), s.TillClose())

	// Friday 17:00:00 ET: closed for the weekend.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 5, 22, 0, 0))
	assert.False(t, s.IsOpen())
	assert.True(t, s.IsWeekend())
	assert.Zero(t, s.TillClose())
	assert.Zero(t, s.SinceClose())

	// Saturday midday: 14h since the Friday close, reopens Sunday evening.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 6, 12, 0, 0))
	assert.True(t, s.IsWeekend())
	assert.Equal(t, int64(14)*3600*1_000_000, s.SinceClose())
	assert.Equal(t, int64(35)*3600*1_000_000, s.TillOpen())

	// Sunday 17:59:59 ET: still closed.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 7, 22, 59, 59))
	assert.False(t, s.IsOpen())
	assert.True(t, s.IsWeekend())
	assert.Equal(t, int64(1_000_000), s.TillOpen())

	// Sunday 18:00:00 ET: the week begins.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 7, 23, 0, 0))
	assert.True(t, s.IsOpen())
	assert.False(t, s.IsWeekend())
	assert.Zero(t, s.SinceOpen())
}

func TestBitcoinFuturesMaintenanceWindow(t *testing.T) {
	// Wednesday 17:30 ET: inside the daily maintenance closure.
	s := At(CalendarBitcoinFutures, utc(2024, time.January, 10, 22, 30, 0))
	assert.False(t, s.IsOpen())
	assert.False(t, s.IsWeekend())
	assert.Equal(t, int64(30)*60*1_000_000, s.TillOpen())
	assert.Equal(t, int64(30)*60*1_000_000, s.SinceClose())

	// Wednesday 12:00 ET mid-session: 18h since the Tuesday reopen, 5h to
	// the maintenance close, which is not a weekend close.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 10, 17, 0, 0))
	assert.True(t, s.IsOpen())
	assert.False(t, s.IsWeekendNext())
	assert.Equal(t, int64(18)*3600*1_000_000, s.SinceOpen())
	assert.Equal(t, int64(5)*3600*1_000_000, s.TillClose())
}

func TestBitcoinFuturesWeekendNext(t *testing.T) {
	// Friday mid-session: the next close leads into the weekend.
	s := At(CalendarBitcoinFutures, utc(2024, time.January, 5, 17, 0, 0))
	assert.True(t, s.IsOpen())
	assert.True(t, s.IsWeekendNext())

	// Thursday mid-session: the next close is only maintenance.
	s = At(CalendarBitcoinFutures, utc(2024, time.January, 4, 17, 0, 0))
	assert.True(t, s.IsOpen())
	assert.False(t, s.IsWeekendNext())
}

func TestStockSessionBoundaries(t *testing.T) {
	// Monday 2024-01-08 09:29:59 ET.
	s := At(CalendarStock, utc(2024, time.January, 8, 14, 29, 59))
	assert.False(t, s.IsOpen())
	assert.Equal(t, int64(1_000_000), s.TillOpen())

	// Monday 09:30:00 ET.
	s = At(CalendarStock, utc(2024, time.January, 8, 14, 30, 0))
	assert.True(t, s.IsOpen())
	assert.Zero(t, s.SinceOpen())
	assert.Equal(t, int64(390)*60*1_000_000, s.TillClose())

	// Monday 16:00:00 ET.
	s = At(CalendarStock, utc(2024, time.January, 8, 21, 0, 0))
	assert.False(t, s.IsOpen())
	assert.Zero(t, s.SinceClose())

	// Saturday.
	s = At(CalendarStock, utc(2024, time.January, 6, 15, 0, 0))
	assert.False(t, s.IsOpen())
	assert.True(t, s.IsWeekend())

	// Friday afternoon: next close starts the weekend.
	s = At(CalendarStock, utc(2024, time.January, 5, 20, 0, 0))
	assert.True(t, s.IsOpen())
	assert.True(t, s.IsWeekendNext())
}

func TestDSTTransition(t *testing.T) {
	// 2024-03-10 01:59 ET is still standard time (UTC-5).
	assert.Equal(t, -5*int64(time.Hour/time.Microsecond),
		easternOffsetMicros(utc(2024, time.March, 10, 6, 59, 0)))
	// 2024-03-10 03:00 EDT (UTC-4).
	assert.Equal(t, -4*int64(time.Hour/time.Microsecond),
		easternOffsetMicros(utc(2024, time.March, 10, 7, 0, 0)))

	// The Monday after the flip opens at 13:30 UTC, not 14:30.
	s := At(CalendarStock, utc(2024, time.March, 11, 13, 29, 59))
	assert.False(t, s.IsOpen())
	assert.Equal(t, int64(1_000_000), s.TillOpen())
	s = At(CalendarStock, utc(2024, time.March, 11, 13, 30, 0))
	assert.True(t, s.IsOpen())

	// November flip back: 2024-11-04 is standard time again.
	s = At(CalendarStock, utc(2024, time.November, 4, 14, 29, 59))
	assert.False(t, s.IsOpen())
	assert.Equal(t, int64(1_000_000), s.TillOpen())
}

func TestNoneCalendar(t *testing.T) {
	s := At(CalendarNone, utc(2024, time.January, 10, 17, 0, 0))
	assert.False(t, s.IsOpen())
	assert.False(t, s.IsWeekend())
	assert.False(t, s.IsWeekendNext())
	assert.Zero(t, s.TillOpen())
	assert.Zero(t, s.TillClose())
	assert.Zero(t, s.SinceOpen())
	assert.Zero(t, s.SinceClose())
}

func TestDeterministicAcrossRepeatedCalls(t *testing.T) {
	at := utc(2024, time.March, 10, 6, 59, 59)
	s := At(CalendarBitcoinFutures, at)
	first := s.TillClose()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, At(CalendarBitcoinFutures, at).TillClose())
	}
}
