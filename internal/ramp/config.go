// Package ramp constructs order pairs and adjusts their economics around
// market schedule boundaries: pausing, widening spreads, and discounting
// sale targets as sessions open and close.
package ramp

import (
	"github.com/ghwfluffy/coinbase-tradebot/internal/market"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
)

// PeriodConfig tunes one market period for one trader. A zero buffer on a
// cold period disables new positions entirely while that period holds.
type PeriodConfig struct {
	// Hot periods attach their buffer after the boundary (session just
	// opened); cold periods attach it before (session about to close).
	Hot bool
	// PausePeriod is the no-new-positions sub-window, in micros.
	PausePeriod int64
	// PauseAcceptLoss is the max sale discount in basis points of the
	// pair's spread, accepted while the pause/ramp window holds.
	PauseAcceptLoss uint32
	// RampPeriod is the spread-scaling sub-window, in micros.
	RampPeriod int64
	// RampGrade is the extra spread in basis points applied at the widest
	// point of the ramp.
	RampGrade uint32
}

// BufferPeriod is the total window the period influences.
func (p PeriodConfig) BufferPeriod() int64 {
	return p.PausePeriod + p.RampPeriod
}

// MarketTimeConfig binds a calendar to its per-period tuning.
type MarketTimeConfig struct {
	Calendar market.Calendar

	Open         PeriodConfig
	Closing      PeriodConfig
	Closed       PeriodConfig
	Opening      PeriodConfig
	Weekending   PeriodConfig
	Weekend      PeriodConfig
	WeekStarting PeriodConfig
}

// TraderConfig is the shared tuning every trading algorithm carries.
type TraderConfig struct {
	// Name identifies the algorithm in persistence and logs.
	Name string
	// Enabled gates new position creation.
	Enabled bool
	// BetCents is the quote value committed per new pair.
	BetCents model.Cents
	// MaxValue discards new pairs whose sell target exceeds this price.
	MaxValue model.Cents
	// PatiencePeriod is how long the newest pair must age before capacity
	// pressure may cancel or exceed, in micros. Zero means 30 minutes.
	PatiencePeriod int64
	// Markets lists the schedules whose periods modify this trader.
	Markets []MarketTimeConfig
}
