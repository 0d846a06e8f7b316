// Package clock provides the time capability injected into every
// time-dependent component: real time in production, virtual time for
// deterministic replay.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current timestamp in microseconds since the Unix epoch.
type Clock interface {
	NowMicros() int64
}

// Real reads the system clock.
type Real struct{}

func (Real) NowMicros() int64 {
	return time.Now().UTC().UnixMicro()
}

// Virtual is a settable clock owned by a replay driver.
type Virtual struct {
	micros atomic.Int64
}

// NewVirtual starts a virtual clock at the given timestamp.
func NewVirtual(micros int64) *Virtual {
	v := &Virtual{}
	v.micros.Store(micros)
	return v
}

func (v *Virtual) NowMicros() int64 {
	return v.micros.Load()
}

// Set jumps the clock to an absolute timestamp.
func (v *Virtual) Set(micros int64) {
	v.micros.Store(micros)
}

// Advance moves the clock forward.
func (v *Virtual) Advance(d time.Duration) {
	v.micros.Add(d.Microseconds())
}
