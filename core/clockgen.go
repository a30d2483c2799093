package core

// MaxDivisor is the largest programmable clock divisor. The serial clock
// toggles once every divisor+1 host ticks, so the full range covers toggle
// periods of 1 through 8 ticks.
const MaxDivisor = 7

// ClockGen derives the serial clock from the host tick. It owns the output
// level and a tick counter that restarts on every toggle and on Rearm.
type ClockGen struct {
	divisor uint8
	count   uint8
	level   bool
}

// Rearm loads a divisor, zeroes the tick counter and forces the output to
// the idle level. Called at transaction start and on reset.
func (g *ClockGen) Rearm(divisor uint8, idle bool) {
	if divisor > MaxDivisor {
		divisor = MaxDivisor
	}
	g.divisor = divisor
	g.count = 0
	g.level = idle
}

// Advance consumes one host tick. When the counter passes the divisor the
// counter restarts and the output toggles; Advance reports whether this
// tick produced a toggle.
func (g *ClockGen) Advance() bool {
	g.count++
	if g.count <= g.divisor {
		return false
	}
	g.count = 0
	g.level = !g.level
	return true
}

// Level returns the current serial clock output level.
func (g *ClockGen) Level() bool {
	return g.level
}
