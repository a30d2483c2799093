package core

import "testing"

func TestClockGenTogglePeriod(t *testing.T) {
	// The serial clock must toggle exactly once every divisor+1 host ticks.
	for div := uint8(0); div <= MaxDivisor; div++ {
		var g ClockGen
		g.Rearm(div, false)

		period := int(div) + 1
		for toggle := 0; toggle < 6; toggle++ {
			for i := 0; i < period-1; i++ {
				if g.Advance() {
					t.Fatalf("divisor %d: toggled %d ticks early", div, period-1-i)
				}
			}
			if !g.Advance() {
				t.Fatalf("divisor %d: no toggle after %d ticks", div, period)
			}
			wantLevel := toggle%2 == 0
			if g.Level() != wantLevel {
				t.Fatalf("divisor %d toggle %d: level %v, want %v",
					div, toggle, g.Level(), wantLevel)
			}
		}
	}
}

func TestClockGenDivisorZeroTogglesEveryTick(t *testing.T) {
	var g ClockGen
	g.Rearm(0, true)

	level := true
	for i := 0; i < 10; i++ {
		if !g.Advance() {
			t.Fatalf("Tick %d: divisor 0 must toggle every tick", i)
		}
		level = !level
		if g.Level() != level {
			t.Fatalf("Tick %d: level %v, want %v", i, g.Level(), level)
		}
	}
}

func TestClockGenRearm(t *testing.T) {
	var g ClockGen
	g.Rearm(3, false)

	// Advance partway into a period, then rearm: the counter must restart
	// and the level must snap to the requested idle polarity.
	g.Advance()
	g.Advance()
	g.Rearm(1, true)

	if !g.Level() {
		t.Error("Rearm should force the idle level high")
	}
	if g.Advance() {
		t.Error("Toggle one tick after rearm with divisor 1; counter did not restart")
	}
	if !g.Advance() {
		t.Error("Expected toggle two ticks after rearm with divisor 1")
	}
	if g.Level() {
		t.Error("First toggle after rearm should leave the level low")
	}
}

func TestClockGenDivisorClamp(t *testing.T) {
	var g ClockGen
	g.Rearm(200, false)

	// Out-of-range divisors clamp to the maximum (toggle every 8 ticks).
	for i := 0; i < MaxDivisor; i++ {
		if g.Advance() {
			t.Fatalf("Clamped divisor toggled after %d ticks", i+1)
		}
	}
	if !g.Advance() {
		t.Errorf("Clamped divisor should toggle after %d ticks", MaxDivisor+1)
	}
}
