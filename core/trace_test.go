package core

import "testing"

func TestTraceOrderAndEviction(t *testing.T) {
	tr := NewTrace(4)

	for i := uint32(0); i < 3; i++ {
		tr.Record(Sample{Tick: i})
	}
	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(snap))
	}
	for i, s := range snap {
		if s.Tick != uint32(i) {
			t.Errorf("Sample %d out of order: tick %d", i, s.Tick)
		}
	}

	// Overfill: the oldest samples fall off, order holds.
	for i := uint32(3); i < 10; i++ {
		tr.Record(Sample{Tick: i})
	}
	snap = tr.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Expected ring depth 4, got %d", len(snap))
	}
	for i, s := range snap {
		if want := uint32(6 + i); s.Tick != want {
			t.Errorf("Sample %d: tick %d, want %d", i, s.Tick, want)
		}
	}
}

func TestTraceReset(t *testing.T) {
	tr := NewTrace(2)
	tr.Record(Sample{Tick: 1})
	tr.Record(Sample{Tick: 2})
	tr.Record(Sample{Tick: 3})
	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Reset trace should be empty, got %d samples", tr.Len())
	}
	if snap := tr.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot after reset should be empty, got %d", len(snap))
	}
}

func TestControllerTraceCapturesEveryTick(t *testing.T) {
	c := newController(t, Config{TraceDepth: 16})

	c.WriteReg(RegSetup, uint8(MakeSetup(true, false, 0, 0)))
	for i := 0; i < 5; i++ {
		c.Tick()
	}

	snap := c.TraceSnapshot()
	if len(snap) != 6 {
		t.Fatalf("Expected 6 samples (write tick + 5), got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Tick != snap[i-1].Tick+1 {
			t.Errorf("Capture gap between %d and %d", snap[i-1].Tick, snap[i].Tick)
		}
	}
	// Polarity was high from the second tick on (after the setup write).
	if !snap[len(snap)-1].SCK {
		t.Error("Trace should show the clock idling at the configured level")
	}
}
