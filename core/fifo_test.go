package core

import "testing"

func TestWordFIFORoundTrip(t *testing.T) {
	fifo, err := NewWordFIFO(4)
	if err != nil {
		t.Fatalf("NewWordFIFO(4) failed: %v", err)
	}

	if !fifo.Empty() {
		t.Error("New FIFO should be empty")
	}
	if fifo.Full() {
		t.Error("New FIFO should not be full")
	}

	values := []uint32{0xDEADBEEF, 0x3C, 0, 0xFFFFFFFF}
	for i, v := range values {
		if !fifo.Push(v) {
			t.Fatalf("Push %d rejected before capacity reached", i)
		}
	}

	if !fifo.Full() {
		t.Error("FIFO with 4 words should be full")
	}
	if fifo.Len() != 4 {
		t.Errorf("Expected occupancy 4, got %d", fifo.Len())
	}

	for i, want := range values {
		got, ok := fifo.Pop()
		if !ok {
			t.Fatalf("Pop %d rejected with %d words queued", i, 4-i)
		}
		if got != want {
			t.Errorf("Pop %d: expected 0x%08X, got 0x%08X", i, want, got)
		}
	}

	if !fifo.Empty() {
		t.Error("FIFO should be empty after draining")
	}
}

func TestWordFIFORejectsWhenFull(t *testing.T) {
	fifo, _ := NewWordFIFO(4)
	for i := uint32(0); i < 4; i++ {
		fifo.Push(i + 1)
	}

	if fifo.Push(99) {
		t.Error("Push into a full FIFO should be rejected")
	}
	if fifo.Len() != 4 {
		t.Errorf("Rejected push changed occupancy: got %d, want 4", fifo.Len())
	}

	// Contents must be untouched by the rejected push.
	for i := uint32(0); i < 4; i++ {
		got, ok := fifo.Pop()
		if !ok || got != i+1 {
			t.Errorf("Expected word %d after rejected push, got %d (ok=%v)", i+1, got, ok)
		}
	}
}

func TestWordFIFORejectsWhenEmpty(t *testing.T) {
	fifo, _ := NewWordFIFO(4)

	if _, ok := fifo.Pop(); ok {
		t.Error("Pop from an empty FIFO should be rejected")
	}
	if fifo.Len() != 0 {
		t.Errorf("Rejected pop changed occupancy: got %d, want 0", fifo.Len())
	}

	fifo.Push(7)
	fifo.Pop()
	if _, ok := fifo.Pop(); ok {
		t.Error("Pop should be rejected once the FIFO drains")
	}
}

func TestWordFIFOWrapDisambiguation(t *testing.T) {
	// Drive the positions through several wraps so read==write occurs at
	// every slot, both empty and full.
	fifo, _ := NewWordFIFO(4)

	next := uint32(1)
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 4; i++ {
			if !fifo.Push(next + uint32(i)) {
				t.Fatalf("cycle %d: push %d rejected", cycle, i)
			}
		}
		if !fifo.Full() {
			t.Fatalf("cycle %d: FIFO should report full", cycle)
		}
		if fifo.Empty() {
			t.Fatalf("cycle %d: full FIFO must not report empty", cycle)
		}
		for i := 0; i < 4; i++ {
			got, ok := fifo.Pop()
			if !ok || got != next+uint32(i) {
				t.Fatalf("cycle %d: pop %d expected %d, got %d (ok=%v)",
					cycle, i, next+uint32(i), got, ok)
			}
		}
		if !fifo.Empty() {
			t.Fatalf("cycle %d: FIFO should report empty after drain", cycle)
		}
		next += 4
	}
}

func TestWordFIFOInterleaved(t *testing.T) {
	fifo, _ := NewWordFIFO(4)

	fifo.Push(1)
	fifo.Push(2)
	if got, _ := fifo.Pop(); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}
	fifo.Push(3)
	fifo.Push(4)
	fifo.Push(5)
	if !fifo.Full() {
		t.Error("FIFO should be full after interleaved pushes")
	}

	want := []uint32{2, 3, 4, 5}
	for _, w := range want {
		got, ok := fifo.Pop()
		if !ok || got != w {
			t.Errorf("Interleaved order broken: expected %d, got %d (ok=%v)", w, got, ok)
		}
	}
}

func TestWordFIFOPeekAndReset(t *testing.T) {
	fifo, _ := NewWordFIFO(4)

	if _, ok := fifo.Peek(); ok {
		t.Error("Peek on empty FIFO should be rejected")
	}

	fifo.Push(42)
	if got, ok := fifo.Peek(); !ok || got != 42 {
		t.Errorf("Peek expected 42, got %d (ok=%v)", got, ok)
	}
	if fifo.Len() != 1 {
		t.Errorf("Peek must not consume: occupancy %d, want 1", fifo.Len())
	}

	fifo.Push(43)
	fifo.Reset()
	if !fifo.Empty() || fifo.Len() != 0 {
		t.Error("Reset should leave the FIFO empty")
	}
}

func TestWordFIFODepthValidation(t *testing.T) {
	for _, depth := range []int{1, 2, 4, 8, 128} {
		if _, err := NewWordFIFO(depth); err != nil {
			t.Errorf("Depth %d should be accepted, got %v", depth, err)
		}
	}
	for _, depth := range []int{0, -1, 3, 5, 6, 7, 100, 256} {
		if _, err := NewWordFIFO(depth); err == nil {
			t.Errorf("Depth %d should be rejected", depth)
		}
	}
}
