package protocol

import "testing"

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 {
		t.Errorf("After popping 2, expected 3 available, got %d", buf.Available())
	}
	if data := buf.Data(); len(data) != 3 || data[0] != 3 {
		t.Errorf("After popping 2, expected front byte 3, got %v", data)
	}

	// Popping past the end drains without panicking.
	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("Expected position 3, got %d", scratch.CurPosition())
	}

	scratch.Output([]byte{4, 5})
	if scratch.CurPosition() != 5 {
		t.Errorf("Expected position 5, got %d", scratch.CurPosition())
	}

	// Patch the length slot the way the framer does.
	scratch.Update(0, 99)
	if result := scratch.Result(); result[0] != 99 {
		t.Errorf("Expected patched first byte 99, got %d", result[0])
	}

	since := scratch.DataSince(2)
	if len(since) != 3 || since[0] != 3 {
		t.Errorf("DataSince(2): expected [3 4 5], got %v", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestRingBuffer(t *testing.T) {
	ring := NewRingBuffer(10)

	if !ring.IsEmpty() {
		t.Error("New ring should be empty")
	}

	written := ring.Write([]byte{1, 2, 3, 4, 5})
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}
	if ring.Available() != 5 {
		t.Errorf("Expected 5 available, got %d", ring.Available())
	}

	readBuf := make([]byte, 3)
	if n := ring.Read(readBuf); n != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", n)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read data mismatch: got %v", readBuf)
	}

	ring.Pop(1)
	if ring.Available() != 1 {
		t.Errorf("After popping 1, expected 1 available, got %d", ring.Available())
	}

	// One slot stays reserved, so capacity 10 holds 9 bytes.
	ring.Reset()
	big := make([]byte, 12)
	for i := range big {
		big[i] = byte(i)
	}
	if written := ring.Write(big); written != 9 {
		t.Errorf("Expected to write 9 bytes into a size-10 ring, wrote %d", written)
	}
	if ring.Free() != 0 {
		t.Errorf("Expected no free space, got %d", ring.Free())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	ring := NewRingBuffer(5)

	ring.Write([]byte{1, 2, 3, 4})
	ring.Read(make([]byte, 2))

	if written := ring.Write([]byte{5, 6}); written != 2 {
		t.Errorf("Expected to write 2 bytes, wrote %d", written)
	}

	// Data must come back contiguous and in order across the wrap.
	data := ring.Data()
	if len(data) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(data))
	}
	for i, want := range []byte{3, 4, 5, 6} {
		if data[i] != want {
			t.Errorf("Wrapped data[%d]: expected %d, got %d", i, want, data[i])
		}
	}
}
