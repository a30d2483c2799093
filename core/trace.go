package core

// Sample is one captured tick of observable controller state.
type Sample struct {
	Tick      uint32
	State     State
	SCK       bool
	MOSI      bool
	MISO      bool
	Select    uint8
	Interrupt bool
}

// Trace is a fixed ring of recent samples, one per tick while capture is
// enabled. Old samples fall off the back; Snapshot returns oldest first.
type Trace struct {
	samples []Sample
	next    int
	wrapped bool
}

// NewTrace creates a trace ring holding up to depth samples.
func NewTrace(depth int) *Trace {
	if depth <= 0 {
		depth = 64
	}
	return &Trace{samples: make([]Sample, depth)}
}

// Record appends one sample, evicting the oldest when the ring is full.
func (t *Trace) Record(s Sample) {
	t.samples[t.next] = s
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.wrapped = true
	}
}

// Len returns how many samples are held.
func (t *Trace) Len() int {
	if t.wrapped {
		return len(t.samples)
	}
	return t.next
}

// Depth returns the ring capacity.
func (t *Trace) Depth() int {
	return len(t.samples)
}

// Snapshot copies out the held samples, oldest first.
func (t *Trace) Snapshot() []Sample {
	n := t.Len()
	out := make([]Sample, n)
	if !t.wrapped {
		copy(out, t.samples[:t.next])
		return out
	}
	head := copy(out, t.samples[t.next:])
	copy(out[head:], t.samples[:t.next])
	return out
}

// Reset discards all held samples.
func (t *Trace) Reset() {
	t.next = 0
	t.wrapped = false
}
