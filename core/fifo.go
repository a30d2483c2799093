package core

import "errors"

// DefaultDepth is the reset-default capacity of the two transfer FIFOs.
const DefaultDepth = 4

// ErrFifoDepth is returned when a FIFO is created with a depth that is not
// a power of two in 1..128.
var ErrFifoDepth = errors.New("fifo depth must be a power of two (1..128)")

// WordFIFO is a fixed-capacity queue of transfer words with hardware-style
// flow control: a push to a full queue and a pop from an empty queue are
// rejected without touching the contents. Read and write positions advance
// modulo twice the capacity so that full and empty are distinguishable when
// both positions land on the same slot (the extra bit acts as a wrap flag).
type WordFIFO struct {
	words   []uint32
	posMask uint8 // 2*capacity - 1
	idxMask uint8 // capacity - 1
	rpos    uint8
	wpos    uint8
}

// NewWordFIFO creates a FIFO with the given capacity. The capacity must be
// a power of two no larger than 128 so the wrap-flag position arithmetic
// stays unambiguous.
func NewWordFIFO(capacity int) (*WordFIFO, error) {
	if capacity <= 0 || capacity > 128 || capacity&(capacity-1) != 0 {
		return nil, ErrFifoDepth
	}
	return &WordFIFO{
		words:   make([]uint32, capacity),
		posMask: uint8(2*capacity - 1),
		idxMask: uint8(capacity - 1),
	}, nil
}

// Push appends a word. It returns false, leaving the queue unchanged, when
// the queue is full.
func (f *WordFIFO) Push(w uint32) bool {
	if f.Full() {
		return false
	}
	f.words[f.wpos&f.idxMask] = w
	f.wpos = (f.wpos + 1) & f.posMask
	return true
}

// Pop removes and returns the oldest word. It returns false, leaving the
// queue unchanged, when the queue is empty.
func (f *WordFIFO) Pop() (uint32, bool) {
	if f.Empty() {
		return 0, false
	}
	w := f.words[f.rpos&f.idxMask]
	f.rpos = (f.rpos + 1) & f.posMask
	return w, true
}

// Peek returns the oldest word without removing it.
func (f *WordFIFO) Peek() (uint32, bool) {
	if f.Empty() {
		return 0, false
	}
	return f.words[f.rpos&f.idxMask], true
}

// Empty reports whether no words are queued.
func (f *WordFIFO) Empty() bool {
	return f.rpos == f.wpos
}

// Full reports whether the queue is at capacity.
func (f *WordFIFO) Full() bool {
	return (f.wpos-f.rpos)&f.posMask == f.idxMask+1
}

// Len returns the current occupancy.
func (f *WordFIFO) Len() int {
	return int((f.wpos - f.rpos) & f.posMask)
}

// Cap returns the capacity.
func (f *WordFIFO) Cap() int {
	return len(f.words)
}

// Reset discards all queued words.
func (f *WordFIFO) Reset() {
	f.rpos = 0
	f.wpos = 0
}
