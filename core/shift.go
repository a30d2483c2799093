package core

// MaxWordBits is the widest supported transfer word.
const MaxWordBits = 32

// widthMask returns the bit mask covering a transfer width.
func widthMask(width int) uint32 {
	if width >= MaxWordBits {
		return 0xFFFFFFFF
	}
	return (1 << width) - 1
}

// Shifter holds the in-flight outgoing word and the incoming accumulator
// for one transaction. Bits leave and arrive one at a time in the order
// selected at transaction start; vacated positions fill with zero and
// excess incoming bits fall off the far end of the window.
type Shifter struct {
	width    int
	lsbFirst bool
	out      uint32
	acc      uint32
	rxCount  int
}

// Begin resets the shifter for a new transaction. The outgoing register
// starts empty; Load arms it when there is a word to transmit.
func (s *Shifter) Begin(width int, lsbFirst bool) {
	if width <= 0 || width > MaxWordBits {
		width = 8
	}
	s.width = width
	s.lsbFirst = lsbFirst
	s.out = 0
	s.acc = 0
	s.rxCount = 0
}

// Load arms the outgoing register with a word, truncated to the transfer
// width.
func (s *Shifter) Load(word uint32) {
	s.out = word & widthMask(s.width)
}

// ShiftOut emits the next outgoing bit and advances the register by one
// position. An unloaded register emits zeros.
func (s *Shifter) ShiftOut() bool {
	var bit bool
	if s.lsbFirst {
		bit = s.out&1 != 0
		s.out >>= 1
	} else {
		bit = s.out&(1<<(s.width-1)) != 0
		s.out = (s.out << 1) & widthMask(s.width)
	}
	return bit
}

// ShiftIn places one sampled input level into the incoming accumulator at
// the position dictated by the bit order.
func (s *Shifter) ShiftIn(level bool) {
	var b uint32
	if level {
		b = 1
	}
	if s.lsbFirst {
		if s.rxCount < s.width {
			s.acc |= b << s.rxCount
		}
	} else {
		s.acc = (s.acc<<1 | b) & widthMask(s.width)
	}
	s.rxCount++
}

// Word returns the assembled incoming word.
func (s *Shifter) Word() uint32 {
	return s.acc & widthMask(s.width)
}

// Received returns how many input bits have been accumulated.
func (s *Shifter) Received() int {
	return s.rxCount
}
