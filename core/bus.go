package core

// Register addresses decoded by the bus adapter.
const (
	RegData    uint8 = 0 // write: queue outbound word; read: drain inbound word
	RegSetup   uint8 = 1 // packed polarity/phase/divisor/select
	RegControl uint8 = 2 // packed transfer control bits
	RegStatus  uint8 = 3 // read-only FIFO status nibble
)

// SetupWord is the packed link setup register: bit 7 clock polarity (idle
// level), bit 6 clock phase, bits 5:3 divisor, bits 2:0 chip-select pattern.
type SetupWord uint8

// Polarity returns the serial clock idle level.
func (w SetupWord) Polarity() bool { return w&0x80 != 0 }

// Phase returns the clock phase bit.
func (w SetupWord) Phase() bool { return w&0x40 != 0 }

// Divisor returns the 3-bit clock divisor.
func (w SetupWord) Divisor() uint8 { return uint8(w>>3) & 0x07 }

// Select returns the 3-bit chip-select pattern.
func (w SetupWord) Select() uint8 { return uint8(w) & 0x07 }

// Mode returns the conventional SPI mode number (0-3).
// Mode 0: idle low, sample on rising edge. Mode 1: idle low, sample on
// falling edge. Mode 2: idle high, sample on falling edge. Mode 3: idle
// high, sample on rising edge.
func (w SetupWord) Mode() uint8 {
	m := uint8(0)
	if w.Polarity() {
		m |= 2
	}
	if w.Phase() {
		m |= 1
	}
	return m
}

// MakeSetup packs a setup word from its fields.
func MakeSetup(polarity, phase bool, divisor, sel uint8) SetupWord {
	w := SetupWord(divisor&0x07)<<3 | SetupWord(sel&0x07)
	if polarity {
		w |= 0x80
	}
	if phase {
		w |= 0x40
	}
	return w
}

// ControlWord is the packed control register.
type ControlWord uint8

// Control register bits.
const (
	CtrlAutoAssert ControlWord = 1 << 7 // drive the select pattern during transactions
	CtrlIntEnable  ControlWord = 1 << 6 // gate for the interrupt output
	CtrlLSBFirst   ControlWord = 1 << 5 // least-significant bit first
	CtrlTxEnable   ControlWord = 1 << 4
	CtrlRxEnable   ControlWord = 1 << 3
	CtrlGo         ControlWord = 1 << 2 // start a transaction; self-clearing
	CtrlWidth16    ControlWord = 0x01   // word length selector values
	CtrlWidth32    ControlWord = 0x02
)

func (w ControlWord) AutoAssert() bool { return w&CtrlAutoAssert != 0 }
func (w ControlWord) IntEnable() bool  { return w&CtrlIntEnable != 0 }
func (w ControlWord) LSBFirst() bool   { return w&CtrlLSBFirst != 0 }
func (w ControlWord) TxEnable() bool   { return w&CtrlTxEnable != 0 }
func (w ControlWord) RxEnable() bool   { return w&CtrlRxEnable != 0 }
func (w ControlWord) Go() bool         { return w&CtrlGo != 0 }

// Width returns the transfer width in bits. The reserved selector value
// falls back to 8.
func (w ControlWord) Width() int {
	switch w & 0x03 {
	case CtrlWidth16:
		return 16
	case CtrlWidth32:
		return 32
	default:
		return 8
	}
}

// Status register bits. Status is always derived live from FIFO occupancy.
const (
	StatusOutFull  uint8 = 1 << 3
	StatusOutEmpty uint8 = 1 << 2
	StatusInFull   uint8 = 1 << 1
	StatusInEmpty  uint8 = 1 << 0
)

// Access is one host bus request: an address, a direction and, for writes,
// a data byte. Each access occupies the bus phase of exactly one tick.
type Access struct {
	Addr  uint8
	Data  uint8
	Write bool
}

// Result reports how the bus adapter answered an access within its tick.
// Exactly one of Ack and Err is set; Data carries the value for reads.
type Result struct {
	Ack  bool
	Err  bool
	Data uint8
}
