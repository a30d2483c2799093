package core

// Peripheral is the passive device on the far end of the serial link. Step
// is called once per host tick, after the transfer domain has driven the
// pins, and returns the level the device puts on the data-in line. The
// controller latches that level and sampling edges consume the latch.
type Peripheral interface {
	Step(p Pins) bool
}

// Null is the unconnected peripheral; data-in reads constantly low.
type Null struct{}

func (Null) Step(Pins) bool { return false }

// Echo wires data-out straight back to data-in, the external equivalent of
// a loopback jumper between the two data pins.
type Echo struct{}

func (Echo) Step(p Pins) bool { return p.MOSI }

// ShiftReg models a small mode-0 slave shift register: while its select
// line is asserted it captures data-out on every rising clock edge and
// continuously drives its most significant bit back on data-in. When the
// select line drops, the captured contents latch into Out.
type ShiftReg struct {
	Line uint8 // select line index the device listens on (0..2)
	Out  uint8 // contents latched at the last deselect

	reg     uint8
	prevSCK bool
	prevSel bool
}

// NewShiftReg returns a register listening on the given select line with
// preloaded contents, which it drives out as the first capture shifts in.
func NewShiftReg(line, preload uint8) *ShiftReg {
	return &ShiftReg{Line: line, Out: preload, reg: preload}
}

func (d *ShiftReg) Step(p Pins) bool {
	selected := p.Select&(1<<d.Line) != 0
	if selected {
		if p.SCK && !d.prevSCK {
			d.reg <<= 1
			if p.MOSI {
				d.reg |= 1
			}
		}
	} else if d.prevSel {
		d.Out = d.reg
	}
	d.prevSCK = p.SCK
	d.prevSel = selected
	return d.reg&0x80 != 0
}
