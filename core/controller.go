package core

// Config selects the construction-time options of a Controller. The zero
// value gives the hardware defaults: FIFO depth 4, no peripheral attached,
// trace capture disabled.
type Config struct {
	Depth      int        // transfer FIFO depth, power of two (0 = DefaultDepth)
	Peripheral Peripheral // device on the serial link (nil = data-in low)
	TraceDepth int        // per-tick capture ring size (0 = disabled)
}

// Controller is the register-mapped serial controller. One call to Tick or
// TickWith is one host clock cycle; within it the bus phase (register
// access) runs first, then the transfer phase (state machine), then the
// peripheral drives data-in for the following ticks.
//
// The two FIFOs are shared between the phases without locking: the bus
// phase only pushes outbound and pops inbound, the transfer phase only
// pops outbound and pushes inbound, and the phases run strictly in
// sequence inside a tick.
type Controller struct {
	setup SetupWord
	ctrl  ControlWord

	engine Engine
	out    *WordFIFO
	in     *WordFIFO
	periph Peripheral

	irq   bool
	latch uint8
	ticks uint32
	trace *Trace
}

// New creates a controller in its reset state.
func New(cfg Config) (*Controller, error) {
	depth := cfg.Depth
	if depth == 0 {
		depth = DefaultDepth
	}
	out, err := NewWordFIFO(depth)
	if err != nil {
		return nil, err
	}
	in, err := NewWordFIFO(depth)
	if err != nil {
		return nil, err
	}
	c := &Controller{out: out, in: in, periph: cfg.Peripheral}
	if cfg.TraceDepth > 0 {
		c.trace = NewTrace(cfg.TraceDepth)
	}
	c.engine.Reset()
	return c, nil
}

// Tick advances the controller one host cycle with no bus activity.
func (c *Controller) Tick() {
	c.step()
}

// TickWith performs one bus access in the bus phase of a single host cycle
// and then advances the transfer domain. The result is valid within the
// same cycle, as an acknowledge or error pulse.
func (c *Controller) TickWith(acc Access) Result {
	res := c.busAccess(acc)
	c.step()
	return res
}

// WriteReg is a one-cycle register write.
func (c *Controller) WriteReg(addr, value uint8) Result {
	return c.TickWith(Access{Addr: addr, Data: value, Write: true})
}

// ReadReg is a one-cycle register read.
func (c *Controller) ReadReg(addr uint8) Result {
	return c.TickWith(Access{Addr: addr})
}

// busAccess decodes one host access against the register file. Every ACKed
// access also clears the completion interrupt flag; error pulses leave it
// alone.
func (c *Controller) busAccess(acc Access) Result {
	if acc.Addr > RegStatus || (acc.Addr == RegStatus && acc.Write) {
		return Result{Err: true}
	}
	c.irq = false

	switch acc.Addr {
	case RegData:
		if acc.Write {
			// Full FIFO: the write is accepted on the bus but the word
			// is discarded; the host is expected to poll status first.
			c.out.Push(uint32(acc.Data))
			return Result{Ack: true}
		}
		if w, ok := c.in.Pop(); ok {
			c.latch = uint8(w)
		}
		return Result{Ack: true, Data: c.latch}

	case RegSetup:
		if acc.Write {
			c.setup = SetupWord(acc.Data)
			return Result{Ack: true}
		}
		return Result{Ack: true, Data: uint8(c.setup)}

	case RegControl:
		if acc.Write {
			c.ctrl = ControlWord(acc.Data)
			return Result{Ack: true}
		}
		return Result{Ack: true, Data: uint8(c.ctrl)}

	default: // RegStatus read
		return Result{Ack: true, Data: c.Status()}
	}
}

// step runs the transfer phase, the peripheral and the trace capture.
func (c *Controller) step() {
	if c.engine.Tick(c.setup, c.ctrl, c.out, c.in) {
		c.irq = true
		c.ctrl &^= CtrlGo
	}
	if c.periph != nil {
		c.engine.SetMISO(c.periph.Step(c.engine.Pins()))
	}
	if c.trace != nil {
		p := c.engine.Pins()
		c.trace.Record(Sample{
			Tick:      c.ticks,
			State:     c.engine.State(),
			SCK:       p.SCK,
			MOSI:      p.MOSI,
			MISO:      c.engine.MISO(),
			Select:    p.Select,
			Interrupt: c.Interrupt(),
		})
	}
	c.ticks++
}

// Status derives the live FIFO status nibble.
func (c *Controller) Status() uint8 {
	var s uint8
	if c.out.Full() {
		s |= StatusOutFull
	}
	if c.out.Empty() {
		s |= StatusOutEmpty
	}
	if c.in.Full() {
		s |= StatusInFull
	}
	if c.in.Empty() {
		s |= StatusInEmpty
	}
	return s
}

// Interrupt returns the completion interrupt output: the internal flag
// gated by the interrupt-enable control bit.
func (c *Controller) Interrupt() bool {
	return c.irq && c.ctrl.IntEnable()
}

// Pins returns the currently driven serial link outputs.
func (c *Controller) Pins() Pins {
	return c.engine.Pins()
}

// State returns the transfer state machine position.
func (c *Controller) State() State {
	return c.engine.State()
}

// Ticks returns the number of host cycles since construction or reset.
func (c *Controller) Ticks() uint32 {
	return c.ticks
}

// AttachPeripheral replaces the device on the serial link.
func (c *Controller) AttachPeripheral(p Peripheral) {
	c.periph = p
	c.engine.SetMISO(false)
}

// AttachDriver delegates completed transactions to a hardware backend.
// Pin-level simulation keeps running for observability, but the inbound
// word comes from the physical bus.
func (c *Controller) AttachDriver(d Driver) {
	if d == nil {
		c.engine.SetExchanger(nil)
		return
	}
	c.engine.SetExchanger(driverExchanger{drv: d})
}

// TraceSnapshot returns the captured samples, oldest first, or nil when
// capture is disabled.
func (c *Controller) TraceSnapshot() []Sample {
	if c.trace == nil {
		return nil
	}
	return c.trace.Snapshot()
}

// Reset forces the controller back to its power-on state: registers and
// FIFOs cleared, outputs at idle, interrupt flag down, tick count zero.
func (c *Controller) Reset() {
	c.setup = 0
	c.ctrl = 0
	c.out.Reset()
	c.in.Reset()
	c.irq = false
	c.latch = 0
	c.ticks = 0
	c.engine.Reset()
	if c.trace != nil {
		c.trace.Reset()
	}
}
