package core

// State identifies the transfer state machine position. Idle is both the
// initial and the terminal state of every transaction.
type State uint8

const (
	Idle State = iota
	Start
	Transfer
	End
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Start:
		return "start"
	case Transfer:
		return "transfer"
	case End:
		return "end"
	}
	return "unknown"
}

// Pins is the driven output state of the controller: serial clock, data-out
// and the mask of currently asserted chip-select lines (0 when idle).
type Pins struct {
	SCK    bool
	MOSI   bool
	Select uint8
}

// Exchange describes one completed transaction for a hardware backend:
// the word that was queued for transmission and the snapshot it ran under.
type Exchange struct {
	Word     uint32
	Width    int
	LSBFirst bool
	Polarity bool
	Phase    bool
	Divisor  uint8
	Select   uint8
}

// Exchanger mirrors a transaction onto real hardware and supplies the
// inbound word in place of the pin-sampled accumulator. A failed exchange
// leaves the sampled word standing.
type Exchanger interface {
	Exchange(x Exchange) (uint32, error)
}

// Engine is the transfer state machine together with its clock generator
// and shift registers. It advances exactly one state step per host tick and
// only reads the live registers while in Idle (go bit) and Start (the
// configuration snapshot); a transaction in flight is never retargeted.
type Engine struct {
	state State
	clock ClockGen
	shift Shifter
	exch  Exchanger

	// snapshot taken in Start, fixed for the whole transaction
	polarity   bool
	phase      bool
	divisor    uint8
	selects    uint8
	lsbFirst   bool
	txActive   bool
	rxActive   bool
	autoAssert bool
	width      int
	txWord     uint32
	engaged    bool

	target int
	bits   int

	mosi       bool
	miso       bool
	selectMask uint8
}

// Tick advances the transfer domain by one host tick. setup and ctrl are
// the live register values; out and in are the two transfer FIFOs. Tick
// reports the completion pulse: true exactly on the End tick.
func (e *Engine) Tick(setup SetupWord, ctrl ControlWord, out, in *WordFIFO) bool {
	switch e.state {
	case Idle:
		// Track the configured idle level while no transaction runs.
		e.clock.Rearm(setup.Divisor(), setup.Polarity())
		if ctrl.Go() {
			e.state = Start
		}

	case Start:
		e.polarity = setup.Polarity()
		e.phase = setup.Phase()
		e.divisor = setup.Divisor()
		e.selects = setup.Select()
		e.lsbFirst = ctrl.LSBFirst()
		e.txActive = ctrl.TxEnable()
		e.rxActive = ctrl.RxEnable()
		e.autoAssert = ctrl.AutoAssert()
		e.width = ctrl.Width()

		e.shift.Begin(e.width, e.lsbFirst)
		e.clock.Rearm(e.divisor, e.polarity)
		e.bits = 0
		e.target = e.width
		if e.txActive && e.rxActive {
			// Simultaneous transmit and receive consumes an action on
			// both halves of each clock period, so the bit target covers
			// two edges per bit.
			e.target *= 2
		}
		e.selectMask = 0
		if e.autoAssert {
			e.selectMask = e.selects
		}
		e.txWord = 0
		e.engaged = false

		switch {
		case e.txActive && !out.Empty():
			w, _ := out.Pop()
			e.txWord = w
			e.shift.Load(w)
			e.engaged = true
			e.state = Transfer
		case e.rxActive:
			e.engaged = true
			e.state = Transfer
		default:
			e.state = End
		}

	case Transfer:
		if e.clock.Advance() {
			// The new level after a toggle selects the action. Sampling
			// happens on the high half-period exactly when polarity and
			// phase agree; driving uses the opposite half-period.
			sampleOnHigh := e.polarity == e.phase
			if e.clock.Level() == sampleOnHigh {
				if e.rxActive {
					e.shift.ShiftIn(e.miso)
					e.bits++
				}
			} else {
				if e.txActive {
					e.mosi = e.shift.ShiftOut()
					e.bits++
				}
			}
			if e.bits >= e.target {
				e.state = End
			}
		}

	case End:
		word := e.shift.Word()
		if e.exch != nil && e.engaged {
			if w, err := e.exch.Exchange(Exchange{
				Word:     e.txWord,
				Width:    e.width,
				LSBFirst: e.lsbFirst,
				Polarity: e.polarity,
				Phase:    e.phase,
				Divisor:  e.divisor,
				Select:   e.selects,
			}); err == nil {
				word = w
			}
		}
		if e.rxActive {
			// Overrun avoidance: a full inbound FIFO drops the word
			// rather than stalling the clock or overwriting.
			in.Push(word)
		}
		e.selectMask = 0
		e.clock.Rearm(e.divisor, e.polarity)
		e.state = Idle
		return true
	}
	return false
}

// SetMISO latches the level the attached peripheral drives on data-in.
// The latch is what sampling edges consume on the following ticks.
func (e *Engine) SetMISO(level bool) {
	e.miso = level
}

// SetExchanger attaches a hardware backend for completed transactions.
func (e *Engine) SetExchanger(x Exchanger) {
	e.exch = x
}

// State returns the current state machine position.
func (e *Engine) State() State {
	return e.state
}

// Pins returns the currently driven output pin state.
func (e *Engine) Pins() Pins {
	return Pins{SCK: e.clock.Level(), MOSI: e.mosi, Select: e.selectMask}
}

// MISO returns the latched data-in level.
func (e *Engine) MISO() bool {
	return e.miso
}

// Reset forces the engine to Idle with all outputs at their reset levels.
func (e *Engine) Reset() {
	e.state = Idle
	e.clock.Rearm(0, false)
	e.mosi = false
	e.miso = false
	e.selectMask = 0
	e.bits = 0
	e.target = 0
	e.engaged = false
}
