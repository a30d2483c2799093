package device

import (
	"errors"

	"spigot/core"
	"spigot/protocol"
)

// Peripheral kind codes accepted by peripheral_attach. The dictionary
// publishes them as the peripheral_kind enumeration.
const (
	PeripheralNull     = 0
	PeripheralEcho     = 1
	PeripheralShiftReg = 2
)

// Trace samples travel packed, 7 bytes each: tick as big endian uint32,
// engine state code, line flags (bit0 clock, bit1 outbound data, bit2
// inbound data, bit3 interrupt), select mask. At most 6 samples fit a
// frame alongside the response header.
const (
	traceSampleLen = 7
	maxTraceChunk  = 6
)

// responder is the slice of the transport the handlers need to queue
// response frames.
type responder interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// Device bundles a controller with the registry and dictionary that
// expose it over the link. Handlers are not internally locked; the
// server serializes dispatch against its tick loop.
type Device struct {
	ctrl *core.Controller
	reg  *Registry
	dict *Dictionary
	cfg  Config
	tr   responder
}

// NewDevice builds a controller from cfg and registers the full command
// set. Registration order fixes the wire ids, with identify_response
// and identify pinned to 0 and 1 so hosts can bootstrap without a
// dictionary.
func NewDevice(cfg Config) (*Device, error) {
	applyDefaults(&cfg)

	periph, err := peripheralByName(cfg.Peripheral, cfg.ShiftLine, cfg.ShiftPreload)
	if err != nil {
		return nil, err
	}

	ctrl, err := core.New(core.Config{
		Depth:      cfg.FifoDepth,
		TraceDepth: cfg.TraceDepth,
		Peripheral: periph,
	})
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	d := &Device{
		ctrl: ctrl,
		reg:  reg,
		dict: NewDictionary(reg),
		cfg:  cfg,
	}

	d.registerCommands()
	d.registerConstants()
	d.dict.Build()

	return d, nil
}

// Controller returns the simulated controller.
func (d *Device) Controller() *core.Controller {
	return d.ctrl
}

// Registry returns the command registry.
func (d *Device) Registry() *Registry {
	return d.reg
}

// Dictionary returns the identify dictionary.
func (d *Device) Dictionary() *Dictionary {
	return d.dict
}

// Attach points response frames at a transport.
func (d *Device) Attach(tr responder) {
	d.tr = tr
}

// Dispatch feeds one decoded command to its handler. It has the
// signature the transport expects.
func (d *Device) Dispatch(cmdID uint16, data *[]byte) error {
	return d.reg.Dispatch(cmdID, data)
}

func (d *Device) registerCommands() {
	d.reg.RegisterResponse("identify_response", "offset=%u data=%*s") // id 0
	d.reg.Register("identify", "offset=%u count=%c", d.handleIdentify) // id 1

	d.reg.Register("get_clock", "", d.handleGetClock)
	d.reg.Register("bus_write", "addr=%c value=%c", d.handleBusWrite)
	d.reg.Register("bus_read", "addr=%c", d.handleBusRead)
	d.reg.Register("tick", "count=%u", d.handleTick)
	d.reg.Register("controller_reset", "", d.handleControllerReset)
	d.reg.Register("status_poll", "", d.handleStatusPoll)
	d.reg.Register("trace_read", "count=%c", d.handleTraceRead)
	d.reg.Register("peripheral_attach", "kind=%c", d.handlePeripheralAttach)

	d.reg.RegisterResponse("clock", "clock=%u")
	d.reg.RegisterResponse("bus_reply", "addr=%c ack=%c err=%c value=%c")
	d.reg.RegisterResponse("tick_done", "clock=%u")
	d.reg.RegisterResponse("status", "clock=%u state=%c flags=%c irq=%c")
	d.reg.RegisterResponse("trace_data", "clock=%u data=%*s")
}

func (d *Device) registerConstants() {
	d.dict.AddConstant("MCU", d.cfg.MCU)
	d.dict.AddConstant("CAPACITY", uint32(d.cfg.FifoDepth))
	d.dict.AddConstant("DIVISOR_MAX", uint32(core.MaxDivisor))
	d.dict.AddConstant("WORD_BITS_MAX", uint32(core.MaxWordBits))
	d.dict.AddConstant("TRACE_DEPTH", uint32(d.cfg.TraceDepth))
	d.dict.AddConstant("TICK_HZ", uint32(d.cfg.TickHz))

	d.dict.AddEnumeration("peripheral_kind", []string{"null", "echo", "shiftreg"})
	d.dict.AddEnumeration("bus_register", []string{"data", "setup", "control", "status"})
}

// respond queues a response frame by name. Responses are registered at
// startup, so a missing one is a programming error.
func (d *Device) respond(name string, args func(output protocol.OutputBuffer)) {
	if d.tr == nil {
		return
	}
	cmd, ok := d.reg.LookupName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	d.tr.SendCommand(cmd.ID, args)
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// handleIdentify returns one chunk of the compressed dictionary.
func (d *Device) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := d.dict.Chunk(offset, uint8(count))
	d.respond("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

// handleGetClock reports the current simulation tick.
func (d *Device) handleGetClock(data *[]byte) error {
	clock := d.ctrl.Ticks()
	d.respond("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

// handleBusWrite performs one register write tick and reports the
// ack/error pulses. The value field echoes the written byte.
func (d *Device) handleBusWrite(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	res := d.ctrl.TickWith(core.Access{
		Addr:  uint8(addr),
		Data:  uint8(value),
		Write: true,
	})

	d.respond("bus_reply", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, boolArg(res.Ack))
		protocol.EncodeVLQUint(output, boolArg(res.Err))
		protocol.EncodeVLQUint(output, value&0xFF)
	})
	return nil
}

// handleBusRead performs one register read tick.
func (d *Device) handleBusRead(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	res := d.ctrl.TickWith(core.Access{Addr: uint8(addr)})

	d.respond("bus_reply", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, boolArg(res.Ack))
		protocol.EncodeVLQUint(output, boolArg(res.Err))
		protocol.EncodeVLQUint(output, uint32(res.Data))
	})
	return nil
}

// handleTick advances the controller by count quiet ticks, capped at
// 65535 per command so a stray argument cannot stall the device.
func (d *Device) handleTick(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > 65535 {
		count = 65535
	}

	for i := uint32(0); i < count; i++ {
		d.ctrl.Tick()
	}

	clock := d.ctrl.Ticks()
	d.respond("tick_done", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

// handleControllerReset restores the controller to power-on state. The
// link sequence state is untouched.
func (d *Device) handleControllerReset(data *[]byte) error {
	d.ctrl.Reset()
	return nil
}

// handleStatusPoll reports the clock, engine state code, status nibble
// and interrupt line without consuming a bus tick.
func (d *Device) handleStatusPoll(data *[]byte) error {
	clock := d.ctrl.Ticks()
	state := uint32(d.ctrl.State())
	flags := uint32(d.ctrl.Status())
	irq := boolArg(d.ctrl.Interrupt())

	d.respond("status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQUint(output, state)
		protocol.EncodeVLQUint(output, flags)
		protocol.EncodeVLQUint(output, irq)
	})
	return nil
}

// handleTraceRead returns the most recent trace samples, oldest first,
// packed 7 bytes per sample.
func (d *Device) handleTraceRead(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > maxTraceChunk {
		count = maxTraceChunk
	}

	samples := d.ctrl.TraceSnapshot()
	if uint32(len(samples)) > count {
		samples = samples[uint32(len(samples))-count:]
	}

	packed := make([]byte, len(samples)*traceSampleLen)
	for i, s := range samples {
		packSample(packed[i*traceSampleLen:], s)
	}

	clock := d.ctrl.Ticks()
	d.respond("trace_data", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQBytes(output, packed)
	})
	return nil
}

// handlePeripheralAttach swaps the peripheral model on the serial lines.
func (d *Device) handlePeripheralAttach(data *[]byte) error {
	kind, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	periph, err := peripheralByKind(kind, d.cfg.ShiftLine, d.cfg.ShiftPreload)
	if err != nil {
		return err
	}
	d.ctrl.AttachPeripheral(periph)
	return nil
}

// packSample lays one trace sample into buf, which must hold
// traceSampleLen bytes.
func packSample(buf []byte, s core.Sample) {
	tick := s.Tick
	buf[0] = uint8(tick >> 24)
	buf[1] = uint8(tick >> 16)
	buf[2] = uint8(tick >> 8)
	buf[3] = uint8(tick)
	buf[4] = uint8(s.State)

	var flags uint8
	if s.SCK {
		flags |= 1 << 0
	}
	if s.MOSI {
		flags |= 1 << 1
	}
	if s.MISO {
		flags |= 1 << 2
	}
	if s.Interrupt {
		flags |= 1 << 3
	}
	buf[5] = flags
	buf[6] = s.Select
}

func peripheralByKind(kind uint32, line, preload uint8) (core.Peripheral, error) {
	switch kind {
	case PeripheralNull:
		return core.Null{}, nil
	case PeripheralEcho:
		return core.Echo{}, nil
	case PeripheralShiftReg:
		return core.NewShiftReg(line, preload), nil
	}
	return nil, errors.New("unknown peripheral kind " + itoa(int(kind)))
}

func peripheralByName(name string, line, preload uint8) (core.Peripheral, error) {
	switch name {
	case "", "null":
		return core.Null{}, nil
	case "echo":
		return core.Echo{}, nil
	case "shiftreg":
		return core.NewShiftReg(line, preload), nil
	}
	return nil, errors.New("unknown peripheral " + name)
}
