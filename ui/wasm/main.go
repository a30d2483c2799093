//go:build js && wasm

package main

import (
	"encoding/hex"
	"syscall/js"

	"spigot/core"
	"spigot/protocol"
)

// ctrl is the simulated controller the page drives. create() swaps it
// for a fresh one; every other wrapper works against the current
// instance.
var ctrl *core.Controller

func main() {
	ctrl = mustController(0, 64)

	// Export functions to JavaScript
	js.Global().Set("spigotWasm", js.ValueOf(map[string]interface{}{
		"create":      js.FuncOf(createWrapper),
		"busWrite":    js.FuncOf(busWriteWrapper),
		"busRead":     js.FuncOf(busReadWrapper),
		"tick":        js.FuncOf(tickWrapper),
		"status":      js.FuncOf(statusWrapper),
		"trace":       js.FuncOf(traceWrapper),
		"attach":      js.FuncOf(attachWrapper),
		"exchange":    js.FuncOf(exchangeWrapper),
		"reset":       js.FuncOf(resetWrapper),
		"encodeVLQ":   js.FuncOf(encodeVLQWrapper),
		"crc16":       js.FuncOf(crc16Wrapper),
		"encodeFrame": js.FuncOf(encodeFrameWrapper),
		"version":     protocol.Version,
	}))

	// Keep the program running
	select {}
}

func mustController(depth, traceDepth int) *core.Controller {
	c, err := core.New(core.Config{Depth: depth, TraceDepth: traceDepth})
	if err != nil {
		panic(err)
	}
	return c
}

// createWrapper rebuilds the controller
// Args: fifoDepth (number, power of two, 0 for default), traceDepth (number)
// Returns: "" or error string
func createWrapper(this js.Value, args []js.Value) interface{} {
	depth, traceDepth := 0, 64
	if len(args) > 0 {
		depth = args[0].Int()
	}
	if len(args) > 1 {
		traceDepth = args[1].Int()
	}
	c, err := core.New(core.Config{Depth: depth, TraceDepth: traceDepth})
	if err != nil {
		return js.ValueOf(err.Error())
	}
	ctrl = c
	return js.ValueOf("")
}

// busWriteWrapper performs a one-cycle register write
// Args: addr (number 0-3), value (number 0-255)
// Returns: {ack: bool, err: bool, value: number}
func busWriteWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeAccessResult(core.Result{Err: true})
	}
	res := ctrl.WriteReg(uint8(args[0].Int()), uint8(args[1].Int()))
	return makeAccessResult(res)
}

// busReadWrapper performs a one-cycle register read
// Args: addr (number 0-3)
// Returns: {ack: bool, err: bool, value: number}
func busReadWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeAccessResult(core.Result{Err: true})
	}
	res := ctrl.ReadReg(uint8(args[0].Int()))
	return makeAccessResult(res)
}

// tickWrapper advances the controller without bus activity
// Args: count (number, default 1)
// Returns: clock (number)
func tickWrapper(this js.Value, args []js.Value) interface{} {
	count := 1
	if len(args) > 0 {
		count = args[0].Int()
	}
	for i := 0; i < count; i++ {
		ctrl.Tick()
	}
	return js.ValueOf(int(ctrl.Ticks()))
}

// statusWrapper reports the live controller state
// Returns: {clock, state, stateName, flags, irq, sck, mosi, select}
func statusWrapper(this js.Value, args []js.Value) interface{} {
	pins := ctrl.Pins()
	return js.ValueOf(map[string]interface{}{
		"clock":     int(ctrl.Ticks()),
		"state":     int(ctrl.State()),
		"stateName": ctrl.State().String(),
		"flags":     int(ctrl.Status()),
		"irq":       ctrl.Interrupt(),
		"sck":       pins.SCK,
		"mosi":      pins.MOSI,
		"select":    int(pins.Select),
	})
}

// traceWrapper returns the captured waveform, oldest first
// Returns: [{tick, state, sck, mosi, miso, select, irq}, ...]
func traceWrapper(this js.Value, args []js.Value) interface{} {
	samples := ctrl.TraceSnapshot()
	out := make([]interface{}, len(samples))
	for i, s := range samples {
		out[i] = map[string]interface{}{
			"tick":   int(s.Tick),
			"state":  s.State.String(),
			"sck":    s.SCK,
			"mosi":   s.MOSI,
			"miso":   s.MISO,
			"select": int(s.Select),
			"irq":    s.Interrupt,
		}
	}
	return js.ValueOf(out)
}

// attachWrapper wires a peripheral model to the serial link
// Args: name (string: null, echo, shiftreg), line (number), preload (number)
// Returns: "" or error string
func attachWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("missing peripheral name")
	}
	line, preload := uint8(0), uint8(0)
	if len(args) > 1 {
		line = uint8(args[1].Int())
	}
	if len(args) > 2 {
		preload = uint8(args[2].Int())
	}
	switch args[0].String() {
	case "", "null":
		ctrl.AttachPeripheral(core.Null{})
	case "echo":
		ctrl.AttachPeripheral(core.Echo{})
	case "shiftreg":
		ctrl.AttachPeripheral(core.NewShiftReg(line, preload))
	default:
		return js.ValueOf("unknown peripheral: " + args[0].String())
	}
	return js.ValueOf("")
}

// exchangeWrapper runs one complete burst: load words, arm the engine,
// tick until idle, read back
// Args: setup (number), control (number, go bit added), dataHex (string)
// Returns: {rx: hex string, clock: number, error: string}
func exchangeWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return makeExchangeResult("", 0, "missing arguments")
	}
	setup := uint8(args[0].Int())
	control := uint8(args[1].Int())
	words, err := hex.DecodeString(args[2].String())
	if err != nil {
		return makeExchangeResult("", 0, "invalid data hex: "+err.Error())
	}

	if res := ctrl.WriteReg(core.RegSetup, setup); res.Err {
		return makeExchangeResult("", int(ctrl.Ticks()), "setup write refused")
	}
	rx := make([]byte, 0, len(words))
	for _, w := range words {
		if res := ctrl.WriteReg(core.RegData, w); res.Err {
			return makeExchangeResult("", int(ctrl.Ticks()), "data FIFO full")
		}
		ctrl.WriteReg(core.RegControl, control|uint8(core.CtrlGo))

		// A word at the slowest divisor finishes well inside 600 ticks.
		settled := false
		for i := 0; i < 600; i++ {
			ctrl.Tick()
			if ctrl.State() == core.Idle {
				settled = true
				break
			}
		}
		if !settled {
			return makeExchangeResult("", int(ctrl.Ticks()), "transfer never settled")
		}
		if res := ctrl.ReadReg(core.RegData); res.Ack {
			rx = append(rx, res.Data)
		}
	}
	return makeExchangeResult(hex.EncodeToString(rx), int(ctrl.Ticks()), "")
}

// resetWrapper restores the power-on state
// Returns: clock (number, always 0)
func resetWrapper(this js.Value, args []js.Value) interface{} {
	ctrl.Reset()
	return js.ValueOf(0)
}

// encodeVLQWrapper encodes a signed integer to VLQ format
// Args: value (int32)
// Returns: hex string
func encodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: missing value argument")
	}
	value := int32(args[0].Int())
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQInt(output, value)
	return js.ValueOf(hex.EncodeToString(output.Result()))
}

// crc16Wrapper calculates the frame checksum
// Args: hexString (string)
// Returns: number (uint16)
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// encodeFrameWrapper encodes a command into a complete wire frame
// Args: cmdID (number), argsHex (string, VLQ encoded parameters)
// Returns: hex string of the framed message
func encodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: missing arguments")
	}
	cmdID := uint16(args[0].Int())
	argBytes, err := hex.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid args hex: " + err.Error())
	}

	msgOutput := protocol.NewScratchOutput()
	tempTransport := protocol.NewTransport(msgOutput, nil)
	tempTransport.SendCommand(cmdID, func(output protocol.OutputBuffer) {
		if len(argBytes) > 0 {
			output.Output(argBytes)
		}
	})
	return js.ValueOf(hex.EncodeToString(msgOutput.Result()))
}

func makeAccessResult(res core.Result) interface{} {
	return js.ValueOf(map[string]interface{}{
		"ack":   res.Ack,
		"err":   res.Err,
		"value": int(res.Data),
	})
}

func makeExchangeResult(rxHex string, clock int, errMsg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"rx":    rxHex,
		"clock": clock,
		"error": errMsg,
	})
}
