// Package link implements the host side of the device protocol. A Link
// opens a connection, fetches the self-describing dictionary through
// identify, and then exposes the device command set as typed calls.
package link

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"spigot/host/serial"
	"spigot/protocol"
)

// Register addresses and register bits as the device documents them.
// Hosts compose setup and control bytes from these.
const (
	RegData    = 0
	RegSetup   = 1
	RegControl = 2
	RegStatus  = 3

	CtrlAutoAssert = 1 << 7
	CtrlIntEnable  = 1 << 6
	CtrlLSBFirst   = 1 << 5
	CtrlTxEnable   = 1 << 4
	CtrlRxEnable   = 1 << 3
	CtrlGo         = 1 << 2

	StatusOutFull  = 1 << 3
	StatusOutEmpty = 1 << 2
	StatusInFull   = 1 << 1
	StatusInEmpty  = 1 << 0
)

// Engine state codes as they appear in status reports.
const (
	StateIdle     = 0
	StateStart    = 1
	StateTransfer = 2
	StateEnd      = 3
)

// SetupWord packs clock mode and routing bits the way the setup
// register expects them.
func SetupWord(polarity, phase bool, divisor, sel uint8) uint8 {
	var w uint8
	if polarity {
		w |= 1 << 7
	}
	if phase {
		w |= 1 << 6
	}
	w |= (divisor & 0x07) << 3
	w |= sel & 0x07
	return w
}

// Dictionary is the parsed identify payload. Command and response keys
// carry the name followed by the argument format.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// BusReply is the result of one register access tick.
type BusReply struct {
	Addr  uint8
	Ack   bool
	Err   bool
	Value uint8
}

// Status is one controller status report.
type Status struct {
	Clock uint32
	State uint8
	Flags uint8
	IRQ   bool
}

// StateName returns the transfer engine state as text.
func (s Status) StateName() string {
	return StateName(s.State)
}

var stateNames = [...]string{"idle", "start", "transfer", "end"}

// StateName maps an engine state code to its name.
func StateName(code uint8) string {
	if int(code) < len(stateNames) {
		return stateNames[code]
	}
	return fmt.Sprintf("state%d", code)
}

// TraceSample is one decoded waveform capture point.
type TraceSample struct {
	Tick   uint32
	State  uint8
	SCK    bool
	MOSI   bool
	MISO   bool
	IRQ    bool
	Select uint8
}

func (s TraceSample) String() string {
	return fmt.Sprintf("t=%d %s sck=%d mosi=%d miso=%d sel=%03b irq=%d",
		s.Tick, StateName(s.State),
		bit(s.SCK), bit(s.MOSI), bit(s.MISO), s.Select, bit(s.IRQ))
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

const traceSampleLen = 7

// EventHandler receives unsolicited responses, like the periodic status
// broadcasts of a free-running device. The key is the dictionary entry
// of the response, the data its payload after the id.
type EventHandler func(key string, data []byte)

// Link is a connection to one device.
type Link struct {
	transport *protocol.HostTransport
	port      io.ReadWriteCloser

	dict    *Dictionary
	rawDict []byte

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
	responseKey map[uint16]string

	onEvent   EventHandler
	timeout   time.Duration
	connected bool
}

// New returns a Link that is not yet connected.
func New() *Link {
	return &Link{timeout: time.Second}
}

// Connect opens the named device. A "tcp:host:port" name dials a
// network device and a "tty:/dev/pts/N" name opens a pty in raw mode
// instead of a serial port.
func (l *Link) Connect(device string) error {
	if addr, ok := strings.CutPrefix(device, "tcp:"); ok {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", addr, err)
		}
		l.attach(conn)
		return nil
	}
	if path, ok := strings.CutPrefix(device, "tty:"); ok {
		cfg := serial.DefaultConfig(path)
		cfg.TTY = true
		return l.ConnectWithConfig(cfg)
	}
	return l.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial device with explicit settings.
func (l *Link) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	l.attach(port)

	// Opening the port can reset the board; give the firmware a moment.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the link over an already open connection, like an in
// process pipe to a simulated device.
func (l *Link) Attach(conn io.ReadWriteCloser) {
	l.attach(conn)
}

func (l *Link) attach(conn io.ReadWriteCloser) {
	l.port = conn
	l.transport = protocol.NewHostTransport(conn)
	l.connected = true
}

// Close shuts the connection down.
func (l *Link) Close() error {
	l.connected = false
	if l.transport != nil {
		return l.transport.Close()
	}
	return nil
}

// IsConnected reports whether the link has an open connection.
func (l *Link) IsConnected() bool {
	return l.connected
}

// SetTimeout sets the per-command response deadline.
func (l *Link) SetTimeout(d time.Duration) {
	l.timeout = d
}

// SetEventHandler installs the sink for unsolicited responses.
func (l *Link) SetEventHandler(handler EventHandler) {
	l.onEvent = handler
}

// Dictionary returns the parsed dictionary, nil before Identify.
func (l *Link) Dictionary() *Dictionary {
	return l.dict
}

// RawDictionary returns the decompressed dictionary bytes.
func (l *Link) RawDictionary() []byte {
	return l.rawDict
}

// Identify fetches the dictionary in chunks, decompresses it and
// indexes the command set.
func (l *Link) Identify() error {
	if !l.connected {
		return fmt.Errorf("not connected")
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000

	for i := 0; i < maxIterations; i++ {
		chunk, err := l.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		if len(chunk) < int(chunkSize) {
			break
		}
	}

	raw := dictBuffer.Bytes()
	if decompressed, err := inflate(raw); err == nil {
		raw = decompressed
	}
	l.rawDict = raw

	return l.parseDictionary()
}

// sendIdentify requests one dictionary chunk. Identify and its response
// are pinned to ids 1 and 0 so this works before any dictionary exists.
func (l *Link) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := l.transport.SendCommandWithTimeout(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, l.timeout)
	if err != nil {
		return nil, fmt.Errorf("sending identify: %w", err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out waiting for identify response")
		}

		resp, err := l.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("receiving identify response: %w", err)
		}

		payload := resp.Payload
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if cmdID != 0 {
			// Unsolicited traffic, like the status broadcast of a free
			// running device. No dictionary yet, so it cannot be routed.
			continue
		}

		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decoding response offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("offset mismatch: requested %d, got %d", offset, respOffset)
		}

		return protocol.DecodeVLQBytes(&payload)
	}
}

// inflate decodes a zlib stream. Devices without a compressor send the
// dictionary raw, so the caller treats failure as uncompressed data.
func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (l *Link) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(l.rawDict, dict); err != nil {
		return fmt.Errorf("parsing dictionary: %w", err)
	}
	l.dict = dict

	// Dictionary keys carry "name format"; calls use the bare name.
	l.commandIDs = make(map[string]uint16, len(dict.Commands))
	for key, id := range dict.Commands {
		l.commandIDs[keyName(key)] = uint16(id)
	}
	l.responseIDs = make(map[string]uint16, len(dict.Responses))
	l.responseKey = make(map[uint16]string, len(dict.Responses))
	for key, id := range dict.Responses {
		l.responseIDs[keyName(key)] = uint16(id)
		l.responseKey[uint16(id)] = key
	}
	return nil
}

func keyName(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		return key[:i]
	}
	return key
}

// EnumValue resolves a symbolic name in a dictionary enumeration.
func (l *Link) EnumValue(enum, name string) (int, bool) {
	if l.dict == nil {
		return 0, false
	}
	values, ok := l.dict.Enumerations[enum]
	if !ok {
		return 0, false
	}
	v, ok := values[name]
	return v, ok
}

// ConfigInt reads a numeric constant from the dictionary config block.
func (l *Link) ConfigInt(name string) (int, bool) {
	if l.dict == nil {
		return 0, false
	}
	s, ok := l.dict.Config[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SendNamed sends a command by its dictionary name.
func (l *Link) SendNamed(name string, args func(output protocol.OutputBuffer)) error {
	if !l.connected {
		return fmt.Errorf("not connected")
	}
	if l.dict == nil {
		return fmt.Errorf("dictionary not loaded")
	}
	id, ok := l.commandIDs[name]
	if !ok {
		return fmt.Errorf("unknown command %s", name)
	}
	return l.transport.SendCommandWithTimeout(id, args, l.timeout)
}

// waitFor returns the payload of the next response with the given name.
// Other responses arriving first go to the event handler.
func (l *Link) waitFor(name string) ([]byte, error) {
	id, ok := l.responseIDs[name]
	if !ok {
		return nil, fmt.Errorf("response %s not in dictionary", name)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out waiting for %s", name)
		}

		frame, err := l.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", name, err)
		}

		payload := frame.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if uint16(got) == id {
			return payload, nil
		}
		l.dispatchEvent(uint16(got), payload)
	}
}

// PollEvent waits for one unsolicited response and feeds it to the
// event handler. It reports whether one arrived before the timeout.
func (l *Link) PollEvent(timeout time.Duration) bool {
	frame, err := l.transport.ReceiveResponse(timeout)
	if err != nil {
		return false
	}
	payload := frame.Payload
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return false
	}
	l.dispatchEvent(uint16(id), payload)
	return true
}

func (l *Link) dispatchEvent(id uint16, data []byte) {
	if l.onEvent == nil {
		return
	}
	key, ok := l.responseKey[id]
	if !ok {
		key = fmt.Sprintf("response_%d", id)
	}
	l.onEvent(key, data)
}

// DecodeArgs reads n VLQ encoded unsigned values from a response
// payload. Event handlers use it to pick apart broadcast frames.
func DecodeArgs(data []byte, n int) ([]uint32, error) {
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			return nil, fmt.Errorf("decoding field %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// GetClock reads the device simulation clock.
func (l *Link) GetClock() (uint32, error) {
	if err := l.SendNamed("get_clock", nil); err != nil {
		return 0, err
	}
	data, err := l.waitFor("clock")
	if err != nil {
		return 0, err
	}
	vals, err := DecodeArgs(data, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// BusWrite performs one register write tick.
func (l *Link) BusWrite(addr, value uint8) (BusReply, error) {
	err := l.SendNamed("bus_write", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(addr))
		protocol.EncodeVLQUint(output, uint32(value))
	})
	if err != nil {
		return BusReply{}, err
	}
	return l.busReply()
}

// BusRead performs one register read tick.
func (l *Link) BusRead(addr uint8) (BusReply, error) {
	err := l.SendNamed("bus_read", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(addr))
	})
	if err != nil {
		return BusReply{}, err
	}
	return l.busReply()
}

func (l *Link) busReply() (BusReply, error) {
	data, err := l.waitFor("bus_reply")
	if err != nil {
		return BusReply{}, err
	}
	vals, err := DecodeArgs(data, 4)
	if err != nil {
		return BusReply{}, err
	}
	return BusReply{
		Addr:  uint8(vals[0]),
		Ack:   vals[1] != 0,
		Err:   vals[2] != 0,
		Value: uint8(vals[3]),
	}, nil
}

// Tick advances the device by count quiet ticks and returns the clock
// afterwards.
func (l *Link) Tick(count uint32) (uint32, error) {
	err := l.SendNamed("tick", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, count)
	})
	if err != nil {
		return 0, err
	}
	data, err := l.waitFor("tick_done")
	if err != nil {
		return 0, err
	}
	vals, err := DecodeArgs(data, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// Status polls the controller state without consuming a bus tick.
func (l *Link) Status() (Status, error) {
	if err := l.SendNamed("status_poll", nil); err != nil {
		return Status{}, err
	}
	data, err := l.waitFor("status")
	if err != nil {
		return Status{}, err
	}
	vals, err := DecodeArgs(data, 4)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Clock: vals[0],
		State: uint8(vals[1]),
		Flags: uint8(vals[2]),
		IRQ:   vals[3] != 0,
	}, nil
}

// ResetController restores the device controller to power-on state.
func (l *Link) ResetController() error {
	return l.SendNamed("controller_reset", nil)
}

// AttachPeripheral swaps the peripheral model on the device.
func (l *Link) AttachPeripheral(kind uint8) error {
	return l.SendNamed("peripheral_attach", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(kind))
	})
}

// TraceRead fetches the most recent waveform samples.
func (l *Link) TraceRead(count uint8) (uint32, []TraceSample, error) {
	err := l.SendNamed("trace_read", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return 0, nil, err
	}

	data, err := l.waitFor("trace_data")
	if err != nil {
		return 0, nil, err
	}

	clock, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding clock: %w", err)
	}
	packed, err := protocol.DecodeVLQBytes(&data)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding samples: %w", err)
	}
	if len(packed)%traceSampleLen != 0 {
		return 0, nil, fmt.Errorf("trace payload of %d bytes is not sample aligned", len(packed))
	}

	samples := make([]TraceSample, len(packed)/traceSampleLen)
	for i := range samples {
		samples[i] = unpackSample(packed[i*traceSampleLen:])
	}
	return clock, samples, nil
}

func unpackSample(b []byte) TraceSample {
	return TraceSample{
		Tick:   uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		State:  b[4],
		SCK:    b[5]&(1<<0) != 0,
		MOSI:   b[5]&(1<<1) != 0,
		MISO:   b[5]&(1<<2) != 0,
		IRQ:    b[5]&(1<<3) != 0,
		Select: b[6],
	}
}

// Transfer shifts words through the controller: it loads the outbound
// queue, then pulses go once per word since the engine retires a single
// word per transaction and drops the go bit at its end. The received
// words come back in queue order.
func (l *Link) Transfer(words []byte, setup uint8) ([]byte, error) {
	capacity, ok := l.ConfigInt("CAPACITY")
	if !ok {
		capacity = 4
	}
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) > capacity {
		return nil, fmt.Errorf("%d words exceed the queue capacity %d", len(words), capacity)
	}

	for _, w := range words {
		reply, err := l.BusWrite(RegData, w)
		if err != nil {
			return nil, err
		}
		if !reply.Ack {
			return nil, fmt.Errorf("data write not acknowledged")
		}
	}
	if _, err := l.BusWrite(RegSetup, setup); err != nil {
		return nil, err
	}

	control := uint8(CtrlTxEnable | CtrlRxEnable | CtrlGo)
	for range words {
		if _, err := l.BusWrite(RegControl, control); err != nil {
			return nil, err
		}
		if _, err := l.waitIdle(); err != nil {
			return nil, err
		}
	}

	st, err := l.Status()
	if err != nil {
		return nil, err
	}
	if st.Flags&StatusOutEmpty == 0 {
		return nil, fmt.Errorf("outbound queue not drained, status %+v", st)
	}

	result := make([]byte, len(words))
	for i := range result {
		reply, err := l.BusRead(RegData)
		if err != nil {
			return nil, err
		}
		result[i] = reply.Value
	}
	return result, nil
}

// waitIdle runs the clock in short batches until the engine reports
// idle. Eight data bits cost at most 2*8*(7+1) ticks plus framing, so
// the batch budget covers every divisor.
func (l *Link) waitIdle() (Status, error) {
	var st Status
	for i := 0; i < 64; i++ {
		if _, err := l.Tick(32); err != nil {
			return st, err
		}
		var err error
		if st, err = l.Status(); err != nil {
			return st, err
		}
		if st.State == StateIdle {
			return st, nil
		}
	}
	return st, fmt.Errorf("engine did not return to idle, status %+v", st)
}

// WriteSummary prints a human readable dictionary overview.
func (l *Link) WriteSummary(w io.Writer) {
	if l.dict == nil {
		fmt.Fprintln(w, "no dictionary loaded")
		return
	}

	fmt.Fprintf(w, "version:  %s\n", l.dict.Version)
	fmt.Fprintf(w, "build:    %s\n", l.dict.BuildVersions)

	names := make([]string, 0, len(l.dict.Config))
	for name := range l.dict.Config {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "config:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, l.dict.Config[name])
	}

	fmt.Fprintf(w, "commands (%d):\n", len(l.dict.Commands))
	writeIDMap(w, l.dict.Commands)
	fmt.Fprintf(w, "responses (%d):\n", len(l.dict.Responses))
	writeIDMap(w, l.dict.Responses)

	if len(l.dict.Enumerations) > 0 {
		enums := make([]string, 0, len(l.dict.Enumerations))
		for name := range l.dict.Enumerations {
			enums = append(enums, name)
		}
		sort.Strings(enums)
		fmt.Fprintln(w, "enumerations:")
		for _, name := range enums {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(l.dict.Enumerations[name]))
		}
	}
}

func writeIDMap(w io.Writer, m map[string]int) {
	type entry struct {
		key string
		id  int
	}
	entries := make([]entry, 0, len(m))
	for key, id := range m {
		entries = append(entries, entry{key, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		fmt.Fprintf(w, "  [%2d] %s\n", e.id, e.key)
	}
}
