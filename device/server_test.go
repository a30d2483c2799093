package device

import (
	"bytes"
	"net"
	"testing"
	"time"

	"spigot/core"
	"spigot/protocol"
)

// startServer wires a device server to one end of an in-memory pipe and
// hands back a host transport talking to the other end.
func startServer(t *testing.T, cfg Config) (*Device, *protocol.HostTransport) {
	t.Helper()

	dev, err := NewDevice(cfg)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}

	hostConn, devConn := net.Pipe()
	srv := NewServer(dev, devConn)
	done := srv.Start()

	ht := protocol.NewHostTransport(hostConn)
	t.Cleanup(func() {
		ht.Close()
		srv.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Server did not stop")
		}
	})
	return dev, ht
}

// roundTrip sends one named command and returns the id and payload of
// the next response frame.
func roundTrip(t *testing.T, dev *Device, ht *protocol.HostTransport, name string, vals ...uint32) (uint16, []byte) {
	t.Helper()

	cmd, ok := dev.Registry().LookupName(name)
	if !ok {
		t.Fatalf("Command %s not registered", name)
	}

	err := ht.SendCommandWithTimeout(cmd.ID, func(output protocol.OutputBuffer) {
		for _, v := range vals {
			protocol.EncodeVLQUint(output, v)
		}
	}, time.Second)
	if err != nil {
		t.Fatalf("Sending %s: %v", name, err)
	}

	frame, err := ht.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("Waiting for %s response: %v", name, err)
	}

	data := frame.Payload
	id, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		t.Fatalf("Decoding response id: %v", err)
	}
	return uint16(id), data
}

func respID(t *testing.T, dev *Device, name string) uint16 {
	t.Helper()
	cmd, ok := dev.Registry().LookupName(name)
	if !ok {
		t.Fatalf("Response %s not registered", name)
	}
	return cmd.ID
}

func TestServerIdentify(t *testing.T) {
	dev, ht := startServer(t, Config{})

	// Fetch the dictionary the way a fresh host does: fixed-size chunks
	// until a short read.
	const chunkSize = 40
	var rebuilt []byte
	for {
		id, data := roundTrip(t, dev, ht, "identify", uint32(len(rebuilt)), chunkSize)
		if id != 0 {
			t.Fatalf("Expected identify_response id 0, got %d", id)
		}

		offset, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			t.Fatalf("Decoding offset: %v", err)
		}
		if offset != uint32(len(rebuilt)) {
			t.Fatalf("Expected offset %d echoed, got %d", len(rebuilt), offset)
		}

		chunk, err := protocol.DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("Decoding chunk: %v", err)
		}
		rebuilt = append(rebuilt, chunk...)
		if len(chunk) < chunkSize {
			break
		}
	}

	if !bytes.Equal(rebuilt, dev.Dictionary().Generate()) {
		t.Errorf("Fetched %d dictionary bytes, device holds %d",
			len(rebuilt), len(dev.Dictionary().Generate()))
	}
}

func TestServerTransfer(t *testing.T) {
	dev, ht := startServer(t, Config{Peripheral: "echo"})
	busReply := respID(t, dev, "bus_reply")

	setup := uint32(core.MakeSetup(false, true, 0, 0))
	control := uint32(core.CtrlTxEnable | core.CtrlRxEnable | core.CtrlGo)

	writes := [][2]uint32{
		{uint32(core.RegData), 0x96},
		{uint32(core.RegSetup), setup},
		{uint32(core.RegControl), control},
	}
	for _, w := range writes {
		id, data := roundTrip(t, dev, ht, "bus_write", w[0], w[1])
		if id != busReply {
			t.Fatalf("Expected bus_reply id %d, got %d", busReply, id)
		}
		vals := decodeAll(t, data, 4)
		if vals[1] != 1 {
			t.Fatalf("Write to register %d not acked: %v", w[0], vals)
		}
	}

	id, data := roundTrip(t, dev, ht, "tick", 40)
	if id != respID(t, dev, "tick_done") {
		t.Fatalf("Expected tick_done, got id %d", id)
	}
	if vals := decodeAll(t, data, 1); vals[0] != 43 {
		t.Errorf("Expected clock 43 after 3 bus ticks and 40 quiet ticks, got %d", vals[0])
	}

	_, data = roundTrip(t, dev, ht, "bus_read", uint32(core.RegStatus))
	vals := decodeAll(t, data, 4)
	if vals[3] != uint32(core.StatusOutEmpty) {
		t.Errorf("Expected status 0x%02X, got 0x%02X", core.StatusOutEmpty, vals[3])
	}

	_, data = roundTrip(t, dev, ht, "bus_read", uint32(core.RegData))
	vals = decodeAll(t, data, 4)
	if vals[3] != 0x96 {
		t.Errorf("Expected echoed word 0x96, got 0x%02X", vals[3])
	}
}

func TestServerStatusPoll(t *testing.T) {
	dev, ht := startServer(t, Config{})

	id, data := roundTrip(t, dev, ht, "status_poll")
	if id != respID(t, dev, "status") {
		t.Fatalf("Expected status response, got id %d", id)
	}
	vals := decodeAll(t, data, 4)
	if vals[0] != 0 || vals[1] != uint32(core.Idle) {
		t.Errorf("Expected clock 0 in idle, got %v", vals)
	}
}

func TestServerFreeRunBroadcast(t *testing.T) {
	dev, ht := startServer(t, Config{
		FreeRun:     true,
		TickHz:      100000,
		StatusEvery: 50,
	})
	statusID := respID(t, dev, "status")

	frame, err := ht.ReceiveResponse(2 * time.Second)
	if err != nil {
		t.Fatalf("No broadcast arrived: %v", err)
	}

	data := frame.Payload
	id, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		t.Fatalf("Decoding broadcast id: %v", err)
	}
	if uint16(id) != statusID {
		t.Fatalf("Expected status broadcast id %d, got %d", statusID, id)
	}

	vals := decodeAll(t, data, 4)
	if vals[0] == 0 || vals[0]%50 != 0 {
		t.Errorf("Expected clock at a 50 tick boundary, got %d", vals[0])
	}
}

func TestServerCloseStopsRun(t *testing.T) {
	dev, err := NewDevice(Config{})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}

	hostConn, devConn := net.Pipe()
	defer hostConn.Close()

	srv := NewServer(dev, devConn)
	done := srv.Start()

	srv.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
