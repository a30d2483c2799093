package protocol

import (
	"net"
	"testing"
	"time"
)

// pumpDevice runs a minimal device loop on conn: inbound bytes feed the
// transport, and whatever the transport produces is written straight
// back. It stands in for the firmware main loop.
func pumpDevice(conn net.Conn, handler CommandHandler) *Transport {
	out := NewScratchOutput()
	tr := NewTransport(out, handler)

	flush := func() {
		if data := out.Result(); len(data) > 0 {
			conn.Write(data)
			out.Reset()
		}
	}
	tr.SetFlushCallback(flush)

	go func() {
		ring := NewRingBuffer(512)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				ring.Write(buf[:n])
				tr.Receive(ring)
				flush()
			}
			if err != nil {
				return
			}
		}
	}()

	return tr
}

func TestHostTransportCommandAck(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	cmds := make(chan uint32, 8)
	pumpDevice(devEnd, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		cmds <- uint32(cmdID)<<16 | v
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	if err := host.SendCommand(42, func(output OutputBuffer) {
		EncodeVLQUint(output, 1234)
	}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	select {
	case got := <-cmds:
		if got>>16 != 42 || got&0xFFFF != 1234 {
			t.Errorf("Device saw command %d arg %d", got>>16, got&0xFFFF)
		}
	case <-time.After(time.Second):
		t.Fatal("Device never received the command")
	}

	if host.CurrentSequence() != 0x11 {
		t.Errorf("Expected sequence 0x11 after one command, got 0x%02x", host.CurrentSequence())
	}

	// Two more commands walk the counter forward.
	for i := 0; i < 2; i++ {
		if err := host.SendCommand(1, nil); err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
	}
	if host.CurrentSequence() != 0x13 {
		t.Errorf("Expected sequence 0x13 after three commands, got 0x%02x", host.CurrentSequence())
	}
}

func TestHostTransportResponse(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	var tr *Transport
	tr = pumpDevice(devEnd, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		// Echo the argument back on response command 8.
		tr.SendCommand(8, func(output OutputBuffer) {
			EncodeVLQUint(output, v+1)
		})
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	if err := host.SendCommand(7, func(output OutputBuffer) {
		EncodeVLQUint(output, 555)
	}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	resp, err := host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("ReceiveResponse: %v", err)
	}

	payload := resp.Payload
	cmdID, err := DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode response id: %v", err)
	}
	if cmdID != 8 {
		t.Errorf("Expected response command 8, got %d", cmdID)
	}
	v, err := DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode response argument: %v", err)
	}
	if v != 556 {
		t.Errorf("Expected echoed argument 556, got %d", v)
	}
}

func TestHostTransportResetRestartsSequence(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	restarts := make(chan struct{}, 1)
	tr := pumpDevice(devEnd, func(cmdID uint16, data *[]byte) error {
		return nil
	})
	tr.SetResetCallback(func() {
		select {
		case restarts <- struct{}{}:
		default:
		}
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	for i := 0; i < 3; i++ {
		if err := host.SendCommand(1, nil); err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
	}

	host.Reset()
	if host.CurrentSequence() != MessageDest {
		t.Fatalf("Expected sequence 0x10 after reset, got 0x%02x", host.CurrentSequence())
	}

	// The device sees the initial sequence again and treats it as a host
	// restart.
	if err := host.SendCommand(1, nil); err != nil {
		t.Fatalf("SendCommand after reset: %v", err)
	}

	select {
	case <-restarts:
	case <-time.After(time.Second):
		t.Fatal("Device never noticed the host restart")
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	// Swallow everything without answering.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := devEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.SendCommandWithTimeout(3, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("Expected ack timeout, got nil")
	}
}
