package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseHandler receives responses pushed by the device. The data
// slice holds the frame bytes after the command id; the handler may
// consume them in place.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host end of the link. It mirrors Transport:
// commands go out with a sequence number, the device answers each frame
// with an acknowledgement, and responses arrive asynchronously on a
// background reader.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    uint32 // atomic; sequence of the next command, 0x10..0x1F
	synced uint32 // atomic bool

	input *RingBuffer

	ackChan  chan *Frame
	respChan chan *Frame

	respHandler ResponseHandler

	// Command and acknowledgement run in lockstep, so one command is in
	// flight at a time.
	sendMu sync.Mutex
	readMu sync.Mutex

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostTransport wraps an open port and starts the background reader.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:     port,
		seq:      MessageDest,
		synced:   1,
		input:    NewRingBuffer(512),
		ackChan:  make(chan *Frame, 1),
		respChan: make(chan *Frame, 16),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// buildFrame assembles a complete command frame for the wire.
func buildFrame(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()

	n := MessageHeaderSize + len(payload) + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, fmt.Errorf("frame too long: %d bytes (max %d)", n, MessageLengthMax)
	}

	msg := make([]byte, 0, n)
	msg = append(msg, uint8(n), seq)
	msg = append(msg, payload...)
	crc := CRC16(msg)
	msg = append(msg, uint8(crc>>8), uint8(crc), MessageValueSync)
	return msg, nil
}

// SendCommand sends one command and blocks until the device
// acknowledges it.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends one command with a caller-chosen
// acknowledgement deadline.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	seq := uint8(atomic.LoadUint32(&t.seq))
	msg, err := buildFrame(seq, cmdID, args)
	if err != nil {
		return err
	}

	n, err := t.port.Write(msg)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("short write: %d/%d bytes", n, len(msg))
	}

	return t.waitForAck(seq, timeout)
}

// waitForAck blocks until the device acknowledges the frame sent with
// seq. The device answers with the sequence it expects next, so a
// successful acknowledgement carries seq advanced by one; anything else
// asks for a retransmit.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := NextSequence(seq)
	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			return fmt.Errorf("nak: device expects 0x%02x, sent 0x%02x", ack.Sequence, seq)
		}
		atomic.StoreUint32(&t.seq, uint32(want))
		return nil

	case <-time.After(timeout):
		return fmt.Errorf("ack timeout after %v", timeout)

	case <-t.stopChan:
		return fmt.Errorf("transport closed")
	}
}

// ReceiveResponse returns the next response frame, waiting up to
// timeout for one to arrive.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Frame, error) {
	select {
	case resp := <-t.respChan:
		return resp, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("response timeout after %v", timeout)

	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// SetResponseHandler installs a callback invoked from the reader
// goroutine for every response frame.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.respHandler = handler
}

// readLoop pulls bytes off the port and scans them for frames until the
// transport is closed or the port reports end of file.
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processFrames()
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// processFrames runs the same scan as the device side, but splits valid
// frames into acknowledgements and responses.
func (t *HostTransport) processFrames() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.input.Data()

	for len(data) > 0 {
		if !t.synchronized() {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			t.setSynchronized(true)
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		n := checkFrame(data)
		if n == 0 {
			break
		}
		if n < 0 {
			t.setSynchronized(false)
			continue
		}

		payload := make([]byte, n-MessageHeaderSize-MessageTrailerSize)
		copy(payload, data[MessageHeaderSize:n-MessageTrailerSize])

		frame := &Frame{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Payload:  payload,
			CRC: uint16(data[n-MessageTrailerCRC])<<8 |
				uint16(data[n-MessageTrailerCRC+1]),
		}
		data = data[n:]

		t.dispatch(frame)
	}

	if consumed := t.input.Available() - len(data); consumed > 0 {
		t.input.Pop(consumed)
	}
}

// dispatch routes an acknowledgement to the waiting sender and a
// response to the handler and response channel.
func (t *HostTransport) dispatch(frame *Frame) {
	if len(frame.Payload) == 0 {
		select {
		case t.ackChan <- frame:
		default:
		}
		return
	}

	if t.respHandler != nil {
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		if cmdID, err := DecodeVLQUint(&payload); err == nil {
			_ = t.respHandler(uint16(cmdID), &payload)
		}
	}

	select {
	case t.respChan <- frame:
	default:
		// Channel full; drop the oldest response to keep the stream
		// moving.
		select {
		case <-t.respChan:
		default:
		}
		t.respChan <- frame
	}
}

// Close shuts the reader down and closes the port. Closing the port
// first unblocks a pending Read.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restores the power-on sequence state and drains any stale
// frames.
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.seq, MessageDest)

	for {
		select {
		case <-t.ackChan:
			continue
		case <-t.respChan:
			continue
		default:
		}
		break
	}

	t.readMu.Lock()
	t.input.Reset()
	t.readMu.Unlock()
}

// CurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}

func (t *HostTransport) synchronized() bool {
	return atomic.LoadUint32(&t.synced) != 0
}

func (t *HostTransport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.synced, 1)
	} else {
		atomic.StoreUint32(&t.synced, 0)
	}
}
