package protocol

import (
	"bytes"
	"sync/atomic"
)

// CommandHandler consumes one decoded command from a frame. The data
// slice holds the remaining frame bytes; the handler must advance it
// past the arguments it parses.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link. It validates inbound frames,
// tracks the host's sequence counter, dispatches commands and emits the
// acknowledgement the host blocks on. Receive runs on the device main
// loop while a serial interrupt fills the input buffer, so shared state
// lives in atomics.
type Transport struct {
	synced  uint32 // atomic bool
	nextSeq uint32 // atomic; next expected sequence, 0x10..0x1F

	output  OutputBuffer
	handler CommandHandler
	onReset func()
	onFlush func()
}

// NewTransport returns a transport writing frames to output and feeding
// decoded commands to handler.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		synced:  1,
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
}

// Receive scans buffered input for frames and processes every complete
// one. Partial frames stay in the buffer for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized() {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			t.setSynchronized(true)
			t.sendAck()
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

		seq := data[MessagePositionSeq]
		frame := data[MessageHeaderSize : n-MessageTrailerSize]
		data = data[n:]

		expected := uint8(atomic.LoadUint32(&t.nextSeq))
		if seq == MessageDest && expected != MessageDest {
			// The host restarted; fall back to the initial sequence.
			atomic.StoreUint32(&t.nextSeq, MessageDest)
			expected = MessageDest
			if t.onReset != nil {
				t.onReset()
			}
		}

		if seq == expected {
			atomic.StoreUint32(&t.nextSeq, uint32(NextSequence(seq)))
			_ = t.parseFrame(frame)
		}
		// Acknowledge either way. A duplicate or out of order frame gets
		// the expected sequence back, which tells the host where to
		// resume.
		t.sendAck()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches each command packed into a frame. A panicking
// handler must not take down the device loop, so it is treated like
// line corruption and forces a resynchronization.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			return err
		}
		if t.handler == nil {
			return nil
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// sendAck emits an empty frame carrying the next expected sequence.
func (t *Transport) sendAck() {
	ns := uint8(atomic.LoadUint32(&t.nextSeq))
	crc := CRC16([]byte{MessageLengthMin, ns})
	t.output.Output([]byte{
		MessageLengthMin,
		ns,
		uint8(crc >> 8),
		uint8(crc),
		MessageValueSync,
	})
	// The host serializer holds further commands until the ACK lands, so
	// push it onto the wire ahead of any queued responses.
	if t.onFlush != nil {
		t.onFlush()
	}
}

// EncodeFrame appends one response frame to the output buffer. Responses
// reuse the sequence the ACK carries; several frames may share one
// sequence value between host commands.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	seq := uint8(atomic.LoadUint32(&t.nextSeq))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	body := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(body+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand encodes a response frame holding one command and its
// arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset restores the transport to its power-on state.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.nextSeq, MessageDest)

	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback installs a hook run when a host restart is detected.
func (t *Transport) SetResetCallback(callback func()) {
	t.onReset = callback
}

// SetFlushCallback installs a hook run after every acknowledgement so
// the serial driver can push it out immediately.
func (t *Transport) SetFlushCallback(callback func()) {
	t.onFlush = callback
}

func (t *Transport) synchronized() bool {
	return atomic.LoadUint32(&t.synced) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.synced, 1)
	} else {
		atomic.StoreUint32(&t.synced, 0)
	}
}
