//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// InitUSB configures the USB serial port. On the RP2040 family
// machine.Serial is the USB CDC endpoint, not a hardware UART; the
// descriptors come from the TinyGo runtime.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBConn adapts the byte-at-a-time USB CDC API to the blocking
// io.ReadWriteCloser the device server consumes.
type USBConn struct{}

func NewUSBConn() *USBConn {
	return &USBConn{}
}

// Read blocks until at least one byte arrived, then drains whatever is
// buffered without exceeding p.
func (c *USBConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for machine.Serial.Buffered() == 0 {
		// Yield so the USB handler can run.
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Write pushes the whole buffer out, retrying partial writes. With no
// host attached the endpoint swallows the data.
func (c *USBConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		written += n
	}
	return written, nil
}

func (c *USBConn) Close() error {
	return nil
}
