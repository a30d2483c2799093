// Package serial opens the byte pipe a host uses to reach a device.
// Implementations cover native serial hardware and an in-memory loop
// for tests; anything satisfying Port can carry the link protocol.
package serial

import (
	"io"
)

// Port is the byte pipe the link runs over.
type Port interface {
	io.ReadWriteCloser

	// Flush pushes any buffered data to the device.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	// Device path, "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC devices ignore it but the field must still
	// be set for real UARTs.
	Baud int

	// Read timeout in milliseconds, 0 blocks.
	ReadTimeout int

	// TTY selects the raw tty backend instead of tarm/serial.
	// Pty endpoints have no baud rate to set; raw mode is what
	// keeps the protocol bytes unmangled.
	TTY bool
}

// DefaultConfig returns the settings the firmware side expects.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}
