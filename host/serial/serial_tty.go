//go:build !wasm

package serial

import (
	"fmt"

	"github.com/mattn/go-tty"
)

// TTYPort drives a pty or console tty through go-tty. There is no
// baud rate to configure; the device is put in raw mode so protocol
// bytes pass through unmangled.
type TTYPort struct {
	tty     *tty.TTY
	restore func() error
}

// OpenTTY opens the tty device at path in raw mode.
func OpenTTY(path string) (Port, error) {
	t, err := tty.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("opening tty %s: %w", path, err)
	}
	restore, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("raw mode on %s: %w", path, err)
	}
	return &TTYPort{tty: t, restore: restore}, nil
}

func (p *TTYPort) Read(b []byte) (int, error) {
	return p.tty.Input().Read(b)
}

func (p *TTYPort) Write(b []byte) (int, error) {
	return p.tty.Output().Write(b)
}

// Close restores the saved terminal mode before releasing the device.
func (p *TTYPort) Close() error {
	if p.restore != nil {
		_ = p.restore()
	}
	return p.tty.Close()
}

// Flush is a no-op: raw mode writes through.
func (p *TTYPort) Flush() error {
	return nil
}
