package core

import (
	"tinygo.org/x/drivers"
)

// DriverConfig carries the parameters a hardware backend needs to mirror a
// controller transaction onto physical pins.
type DriverConfig struct {
	Mode     uint8 // SPI mode 0-3 (polarity<<1 | phase)
	LSBFirst bool
	Divisor  uint8 // host-tick divisor; backends map this to a clock rate
	Select   uint8 // chip-select pattern
}

// Driver is the abstract hardware SPI interface that core code uses.
// Target-specific packages register an implementation at startup; the
// controller then delegates completed transactions to it through the
// Exchanger adapter instead of relying on pin-sampled data.
type Driver interface {
	// Configure prepares the physical bus for a transaction.
	Configure(cfg DriverConfig) error

	// Bus returns the configured bus for data transfer.
	Bus() drivers.SPI
}

// Global singleton used by target code to publish its driver.
var busDriver Driver

// SetDriver is called by target-specific code to register its hardware
// driver.
func SetDriver(d Driver) {
	busDriver = d
}

// HasDriver reports whether target code registered a hardware driver.
func HasDriver() bool {
	return busDriver != nil
}

// MustDriver returns the registered hardware driver or panics if missing.
func MustDriver() Driver {
	if busDriver == nil {
		panic("hardware bus driver not configured")
	}
	return busDriver
}

// driverExchanger adapts a Driver to the engine's Exchanger hook: it
// configures the bus from the transaction snapshot and exchanges the word
// bytes in wire order.
type driverExchanger struct {
	drv Driver
}

func (d driverExchanger) Exchange(x Exchange) (uint32, error) {
	err := d.drv.Configure(DriverConfig{
		Mode:     modeBits(x.Polarity, x.Phase),
		LSBFirst: x.LSBFirst,
		Divisor:  x.Divisor,
		Select:   x.Select,
	})
	if err != nil {
		return 0, err
	}

	n := x.Width / 8
	var w, r [4]byte
	for i := 0; i < n; i++ {
		if x.LSBFirst {
			w[i] = byte(x.Word >> (8 * i))
		} else {
			w[i] = byte(x.Word >> (8 * (n - 1 - i)))
		}
	}
	if err := d.drv.Bus().Tx(w[:n], r[:n]); err != nil {
		return 0, err
	}

	var word uint32
	for i := 0; i < n; i++ {
		if x.LSBFirst {
			word |= uint32(r[i]) << (8 * i)
		} else {
			word = word<<8 | uint32(r[i])
		}
	}
	return word, nil
}

func modeBits(polarity, phase bool) uint8 {
	m := uint8(0)
	if polarity {
		m |= 2
	}
	if phase {
		m |= 1
	}
	return m
}

// Loopback is a Driver whose bus hands every transmitted byte straight
// back, standing in for real hardware in host-side tests and simulations.
type Loopback struct {
	Config     DriverConfig // last configuration applied
	Configured bool
}

func (l *Loopback) Configure(cfg DriverConfig) error {
	l.Config = cfg
	l.Configured = true
	return nil
}

func (l *Loopback) Bus() drivers.SPI {
	return loopbackBus{}
}

type loopbackBus struct{}

func (loopbackBus) Tx(w, r []byte) error {
	copy(r, w)
	return nil
}

func (loopbackBus) Transfer(b byte) (byte, error) {
	return b, nil
}
