//go:build rp2040 || rp2350

package main

import (
	"errors"

	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
	"tinygo.org/x/drivers"

	"spigot/core"
)

// PIOSPIDriver shifts the bus on a PIO state machine instead of an SPI
// block. The PIO program covers modes 0 and 1 and ships MSB first.
type PIOSPIDriver struct {
	spi        *piolib.SPI
	cfg        core.DriverConfig
	configured bool
}

func NewPIOSPIDriver() *PIOSPIDriver {
	initSelectPins()
	return &PIOSPIDriver{}
}

func (d *PIOSPIDriver) Configure(cfg core.DriverConfig) error {
	if cfg.Mode > 1 {
		return errors.New("pio spi: modes 2 and 3 not supported")
	}
	if cfg.LSBFirst {
		return errors.New("pio spi: lsb-first not supported")
	}

	// Mode or rate changes rebuild the state machine, which loads a
	// fresh copy of the program. Instruction memory holds a couple
	// dozen reloads, plenty for a session of profile switching.
	if !d.configured || cfg.Mode != d.cfg.Mode || cfg.Divisor != d.cfg.Divisor {
		sm := rp2pio.PIO0.StateMachine(0)
		spi, err := piolib.NewSPI(sm, machine.SPIConfig{
			Frequency: uint32(spiBaseHz) >> cfg.Divisor,
			SCK:       pinSCK,
			SDO:       pinSDO,
			SDI:       pinSDI,
			Mode:      cfg.Mode,
		})
		if err != nil {
			return err
		}
		d.spi = spi
	}
	applySelect(cfg.Select)
	d.cfg = cfg
	d.configured = true
	return nil
}

func (d *PIOSPIDriver) Bus() drivers.SPI {
	return d.spi
}
