//go:build rp2040 || rp2350

package main

import (
	"machine"

	"tinygo.org/x/drivers"

	"spigot/core"
)

// Standard Pico SPI0 wiring: SCK on GPIO18, SDO on GPIO19, SDI on
// GPIO16. Select lines 0-2 map to GPIO17, GPIO20 and GPIO21, active
// low.
var (
	spiBus  = machine.SPI0
	pinSCK  = machine.GPIO18
	pinSDO  = machine.GPIO19
	pinSDI  = machine.GPIO16
	selPins = [3]machine.Pin{machine.GPIO17, machine.GPIO20, machine.GPIO21}
)

// spiBaseHz is the wire rate at divisor 0. Each divisor step halves the
// clock, mirroring how the controller stretches SCK in host ticks.
const spiBaseHz = 8_000_000

// HardwareSPIDriver runs transactions through one of the chip's SPI
// blocks.
type HardwareSPIDriver struct {
	cfg        core.DriverConfig
	configured bool
}

func NewHardwareSPIDriver() *HardwareSPIDriver {
	initSelectPins()
	return &HardwareSPIDriver{}
}

func (d *HardwareSPIDriver) Configure(cfg core.DriverConfig) error {
	if d.configured && cfg == d.cfg {
		return nil
	}
	err := spiBus.Configure(machine.SPIConfig{
		Frequency: uint32(spiBaseHz) >> cfg.Divisor,
		SCK:       pinSCK,
		SDO:       pinSDO,
		SDI:       pinSDI,
		LSBFirst:  cfg.LSBFirst,
		Mode:      cfg.Mode,
	})
	if err != nil {
		return err
	}
	applySelect(cfg.Select)
	d.cfg = cfg
	d.configured = true
	return nil
}

func (d *HardwareSPIDriver) Bus() drivers.SPI {
	return spiBus
}

// initSelectPins configures the select lines as outputs and parks them
// released.
func initSelectPins() {
	for _, pin := range selPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.High()
	}
}

// applySelect asserts the lines named in the mask and releases the
// rest. Lines stay asserted between the words of one transaction; the
// next configuration with a different mask releases them.
func applySelect(mask uint8) {
	for i, pin := range selPins {
		if mask&(1<<i) != 0 {
			pin.Low()
		} else {
			pin.High()
		}
	}
}
