//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"spigot/core"
	"spigot/device"
)

// usePIODriver routes transactions through a PIO state machine instead
// of the hardware SPI block. Flip it when the SPI blocks are claimed by
// other firmware; the PIO program only covers modes 0 and 1.
const usePIODriver = false

func main() {
	// Disable the watchdog on boot to clear any state a previous reset
	// left behind.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()

	cfg := device.DefaultConfig()
	cfg.MCU = "rp2040"

	dev, err := device.NewDevice(cfg)
	if err != nil {
		blinkForever()
	}

	var drv core.Driver
	if usePIODriver {
		drv = NewPIOSPIDriver()
	} else {
		drv = NewHardwareSPIDriver()
	}
	core.SetDriver(drv)
	dev.Controller().AttachDriver(drv)

	// The USB connection never reports read errors, so Run serves for
	// the lifetime of the firmware. Host disconnects surface as silence
	// and the framing resynchronizes on reconnect.
	srv := device.NewServer(dev, NewUSBConn())
	for {
		if err := srv.Run(); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
		srv = device.NewServer(dev, NewUSBConn())
	}
}

// blinkForever signals an unrecoverable boot error on the board LED.
func blinkForever() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
