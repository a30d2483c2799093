// spigot-host drives a spigot SPI controller from a PC. It speaks the
// compact serial protocol the firmware exposes and downloads the
// command dictionary on connect. The target may be real hardware on a
// serial port, a TCP endpoint (tcp:host:port), a pty (tty:path) or
// the built-in simulator (--device sim).
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spigot/device"
	"spigot/host/link"
)

var (
	rootOpts = struct {
		device  string
		timeout int
		verbose bool
	}{}

	rootCmd = &cobra.Command{
		Use:   "spigot-host",
		Short: "Host tool for spigot SPI controllers",
		Long: `spigot-host talks to a spigot SPI controller over its serial
protocol. On connect it downloads the compressed command dictionary
and builds a name index, so every subcommand works against whatever
command set the firmware actually ships.

The --device flag accepts a serial path (/dev/ttyACM0), a TCP
endpoint (tcp:localhost:7654), a pty (tty:/dev/pts/3) or the literal
string "sim", which spins up an in-process simulated controller
instead.`,
		Version: "0.1.0",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.device, "device", "d", "/dev/ttyACM0", "serial device, tcp:host:port, tty:path, or sim")
	rootCmd.PersistentFlags().IntVar(&rootOpts.timeout, "timeout", 1000, "response timeout in milliseconds")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.verbose, "verbose", "v", false, "print connection progress")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// openLink connects to the configured device and retrieves its
// dictionary. The returned cleanup tears the connection down and, for
// the simulator, stops the in-process server.
func openLink() (*link.Link, func(), error) {
	if rootOpts.device == "sim" {
		return startSim(device.DefaultConfig())
	}

	if rootOpts.verbose {
		fmt.Printf("Connecting to %s...\n", rootOpts.device)
	}
	lk := link.New()
	lk.SetTimeout(time.Duration(rootOpts.timeout) * time.Millisecond)
	if err := lk.Connect(rootOpts.device); err != nil {
		return nil, nil, err
	}
	if err := lk.Identify(); err != nil {
		lk.Close()
		return nil, nil, fmt.Errorf("retrieving dictionary: %w", err)
	}
	if rootOpts.verbose {
		fmt.Printf("Connected, dictionary version %s\n", lk.Dictionary().Version)
	}
	return lk, func() { lk.Close() }, nil
}

// startSim wires a Link to a freshly built simulated device over an
// in-memory pipe.
func startSim(cfg device.Config) (*link.Link, func(), error) {
	hostEnd, devEnd := net.Pipe()
	dev, err := device.NewDevice(cfg)
	if err != nil {
		hostEnd.Close()
		devEnd.Close()
		return nil, nil, err
	}
	srv := device.NewServer(dev, devEnd)
	done := srv.Start()

	lk := link.New()
	lk.SetTimeout(time.Duration(rootOpts.timeout) * time.Millisecond)
	lk.Attach(hostEnd)
	if err := lk.Identify(); err != nil {
		lk.Close()
		srv.Close()
		return nil, nil, fmt.Errorf("retrieving dictionary: %w", err)
	}
	if rootOpts.verbose {
		fmt.Printf("Simulated controller up, dictionary version %s\n", lk.Dictionary().Version)
	}
	cleanup := func() {
		lk.Close()
		srv.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return lk, cleanup, nil
}
