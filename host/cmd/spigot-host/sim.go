package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"spigot/device"
	"spigot/host/serial"
)

var (
	simOpts = struct {
		config     string
		peripheral string
		fifoDepth  int
		traceDepth int
		stdio      bool
		tty        string
	}{}

	simCmd = &cobra.Command{
		Use:   "sim",
		Short: "Run a built-in simulated controller",
		Long: `Build a simulated controller in-process. By default an interactive
shell opens on it. With --stdio the device protocol is served on
stdin/stdout instead, and with --tty PATH it is served on a pty, so
another process (or another spigot-host with --device tty:PATH) can
drive the simulation. A JSON configuration file can size the FIFOs
and trace ring or preattach a peripheral model; individual flags
override the file.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := device.DefaultConfig()
			if simOpts.config != "" {
				var err error
				cfg, err = device.LoadConfigFile(simOpts.config)
				if err != nil {
					fatal(err)
				}
			}
			if simOpts.peripheral != "" {
				cfg.Peripheral = simOpts.peripheral
			}
			if simOpts.fifoDepth != 0 {
				cfg.FifoDepth = simOpts.fifoDepth
			}
			if simOpts.traceDepth != 0 {
				cfg.TraceDepth = simOpts.traceDepth
			}

			switch {
			case simOpts.stdio:
				serveSim(cfg, stdioConn{})
			case simOpts.tty != "":
				port, err := serial.OpenTTY(simOpts.tty)
				if err != nil {
					fatal(err)
				}
				serveSim(cfg, port)
			default:
				lk, cleanup, err := startSim(cfg)
				if err != nil {
					fatal(err)
				}
				defer cleanup()
				runShell(lk)
			}
		},
	}
)

// serveSim speaks the device protocol on conn until it closes.
func serveSim(cfg device.Config, conn io.ReadWriteCloser) {
	dev, err := device.NewDevice(cfg)
	if err != nil {
		fatal(err)
	}
	if err := device.NewServer(dev, conn).Run(); err != nil {
		fatal(fmt.Errorf("serving device: %w", err))
	}
}

// stdioConn serves the protocol over the process's own stdin/stdout.
// Close is a no-op; the loop ends when stdin reaches EOF.
type stdioConn struct{}

func (stdioConn) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdioConn) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdioConn) Close() error                { return nil }

func init() {
	simCmd.Flags().StringVarP(&simOpts.config, "config", "c", "", "JSON configuration file for the simulated device")
	simCmd.Flags().StringVar(&simOpts.peripheral, "peripheral", "", "peripheral model to wire up (null, echo, shiftreg)")
	simCmd.Flags().IntVar(&simOpts.fifoDepth, "fifo-depth", 0, "word FIFO depth, power of two")
	simCmd.Flags().IntVar(&simOpts.traceDepth, "trace-depth", 0, "waveform trace ring size")
	simCmd.Flags().BoolVar(&simOpts.stdio, "stdio", false, "serve the device protocol on stdin/stdout instead of a shell")
	simCmd.Flags().StringVar(&simOpts.tty, "tty", "", "serve the device protocol on this pty instead of a shell")
	rootCmd.AddCommand(simCmd)
}
