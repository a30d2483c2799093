package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"

	"spigot/device"
	"spigot/host/link"
)

var (
	watchOpts = struct {
		count int
		hz    int
		every uint32
	}{}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stream status broadcasts from a free-running controller",
		Long: `Listen for the unsolicited status frames a free-running controller
broadcasts and print them as they arrive. Against the simulator this
command starts the device in free-running mode itself; the --hz and
--status-every flags size that run. Real hardware broadcasts at
whatever rate its own configuration set.`,
		Run: func(cmd *cobra.Command, args []string) {
			var (
				lk      *link.Link
				cleanup func()
				err     error
			)
			if rootOpts.device == "sim" {
				cfg := device.DefaultConfig()
				cfg.FreeRun = true
				cfg.StatusEvery = watchOpts.every
				if watchOpts.hz != 0 {
					cfg.TickHz = watchOpts.hz
				}
				lk, cleanup, err = startSim(cfg)
			} else {
				lk, cleanup, err = openLink()
			}
			if err != nil {
				fatal(err)
			}
			defer cleanup()

			seen := 0
			lk.SetEventHandler(func(key string, data []byte) {
				seen++
				if strings.HasPrefix(key, "status") {
					vals, err := link.DecodeArgs(data, 4)
					if err != nil {
						shellErr(err)
						return
					}
					printStatus(link.Status{
						Clock: vals[0],
						State: uint8(vals[1]),
						Flags: uint8(vals[2]),
						IRQ:   vals[3] != 0,
					})
					return
				}
				fmt.Printf("%s: % x\n", key, data)
			})

			stop := make(chan struct{})
			if t, err := tty.Open(); err == nil {
				defer t.Close()
				go func() {
					t.ReadRune()
					close(stop)
				}()
				fmt.Println("Watching broadcasts (press any key to stop)...")
			} else {
				fmt.Println("Watching broadcasts (Ctrl-C to stop)...")
			}

		poll:
			for watchOpts.count == 0 || seen < watchOpts.count {
				select {
				case <-stop:
					break poll
				default:
				}
				lk.PollEvent(250 * time.Millisecond)
			}
			fmt.Printf("%d broadcasts received\n", seen)
		},
	}
)

func init() {
	watchCmd.Flags().IntVarP(&watchOpts.count, "count", "n", 0, "stop after this many broadcasts, 0 for unlimited")
	watchCmd.Flags().IntVar(&watchOpts.hz, "hz", 0, "simulator tick rate, 0 for the device default")
	watchCmd.Flags().Uint32Var(&watchOpts.every, "status-every", 1000, "simulator broadcast interval in ticks")
	rootCmd.AddCommand(watchCmd)
}
