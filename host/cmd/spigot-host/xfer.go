package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spigot/host/profile"
)

var (
	xferOpts = struct {
		profile    string
		peripheral string
		trace      uint8
	}{}

	xferCmd = &cobra.Command{
		Use:   "xfer BYTE...",
		Short: "Run one transfer and print the returned words",
		Long: `Queue the given bytes (decimal or 0x hex), clock them through the
controller under the named profile and print the words that came back.
Against the simulator a peripheral model can be attached first, so
"spigot-host --device sim xfer 0xA5 0x3C" exercises a full loopback
round trip out of the box.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			words, err := parseWords(args)
			if err != nil {
				fatal(err)
			}
			prof, ok := profile.Find(xferOpts.profile)
			if !ok {
				fatal(fmt.Errorf("unknown profile %q (see 'spigot-host profiles')", xferOpts.profile))
			}

			lk, cleanup, err := openLink()
			if err != nil {
				fatal(err)
			}
			defer cleanup()

			if xferOpts.peripheral != "" {
				kind, ok := lk.EnumValue("peripheral_kind", xferOpts.peripheral)
				if !ok {
					fatal(fmt.Errorf("device knows no peripheral %q", xferOpts.peripheral))
				}
				if err := lk.AttachPeripheral(uint8(kind)); err != nil {
					fatal(err)
				}
			}

			rx, err := lk.Transfer(words, prof.SetupWord())
			if err != nil {
				fatal(err)
			}
			fmt.Println(prof.String())
			for i := range words {
				fmt.Printf("  %02X -> %02X\n", words[i], rx[i])
			}

			if xferOpts.trace > 0 {
				clock, samples, err := lk.TraceRead(xferOpts.trace)
				if err != nil {
					fatal(err)
				}
				fmt.Printf("clock=%d, last %d samples:\n", clock, len(samples))
				for _, s := range samples {
					fmt.Println("  " + s.String())
				}
			}
		},
	}

	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in transfer profiles",
		Run: func(cmd *cobra.Command, args []string) {
			all, err := profile.All()
			if err != nil {
				fatal(err)
			}
			for _, p := range all {
				fmt.Println(p.String())
			}
		},
	}
)

func init() {
	xferCmd.Flags().StringVarP(&xferOpts.profile, "profile", "p", "loopback", "transfer profile to apply")
	xferCmd.Flags().StringVar(&xferOpts.peripheral, "attach", "echo", "peripheral model to attach first, empty to skip")
	xferCmd.Flags().Uint8Var(&xferOpts.trace, "trace", 0, "read back this many trace samples afterwards")
	rootCmd.AddCommand(xferCmd)
	rootCmd.AddCommand(profilesCmd)
}
