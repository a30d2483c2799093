package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dictOpts = struct {
		raw bool
	}{}

	dictCmd = &cobra.Command{
		Use:   "dict",
		Short: "Download and print the device dictionary",
		Long: `Retrieve the compressed command dictionary from the device and
print a summary of its configuration values, commands, responses and
enumerations. With --raw the decompressed JSON is printed verbatim.`,
		Run: func(cmd *cobra.Command, args []string) {
			lk, cleanup, err := openLink()
			if err != nil {
				fatal(err)
			}
			defer cleanup()

			if dictOpts.raw {
				raw := lk.RawDictionary()
				fmt.Printf("Raw dictionary (%d bytes):\n%s\n", len(raw), raw)
				return
			}
			lk.WriteSummary(os.Stdout)
		},
	}
)

func init() {
	dictCmd.Flags().BoolVar(&dictOpts.raw, "raw", false, "print the decompressed JSON instead of a summary")
	rootCmd.AddCommand(dictCmd)
}
