package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"spigot/host/link"
	"spigot/host/profile"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive shell on a connected controller",
	Long: `Open an interactive shell on the device. Registers can be poked
directly, transfers run under a named profile and the waveform trace
read back afterwards. Type "help" at the prompt for the command list.`,
	Run: func(cmd *cobra.Command, args []string) {
		lk, cleanup, err := openLink()
		if err != nil {
			fatal(err)
		}
		defer cleanup()

		if rootOpts.verbose {
			lk.WriteSummary(os.Stdout)
		}
		runShell(lk)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// runShell reads commands from stdin until EOF or quit. The selected
// profile sticks between transfers; the shell starts in mode 0.
func runShell(lk *link.Link) {
	prof, _ := profile.Find("mode0")

	fmt.Println("Enter commands (type 'help' for the list, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			shellErr(err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printShellHelp()

		case "dict":
			lk.WriteSummary(os.Stdout)

		case "raw":
			raw := lk.RawDictionary()
			fmt.Printf("Raw dictionary (%d bytes):\n%s\n", len(raw), raw)

		case "clock":
			clock, err := lk.GetClock()
			if err != nil {
				shellErr(err)
				continue
			}
			fmt.Printf("clock=%d\n", clock)

		case "status":
			st, err := lk.Status()
			if err != nil {
				shellErr(err)
				continue
			}
			printStatus(st)

		case "tick":
			count := uint32(1)
			if len(args) > 1 {
				count, err = parseCount(args[1])
				if err != nil {
					shellErr(err)
					continue
				}
			}
			clock, err := lk.Tick(count)
			if err != nil {
				shellErr(err)
				continue
			}
			fmt.Printf("clock=%d\n", clock)

		case "write":
			if len(args) != 3 {
				fmt.Println("usage: write ADDR VALUE")
				continue
			}
			addr, err := parseByte(args[1])
			if err != nil {
				shellErr(err)
				continue
			}
			value, err := parseByte(args[2])
			if err != nil {
				shellErr(err)
				continue
			}
			rep, err := lk.BusWrite(addr, value)
			if err != nil {
				shellErr(err)
				continue
			}
			printReply(rep)

		case "read":
			if len(args) != 2 {
				fmt.Println("usage: read ADDR")
				continue
			}
			addr, err := parseByte(args[1])
			if err != nil {
				shellErr(err)
				continue
			}
			rep, err := lk.BusRead(addr)
			if err != nil {
				shellErr(err)
				continue
			}
			printReply(rep)

		case "xfer":
			if len(args) < 2 {
				fmt.Println("usage: xfer BYTE...")
				continue
			}
			words, err := parseWords(args[1:])
			if err != nil {
				shellErr(err)
				continue
			}
			rx, err := lk.Transfer(words, prof.SetupWord())
			if err != nil {
				shellErr(err)
				continue
			}
			for i := range words {
				fmt.Printf("  %02X -> %02X\n", words[i], rx[i])
			}

		case "profile":
			if len(args) == 1 {
				all, err := profile.All()
				if err != nil {
					shellErr(err)
					continue
				}
				for _, p := range all {
					fmt.Println("  " + p.String())
				}
				continue
			}
			p, ok := profile.Find(args[1])
			if !ok {
				fmt.Printf("Unknown profile: %s (try 'profile' for the list)\n", args[1])
				continue
			}
			prof = p
			fmt.Println(prof.String())

		case "attach":
			if len(args) != 2 {
				fmt.Println("usage: attach NAME")
				continue
			}
			kind, ok := lk.EnumValue("peripheral_kind", args[1])
			if !ok {
				fmt.Printf("Unknown peripheral: %s\n", args[1])
				continue
			}
			if err := lk.AttachPeripheral(uint8(kind)); err != nil {
				shellErr(err)
				continue
			}
			fmt.Printf("attached %s\n", args[1])

		case "trace":
			count := uint8(16)
			if len(args) > 1 {
				count, err = parseByte(args[1])
				if err != nil {
					shellErr(err)
					continue
				}
			}
			clock, samples, err := lk.TraceRead(count)
			if err != nil {
				shellErr(err)
				continue
			}
			fmt.Printf("clock=%d, %d samples:\n", clock, len(samples))
			for _, s := range samples {
				fmt.Println("  " + s.String())
			}

		case "reset":
			if err := lk.ResetController(); err != nil {
				shellErr(err)
				continue
			}
			fmt.Println("controller reset")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for the list)\n", args[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fatal(err)
	}
}

func printShellHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help             - Show this help message")
	fmt.Println("  dict             - Print the dictionary summary")
	fmt.Println("  raw              - Print the raw dictionary JSON")
	fmt.Println("  clock            - Read the device clock")
	fmt.Println("  status           - Poll the controller status")
	fmt.Println("  tick [N]         - Advance the simulation N ticks (default 1)")
	fmt.Println("  write ADDR VALUE - Write a bus register (0=data 1=setup 2=control)")
	fmt.Println("  read ADDR        - Read a bus register (3=status)")
	fmt.Println("  xfer BYTE...     - Transfer bytes under the active profile")
	fmt.Println("  profile [NAME]   - List profiles, or select one")
	fmt.Println("  attach NAME      - Attach a peripheral model (null, echo, shiftreg)")
	fmt.Println("  trace [N]        - Read back up to N trace samples (default 16)")
	fmt.Println("  reset            - Reset the controller")
	fmt.Println("  quit/exit/q      - Exit the shell")
	fmt.Println()
}

func shellErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printStatus(st link.Status) {
	fmt.Printf("clock=%d state=%s flags=[%s] irq=%t\n",
		st.Clock, st.StateName(), flagNames(st.Flags), st.IRQ)
}

func printReply(rep link.BusReply) {
	fmt.Printf("addr=%d ack=%t err=%t value=0x%02X\n",
		rep.Addr, rep.Ack, rep.Err, rep.Value)
}

func flagNames(flags uint8) string {
	var names []string
	if flags&link.StatusOutFull != 0 {
		names = append(names, "out_full")
	}
	if flags&link.StatusOutEmpty != 0 {
		names = append(names, "out_empty")
	}
	if flags&link.StatusInFull != 0 {
		names = append(names, "in_full")
	}
	if flags&link.StatusInEmpty != 0 {
		names = append(names, "in_empty")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte value %q", s)
	}
	return uint8(v), nil
}

func parseCount(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad count %q", s)
	}
	return uint32(v), nil
}

func parseWords(args []string) ([]byte, error) {
	words := make([]byte, 0, len(args))
	for _, a := range args {
		b, err := parseByte(a)
		if err != nil {
			return nil, err
		}
		words = append(words, b)
	}
	return words, nil
}
