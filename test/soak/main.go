// Register Soak Runner
//
// Hammers a controller with randomized burst traffic and checks every
// response against the predicted outcome: FIFO acks, status flags,
// interrupt edges and the echoed data path must all line up, tick by
// tick. Any mismatch aborts with the seed needed to replay it.
//
// The bursts stay inside the FIFO depth and pulse one word per go, so
// every intermediate state is exactly predictable.
//
// Usage:
//
//	go run ./test/soak -ticks 5000000 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"spigot/core"
)

var (
	tickBudget = flag.Uint64("ticks", 10_000_000, "total host ticks to run")
	seed       = flag.Int64("seed", 1, "random seed, for replaying failures")
	depth      = flag.Int("depth", 4, "transfer FIFO depth, power of two")
)

// runner tracks the soak position so failures report where they hit.
type runner struct {
	ctrl   *core.Controller
	rng    *rand.Rand
	ticks  uint64
	bursts uint64
}

func main() {
	flag.Parse()

	ctrl, err := core.New(core.Config{
		Depth:      *depth,
		Peripheral: core.Echo{},
		TraceDepth: 64,
	})
	if err != nil {
		log.Fatal(err)
	}
	r := &runner{ctrl: ctrl, rng: rand.New(rand.NewSource(*seed))}

	start := time.Now()
	lastReport := start
	for r.ticks < *tickBudget {
		r.burst()
		r.bursts++

		if r.bursts%64 == 0 && time.Since(lastReport) > 2*time.Second {
			elapsed := time.Since(start).Seconds()
			fmt.Printf("%12d ticks  %10d bursts  %8.2fM ticks/sec\n",
				r.ticks, r.bursts, float64(r.ticks)/elapsed/1e6)
			lastReport = time.Now()
		}
	}
	fmt.Printf("ok: %d ticks, %d bursts, seed %d\n", r.ticks, r.bursts, *seed)
}

// burst runs one fully predicted load/transfer/drain cycle with random
// parameters and interleaved noise.
func (r *runner) burst() {
	// Phase stays 1 so the echo round trip is exact in both polarities.
	polarity := r.rng.Intn(2) == 1
	divisor := uint8(r.rng.Intn(8))
	sel := uint8(r.rng.Intn(8))
	setup := core.MakeSetup(polarity, true, divisor, sel)

	control := core.CtrlIntEnable | core.CtrlTxEnable | core.CtrlRxEnable
	control |= core.ControlWord(r.rng.Intn(3)) // width 8, 16 or 32
	if r.rng.Intn(2) == 1 {
		control |= core.CtrlLSBFirst
	}
	if r.rng.Intn(2) == 1 {
		control |= core.CtrlAutoAssert
	}

	r.mustAck("setup write", r.write(core.RegSetup, uint8(setup)))

	// Load a burst that fits the FIFO, so no ack and no inbound word is
	// ever in doubt.
	words := make([]byte, 1+r.rng.Intn(*depth))
	for i := range words {
		words[i] = uint8(r.rng.Intn(256))
		r.mustAck("data write", r.write(core.RegData, words[i]))
	}

	flags := r.statusFlags()
	r.check(flags&core.StatusOutEmpty == 0, "loaded FIFO reports out_empty")
	r.check((flags&core.StatusOutFull != 0) == (len(words) == *depth),
		"out_full flag does not match load of %d/%d", len(words), *depth)

	// One word per go pulse. The engine retires the pulse on completion.
	for range words {
		r.mustAck("control write", r.write(core.RegControl, uint8(control|core.CtrlGo)))
		r.settle()
		r.check(r.ctrl.Interrupt(), "no completion interrupt after settle")
		r.idle(r.rng.Intn(8))
	}

	flags = r.statusFlags()
	r.check(flags&core.StatusOutEmpty != 0, "drained FIFO not out_empty")
	r.check((flags&core.StatusInFull != 0) == (len(words) == *depth),
		"in_full flag does not match %d queued words", len(words))

	for i, want := range words {
		res := r.read(core.RegData)
		r.check(res.Ack, "inbound word %d not acked", i)
		r.check(res.Data == want, "word %d: sent %02X got %02X", i, want, res.Data)
		if i == 0 {
			r.check(!r.ctrl.Interrupt(), "acked access left the interrupt up")
		}
	}

	// Refused accesses must pulse the error line and nothing else.
	if r.rng.Intn(4) == 0 {
		res := r.write(core.RegStatus, uint8(r.rng.Intn(256)))
		r.check(res.Err && !res.Ack, "status write did not error")
		res = r.read(uint8(4 + r.rng.Intn(4)))
		r.check(res.Err && !res.Ack, "out-of-range read did not error")
	}

	if snap := r.ctrl.TraceSnapshot(); len(snap) > 64 {
		r.fail("trace ring grew past its depth: %d", len(snap))
	}

	if r.rng.Intn(32) == 0 {
		r.ctrl.Reset()
		r.check(r.ctrl.Ticks() == 0, "reset did not clear the clock")
		r.check(r.statusFlags() == core.StatusOutEmpty|core.StatusInEmpty,
			"reset left FIFO contents behind")
	}
}

func (r *runner) write(addr, value uint8) core.Result {
	r.ticks++
	return r.ctrl.WriteReg(addr, value)
}

func (r *runner) read(addr uint8) core.Result {
	r.ticks++
	return r.ctrl.ReadReg(addr)
}

func (r *runner) idle(n int) {
	for i := 0; i < n; i++ {
		r.ctrl.Tick()
		r.ticks++
	}
}

// settle ticks until the engine is back in idle. The slowest word, 32
// bits duplex at divisor 7, finishes in just over 512 ticks.
func (r *runner) settle() {
	for i := 0; i < 1000; i++ {
		r.ctrl.Tick()
		r.ticks++
		if r.ctrl.State() == core.Idle {
			return
		}
	}
	r.fail("transfer never settled")
}

func (r *runner) statusFlags() uint8 {
	res := r.read(core.RegStatus)
	r.mustAck("status read", res)
	return res.Data
}

func (r *runner) mustAck(what string, res core.Result) {
	if !res.Ack || res.Err {
		r.fail("%s refused: %+v", what, res)
	}
}

func (r *runner) check(ok bool, format string, args ...interface{}) {
	if !ok {
		r.fail(format, args...)
	}
}

func (r *runner) fail(format string, args ...interface{}) {
	prefix := fmt.Sprintf("burst %d, tick %d, seed %d: ", r.bursts, r.ticks, *seed)
	log.Fatalf(prefix+format, args...)
}
