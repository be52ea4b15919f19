// Command pintos boots a simulated kernel: it parses boot options the way
// the real bootloader hands the kernel a single command-line string,
// optionally drives a scenario script against it, and prints the tick
// accounting on exit. It is the generalization of the teacher's own
// builder package, which serializes concurrent toolchain invocations with
// a build-cache lock (andypeng2015-tinygo/builder) - here the lock
// serializes concurrent simulated boots that share a log file instead of a
// build cache.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/inhies/go-bytesize"

	"github.com/austin-personal/pintos-kaist-jungle/bootopts"
	"github.com/austin-personal/pintos-kaist-jungle/kernel"
	"github.com/austin-personal/pintos-kaist-jungle/scenario"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr *os.File) error {
	fs := flag.NewFlagSet("pintos", flag.ContinueOnError)
	cmdline := fs.String("cmdline", "", "kernel boot command line, e.g. \"-mlfqs -timer-freq=100\"")
	scenarioPath := fs.String("scenario", "", "path to a scenario YAML file to run after boot")
	bootLog := fs.String("boot-log", "", "path to a boot log file; when set, an advisory lock serializes concurrent boots sharing it")
	ticks := fs.Int("ticks", 0, "number of ticks to advance after running the scenario (0 to skip)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := bootopts.Parse(*cmdline)
	if err != nil {
		return err
	}

	if *bootLog != "" {
		lock := flock.New(*bootLog)
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("pintos: locking boot log %s: %w", *bootLog, err)
		}
		defer lock.Unlock()
		f, err := os.OpenFile(*bootLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("pintos: opening boot log %s: %w", *bootLog, err)
		}
		defer f.Close()
		fmt.Fprintf(f, "boot: timer_freq=%d mlfqs=%v\n", opts.TimerFreq, opts.MLFQS)
	}

	// Calibrate loops_per_tick against the wall clock before booting, the
	// same "ASSERT(intr_get_level() == INTR_ON)" moment timer_calibrate
	// occupies in the original boot sequence - here it tells MSleep/
	// USleep/NSleep's sub-tick busy-wait how many spin iterations fit in
	// one simulated tick.
	loopsPerTick := kernel.CalibrateLoopsPerTick(time.Second/time.Duration(opts.TimerFreq), spinFor)

	var kopts []kernel.Option
	kopts = append(kopts, kernel.WithLoopsPerTick(loopsPerTick))
	if opts.MLFQS {
		kopts = append(kopts, kernel.WithMLFQS())
	}
	k, _ := kernel.New(kopts...)
	driver := kernel.NewManualTicker(opts.TimerFreq)
	k.Attach(driver)
	defer k.Stop()

	if *scenarioPath != "" {
		sc, err := scenario.Load(*scenarioPath)
		if err != nil {
			return err
		}
		if err := sc.Run(k); err != nil {
			return fmt.Errorf("pintos: running scenario %s: %w", *scenarioPath, err)
		}
	}

	if *ticks > 0 {
		k.StepTicks(*ticks)
	}

	page := kernel.NewPage()
	fmt.Fprintf(stdout, "pintos: simulated physical page size %s\n", bytesize.New(float64(len(page))))

	k.DumpReadyQueue().WriteTo(stdout)
	k.DumpStats().WriteTo(stdout)
	return nil
}

// spinSink keeps the compiler from eliding spinFor's loop as dead code,
// mirroring the barrier() call in the original's busy_wait/too_many_loops.
var spinSink uint64

// spinFor times how long loops iterations of a tight no-op loop take,
// CalibrateLoopsPerTick's measurement primitive.
func spinFor(loops uint64) time.Duration {
	start := time.Now()
	for i := uint64(0); i < loops; i++ {
		spinSink++
	}
	return time.Since(start)
}
