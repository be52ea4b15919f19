// Package bootopts parses and validates the options the kernel is booted
// with, the way compileopts.Options does for the teacher's build
// invocations: one struct, one Verify method, descriptive errors naming the
// invalid field and its valid range.
package bootopts

import (
	"fmt"

	"github.com/google/shlex"
	"gopkg.in/yaml.v2"
)

// Options configures a booted Kernel. The zero value is invalid; use
// Default and override fields, or Parse/Load to fill one in from a boot
// command line or a config file.
type Options struct {
	// TimerFreq is the simulated PIT frequency in Hz, spec.md §4.1's
	// TIMER_FREQ. Must be positive. Fixed for the lifetime of a boot - the
	// spec explicitly lists dynamic TIMER_FREQ changes as a non-goal.
	TimerFreq int `yaml:"timer_freq"`
	// MLFQS selects the 4.4BSD multi-level feedback queue scheduler in
	// place of priority donation, spec.md §6's boot-time flag. Default is
	// priority+donation.
	MLFQS bool `yaml:"mlfqs"`
}

// Default returns the boot options used throughout this repository's
// scenarios and tests: TIMER_FREQ=100 Hz, priority+donation mode.
func Default() Options {
	return Options{
		TimerFreq: 100,
		MLFQS:     false,
	}
}

// Parse tokenizes a kernel command-line string the way a bootloader hands
// the kernel a single argv string, and applies recognized flags on top of
// Default(). Recognized flags: -mlfqs, -q (quiet, accepted and ignored,
// matching real pintos boot scripts this port doesn't otherwise model),
// and -timer-freq=N.
func Parse(cmdline string) (Options, error) {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return Options{}, fmt.Errorf("bootopts: parsing command line %q: %w", cmdline, err)
	}
	opts := Default()
	for _, arg := range args {
		switch {
		case arg == "-mlfqs":
			opts.MLFQS = true
		case arg == "-q":
		case len(arg) > len("-timer-freq=") && arg[:len("-timer-freq=")] == "-timer-freq=":
			if _, err := fmt.Sscanf(arg, "-timer-freq=%d", &opts.TimerFreq); err != nil {
				return Options{}, fmt.Errorf("bootopts: invalid -timer-freq in %q: %w", arg, err)
			}
		default:
			return Options{}, fmt.Errorf("bootopts: unrecognized flag %q", arg)
		}
	}
	if err := opts.Verify(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Load parses boot options from the contents of a YAML config file (the
// caller reads the file), for scenarios that want
// to pin TimerFreq/MLFQS without a command line. Unset fields keep
// Default()'s values.
func Load(data []byte) (Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("bootopts: parsing config: %w", err)
	}
	if err := opts.Verify(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Verify validates o, raising a descriptive error if any field is out of
// range.
func (o Options) Verify() error {
	if o.TimerFreq <= 0 {
		return fmt.Errorf("invalid timer_freq %d: must be positive", o.TimerFreq)
	}
	return nil
}
