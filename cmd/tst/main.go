// Command tst runs the archive's test batteries.
//
//	tst one [--rpr] [--sgm] [--stg] [--obk] [--lvl] [--lv1] [-s seed] [-n workers] [--thr] [-e]
//	tst all [-s seed] [-n workers] [--thr] [-e]
//
// Exit code 0 when every check passes, 1 otherwise.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamNilotpal/tickvault/internal/battery"
	"github.com/iamNilotpal/tickvault/pkg/logger"
)

type batteryEntry struct {
	name string
	flag string
	help string
	run  battery.Func
}

var batteries = []batteryEntry{
	{"rpr", "rpr", "run reproduction tests", battery.Repro},
	{"sgm", "sgm", "run segment tests", battery.Segment},
	{"stg", "stg", "run storage tests", battery.Storage},
	{"obk", "obk", "run orderbook computation tests", battery.Orderbook},
	{"lvl", "lvl", "run level constants check tests", battery.Level},
	{"lv1", "lv1", "run level 1 reconstruction tests", battery.Level1},
}

func main() {
	var (
		seed        uint64
		workers     int
		useThreads  bool
		haltOnError bool
		selected    = make(map[string]*bool, len(batteries))
	)

	run := func(names []string) error {
		log := logger.New("tst")
		defer log.Sync()

		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		log.Infow("Running batteries",
			"seed", fmt.Sprintf("%#x", seed),
			"workers", workers,
			"threads", useThreads,
		)

		params := &battery.Params{
			Seed:        seed,
			Workers:     workers,
			HaltOnError: haltOnError,
		}

		var checks, failures int
		ran := 0
		for _, entry := range batteries {
			if !contains(names, entry.name) {
				continue
			}
			ran++
			result, err := entry.run(params, log.With("battery", entry.name))
			if err != nil {
				return err
			}
			checks += result.Checks
			failures += result.Failures
			log.Infow("Battery complete",
				"battery", result.Name,
				"checks", result.Checks,
				"failures", result.Failures,
			)
		}

		log.Infow("Batteries complete",
			"ran", ran, "checks", checks, "failures", failures)
		if failures != 0 {
			return fmt.Errorf("%d of %d checks failed", failures, checks)
		}
		return nil
	}

	root := &cobra.Command{
		Use:           "tst",
		Short:         "tickvault test entrypoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Uint64VarP(&seed, "seed", "s", 0, "seed (default: derived from the clock)")
	root.PersistentFlags().IntVarP(&workers, "nb", "n", 1, "number of workers")
	root.PersistentFlags().BoolVar(&useThreads, "thr", false, "run parallel tests with in-process workers")
	root.PersistentFlags().BoolVarP(&haltOnError, "err", "e", false, "halt on error")

	one := &cobra.Command{
		Use:   "one",
		Short: "execute the selected tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			for _, entry := range batteries {
				if *selected[entry.name] {
					names = append(names, entry.name)
				}
			}
			if len(names) == 0 {
				return fmt.Errorf("no battery selected")
			}
			return run(names)
		},
	}
	for _, entry := range batteries {
		selected[entry.name] = one.Flags().Bool(entry.flag, false, entry.help)
	}

	all := &cobra.Command{
		Use:   "all",
		Short: "run all tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(batteries))
			for _, entry := range batteries {
				names = append(names, entry.name)
			}
			return run(names)
		},
	}

	root.AddCommand(one, all)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
