// Package battery provides the runnable test batteries behind the tst CLI.
//
// Each battery drives one subsystem through its end-to-end scenario with
// literal production-shaped values, the way the package-level unit tests do
// with scaled-down ones. A battery reports the number of checks it ran and
// the failures it found; with HaltOnError set, the first failure aborts the
// battery.
package battery

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Params carries the knobs shared by all batteries.
type Params struct {
	// Seed drives every randomized decision; equal seeds reproduce runs.
	Seed uint64

	// Workers is the number of concurrent attachers in the contention
	// batteries.
	Workers int

	// HaltOnError aborts a battery at its first failed check.
	HaltOnError bool
}

// Result summarizes one battery run.
type Result struct {
	Name     string
	Checks   int
	Failures int
}

// Func is a runnable battery.
type Func func(p *Params, log *zap.SugaredLogger) (Result, error)

// errHalt aborts a battery under HaltOnError.
var errHalt = fmt.Errorf("battery halted on first error")

// recorder accumulates check results for one battery.
type recorder struct {
	name string
	p    *Params
	log  *zap.SugaredLogger
	mu   sync.Mutex
	res  Result
}

func newRecorder(name string, p *Params, log *zap.SugaredLogger) *recorder {
	return &recorder{name: name, p: p, log: log, res: Result{Name: name}}
}

// check records one assertion. It returns errHalt when failing under
// HaltOnError.
func (r *recorder) check(ok bool, format string, args ...any) error {
	r.mu.Lock()
	r.res.Checks++
	if !ok {
		r.res.Failures++
	}
	halt := !ok && r.p.HaltOnError
	r.mu.Unlock()

	if !ok {
		r.log.Errorw("Battery check failed",
			"battery", r.name, "detail", fmt.Sprintf(format, args...))
		if halt {
			return errHalt
		}
	}
	return nil
}

// fatalf records an unconditional failure and always aborts the caller's
// path: hard failures leave no state worth continuing on.
func (r *recorder) fatalf(format string, args ...any) error {
	_ = r.check(false, format, args...)
	return errHalt
}

// asRunError folds an unexpected runtime error into the failure count so
// the battery reports it instead of crashing the runner.
func (r *recorder) asRunError(err error) error {
	if err != nil {
		_ = r.check(false, "unexpected error: %v", err)
	}
	return nil
}

// result finalizes the run.
func (r *recorder) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.res
}

// gate is a reusable barrier for the multi-worker batteries. Aborting it
// releases every waiter for good, so a failed worker never strands the
// others mid-round.
type gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	workers int
	waiting int
	round   uint64
	aborted bool
}

func newGate(workers int) *gate {
	g := &gate{workers: workers}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// pass blocks until every worker arrives or the gate aborts. It reports
// whether the battery should keep going.
func (g *gate) pass() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return false
	}
	round := g.round
	g.waiting++
	if g.waiting == g.workers {
		g.waiting = 0
		g.round++
		g.cond.Broadcast()
	} else {
		for round == g.round && !g.aborted {
			g.cond.Wait()
		}
	}
	return !g.aborted
}

// abort releases every waiter permanently.
func (g *gate) abort() {
	g.mu.Lock()
	g.aborted = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Repro is the entrypoint for scenarios that failed in the past. Empty
// until one does.
func Repro(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("rpr", p, log)
	return rec.result(), nil
}
