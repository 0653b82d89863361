package battery

import (
	"bytes"
	stdErrors "errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// The literal segment-battery geometry: ten regions of awkward sizes, 255
// arrays with strides 1..255, and a capacity that exercises the doubling
// write ladder end to end.
var (
	segBatteryRegions = []uint64{
		1024, 10, 3, 1025, 2048, 4096, 65536, 65537, 1 << 22, 65535,
	}
	segBatteryElements = uint64(0x1ffff)
)

func segBatteryStrides() []byte {
	strides := make([]byte, 255)
	for i := range strides {
		strides[i] = byte(i + 1)
	}
	return strides
}

// segTemplate derives the implementation template from the seed.
func segTemplate(seed uint64) []byte {
	size := 128 + int(xxh3.Hash([]byte{byte(seed), byte(seed >> 8)})%897)
	template := make([]byte, size)
	for i := range template {
		template[i] = byte(xxh3.Hash([]byte{byte(seed), byte(i), byte(i >> 8)}))
	}
	return template
}

// Segment runs the segment battery: the concurrent init race, the write
// lease exclusion hammer, and the doubling write ladder with reload and
// verification at every gate.
func Segment(p *Params, log *zap.SugaredLogger) (Result, error) {
	rec := newRecorder("sgm", p, log)

	dir, err := os.MkdirTemp("", "tickvault-sgm-*")
	if err != nil {
		return rec.result(), err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "sgm")

	workers := max(p.Workers, 1)
	template := segTemplate(p.Seed)
	strides := segBatteryStrides()

	cfg := func() *segment.Config {
		return &segment.Config{
			Path:         path,
			Create:       true,
			Template:     template,
			RegionSizes:  segBatteryRegions,
			ElementSizes: strides,
			MaxElements:  segBatteryElements,
			Logger:       log,
		}
	}

	// Source data: one deterministic byte pool; array i reads through it
	// at its own stride, so the pool is shared rather than per-array.
	rng := rand.New(rand.NewSource(int64(p.Seed)))
	pool := make([]byte, segBatteryElements*256)
	rng.Read(pool)
	src := make([][]byte, len(strides))
	for i, stride := range strides {
		src[i] = pool[:segBatteryElements*uint64(stride)]
	}

	// Init race: every worker attaches the same fresh path; exactly one
	// wins initialization and everyone reconciles.
	segs := make([]*segment.Segment, workers)
	attachErrs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			segs[w], attachErrs[w] = segment.Attach(cfg())
		}(w)
	}
	wg.Wait()
	for w := 0; w < workers; w++ {
		if err := rec.check(attachErrs[w] == nil, "worker %d attach: %v", w, attachErrs[w]); err != nil {
			return rec.result(), nil
		}
		if segs[w] != nil {
			if err := rec.check(segs[w].Count() == 0, "worker %d: fresh published %d", w, segs[w].Count()); err != nil {
				return rec.result(), nil
			}
		}
	}

	// Lease exclusion hammer: every worker attempts acquisitions while a
	// shared counter is incremented and decremented inside the critical
	// section; any observation other than one-then-zero is a violation.
	var inside, violations int64
	var insideMu sync.Mutex
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s := segs[w]
			if s == nil {
				return
			}
			for i := 0; i < 100_000; i++ {
				if _, err := s.WriteAcquire(); err != nil {
					if !stdErrors.Is(err, errors.ErrWriterHeld) {
						insideMu.Lock()
						violations++
						insideMu.Unlock()
					}
					continue
				}
				insideMu.Lock()
				inside++
				if inside != 1 {
					violations++
				}
				inside--
				if inside != 0 {
					violations++
				}
				insideMu.Unlock()
				if _, err := s.WriteRelease(); err != nil {
					insideMu.Lock()
					violations++
					insideMu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()
	if err := rec.check(violations == 0, "lease exclusion violations: %d", violations); err != nil {
		return rec.result(), nil
	}

	// Doubling write ladder: worker 0 appends 1, 2, 4, ... elements; all
	// workers verify the published prefix against the source data after
	// every pass, reloading their handle midway to exercise reattach.
	barrier := newGate(workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s := segs[w]
			if s == nil {
				barrier.abort()
				return
			}
			written := uint64(0)
			pass := 0
			for size := uint64(1); written < segBatteryElements; size <<= 1 {
				if written+size > segBatteryElements {
					size = segBatteryElements - written
				}

				if w == 0 {
					if err := writeLadderPass(rec, s, src, strides, written, size); err != nil {
						barrier.abort()
						return
					}
				}
				if !barrier.pass() {
					return
				}
				written += size
				pass++

				// Reload midway to prove reattach sees the same bytes.
				if pass == 8 {
					_ = s.Close()
					reloaded, err := segment.Attach(cfg())
					if err != nil {
						_ = rec.fatalf("worker %d reload: %v", w, err)
						barrier.abort()
						return
					}
					s = reloaded
					segs[w] = s
				}

				if err := verifyLadder(rec, s, src, strides, written); err != nil {
					barrier.abort()
					return
				}
				if !barrier.pass() {
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for _, s := range segs {
		if s != nil {
			_ = s.Close()
		}
	}
	return rec.result(), nil
}

func writeLadderPass(rec *recorder, s *segment.Segment, src [][]byte, strides []byte, written, size uint64) error {
	off, err := s.WriteAcquire()
	if err != nil {
		return rec.fatalf("ladder acquire: %v", err)
	}
	if err := rec.check(off == written, "ladder offset %d, want %d", off, written); err != nil {
		return err
	}
	dst, start, err := s.WriteSlots(size)
	if err != nil {
		return rec.fatalf("ladder slots: %v", err)
	}
	if err := rec.check(start == written, "ladder start %d, want %d", start, written); err != nil {
		return err
	}
	for i, stride := range strides {
		copy(dst[i], src[i][written*uint64(stride):(written+size)*uint64(stride)])
	}
	if _, err := s.WriteDone(size); err != nil {
		return rec.fatalf("ladder done: %v", err)
	}
	if _, err := s.WriteRelease(); err != nil {
		return rec.fatalf("ladder release: %v", err)
	}
	return nil
}

func verifyLadder(rec *recorder, s *segment.Segment, src [][]byte, strides []byte, written uint64) error {
	if err := rec.check(s.Ready(written), "published below %d", written); err != nil {
		return err
	}
	if err := rec.check(!s.Ready(written+1), "published beyond %d", written); err != nil {
		return err
	}
	got, err := s.ReadRange(0, written)
	if err != nil {
		return rec.fatalf("ladder read: %v", err)
	}
	for i, stride := range strides {
		want := src[i][:written*uint64(stride)]
		if err := rec.check(bytes.Equal(got[i], want), "array %d content mismatch at %d elements", i, written); err != nil {
			return err
		}
	}
	return nil
}
