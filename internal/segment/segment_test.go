package segment

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"pgregory.net/rapid"

	"github.com/iamNilotpal/tickvault/pkg/errors"
	"github.com/iamNilotpal/tickvault/pkg/logger"
)

func testConfig(path string) *Config {
	return &Config{
		Path:         path,
		Create:       true,
		Template:     []byte("segment-test"),
		RegionSizes:  []uint64{1024, 100},
		ElementSizes: []byte{8, 8, 1},
		MaxElements:  1 << 10,
		Logger:       logger.NewNop(),
	}
}

func TestAttachInitializesFreshSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	cfg := testConfig(path)

	s, err := Attach(cfg)
	require.NoError(t, err)

	require.Equal(t, uint64(0), s.Count())
	require.Equal(t, 3, s.Arrays())
	require.Equal(t, uint64(1<<10), s.MaxElements())
	require.Len(t, s.Region(0), 1024)
	require.Len(t, s.Region(1), 100)
	require.NoError(t, s.Close())

	// Reattach reconciles without rewriting anything.
	s, err = Attach(cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(0), s.Count())
	require.NoError(t, s.Close())
}

func TestAttachRejectsDescriptorMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	s, err := Attach(testConfig(path))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Same file size, different stride split: must be caught by the
	// descriptor, not the size check.
	bad := testConfig(path)
	bad.ElementSizes = []byte{8, 1, 8}
	_, err = Attach(bad)
	require.Error(t, err)
	se, ok := errors.AsSegmentError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeDescriptorMismatch, se.Code())
}

func TestAttachRejectsTemplateMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	s, err := Attach(testConfig(path))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	bad := testConfig(path)
	bad.Template = []byte("segment-tesT")
	_, err = Attach(bad)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeDescriptorMismatch, errors.GetErrorCode(err))
}

func TestAttachRejectsSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	s, err := Attach(testConfig(path))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Enough elements for the 8-byte arrays to outgrow one 64 KiB page.
	bad := testConfig(path)
	bad.MaxElements = 1 << 14
	_, err = Attach(bad)
	require.Error(t, err)
	se, ok := errors.AsSegmentError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeSegmentSize, se.Code())
}

func TestWriteLeaseExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	a, err := Attach(testConfig(path))
	require.NoError(t, err)
	b, err := Attach(testConfig(path))
	require.NoError(t, err)

	off, err := a.WriteAcquire()
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	_, err = b.WriteAcquire()
	require.ErrorIs(t, err, errors.ErrWriterHeld)

	_, err = a.WriteRelease()
	require.NoError(t, err)

	off, err = b.WriteAcquire()
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
	_, err = b.WriteRelease()
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestWriteVisibilityAndDurability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sgm")
	cfg := testConfig(path)

	writer, err := Attach(cfg)
	require.NoError(t, err)
	reader, err := Attach(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	src := make([][]byte, 3)
	for i, stride := range cfg.ElementSizes {
		src[i] = make([]byte, cfg.MaxElements*uint64(stride))
		rng.Read(src[i])
	}

	// Doubling write sizes: 1, 2, 4, ... until the capacity is reached.
	var written uint64
	for size := uint64(1); written < cfg.MaxElements; size <<= 1 {
		if written+size > cfg.MaxElements {
			size = cfg.MaxElements - written
		}

		_, err := writer.WriteAcquire()
		require.NoError(t, err)

		dst, start, err := writer.WriteSlots(size)
		require.NoError(t, err)
		require.Equal(t, written, start)
		for i, stride := range cfg.ElementSizes {
			copy(dst[i], src[i][start*uint64(stride):(start+size)*uint64(stride)])
		}
		_, err = writer.WriteDone(size)
		require.NoError(t, err)

		// Reserved but uncommitted elements stay invisible.
		require.Equal(t, written, reader.Count())

		full, err := writer.WriteRelease()
		require.NoError(t, err)
		written += size
		require.Equal(t, written == cfg.MaxElements, full)

		// Published elements are visible and equal to the source data.
		require.True(t, reader.Ready(written))
		require.False(t, reader.Ready(written+1))
		got, err := reader.ReadRange(0, written)
		require.NoError(t, err)
		for i, stride := range cfg.ElementSizes {
			require.True(t, bytes.Equal(got[i], src[i][:written*uint64(stride)]))
		}
	}

	require.NoError(t, writer.Close())
	require.NoError(t, reader.Close())

	// Durability under reload: everything published survives a close.
	s, err := Attach(cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.MaxElements, s.Count())
	got, err := s.ReadRange(0, cfg.MaxElements)
	require.NoError(t, err)
	for i := range cfg.ElementSizes {
		require.True(t, bytes.Equal(got[i], src[i]))
	}
	require.NoError(t, s.Close())
}

func TestReadPastPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	s, err := Attach(testConfig(path))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadRange(0, 1)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeReadPastPublished, errors.GetErrorCode(err))
}

func TestWriteOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	s, err := Attach(testConfig(path))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WriteAcquire()
	require.NoError(t, err)
	_, _, err = s.WriteSlots(s.MaxElements() + 1)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeWriteOverflow, errors.GetErrorCode(err))
	_, err = s.WriteRelease()
	require.NoError(t, err)
}

// Segment init race: concurrent attachers on a fresh path, exactly one
// descriptor written, identical template bytes observed by everyone.
func TestConcurrentInitRace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")

	seed := uint64(7)
	template := make([]byte, 512)
	for i := range template {
		template[i] = byte(xxh3.Hash([]byte{byte(seed), byte(i), byte(i >> 8)}))
	}

	const workers = 8
	var wg sync.WaitGroup
	segs := make([]*Segment, workers)
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			cfg := &Config{
				Path:         path,
				Create:       true,
				Template:     template,
				RegionSizes:  []uint64{1024, 10, 3, 1025},
				ElementSizes: []byte{1, 2, 3, 4, 5, 6, 7, 8},
				MaxElements:  1 << 12,
				Logger:       logger.NewNop(),
			}
			segs[w], errs[w] = Attach(cfg)
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		require.Equal(t, uint64(0), segs[w].Count())
		require.NoError(t, segs[w].Close())
	}
}

// Segment exclusion under contention: many writers hammering the lease,
// incrementing then decrementing a shared counter inside the critical
// section. The counter must always read zero from every observer.
func TestWriteLeaseContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgm")
	const workers = 8
	const attempts = 10_000

	var inside atomic.Int64
	var violations atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := Attach(testConfig(path))
			if err != nil {
				t.Error(err)
				return
			}
			defer s.Close()

			for i := 0; i < attempts; i++ {
				if _, err := s.WriteAcquire(); err != nil {
					if !stdErrors.Is(err, errors.ErrWriterHeld) {
						violations.Add(1)
					}
					continue
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				if inside.Add(-1) != 0 {
					violations.Add(1)
				}
				if _, err := s.WriteRelease(); err != nil {
					violations.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), violations.Load())
}

// Monotonicity of the published count: any interleaving of writes produces
// a non-decreasing sequence of observations.
func TestPublishedCountMonotonicity(t *testing.T) {
	base := t.TempDir()
	var run int
	rapid.Check(t, func(t *rapid.T) {
		run++
		path := filepath.Join(base, fmt.Sprintf("sgm-%d", run))
		cfg := testConfig(path)
		cfg.MaxElements = 256

		s, err := Attach(cfg)
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()

		last := uint64(0)
		remaining := cfg.MaxElements
		for remaining > 0 && !rapid.Bool().Draw(t, "stop") {
			n := rapid.Uint64Range(1, remaining).Draw(t, "n")
			if _, err := s.WriteAcquire(); err != nil {
				t.Fatal(err)
			}
			if _, _, err := s.WriteSlots(n); err != nil {
				t.Fatal(err)
			}
			if _, err := s.WriteDone(n); err != nil {
				t.Fatal(err)
			}
			if _, err := s.WriteRelease(); err != nil {
				t.Fatal(err)
			}
			remaining -= n

			now := s.Count()
			if now < last {
				t.Fatalf("published count regressed: %d -> %d", last, now)
			}
			last = now
		}
	})
}

func TestPageRound(t *testing.T) {
	require.Equal(t, uint64(0), pageRound(0))
	require.Equal(t, PageSize, pageRound(1))
	require.Equal(t, PageSize, pageRound(PageSize))
	require.Equal(t, 2*PageSize, pageRound(PageSize+1))
}
