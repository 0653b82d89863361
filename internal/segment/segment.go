// Package segment provides the shared memory-mapped container underneath
// every file of the archive.
//
// A segment maps a single backing file in three logical spans: a metadata
// page carrying the synchronization words, the immutable descriptor and a
// caller-defined implementation template; a data area holding N parallel
// fixed-stride arrays that share one element count; and optional auxiliary
// regions whose management is left to the caller.
//
// The concurrency contract is single-writer / many-reader across OS
// processes. The only blocking primitive is a spinlock word in the sync
// block, held for microsecond-scale critical sections around initialization,
// write-lease transitions and element-count publication. Everything else is
// wait-free: readers load the published element count with acquire semantics
// and may then touch any element below it; the writer copies into reserved
// slots beyond the published count and publishes with a release store, which
// is the sole visibility fence.
//
// Crash safety is limited by design: a successfully synchronized segment is
// either consistent with some committed prefix of writes or will be
// re-initialized. Reserved slots beyond the published count are garbage
// after a crash; the published prefix stays valid.
package segment

import (
	stdErrors "errors"
	"fmt"
	"os"
	"runtime"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/pkg/errors"
)

var (
	ErrSegmentClosed = stdErrors.New("operation failed: cannot access closed segment")
)

// Segment is a per-process handle onto a mapped file. The mapped spans are
// shared with every other attacher; the pending-write counter and the lease
// flag are process-local and only meaningful while this handle holds the
// write lease.
type Segment struct {
	path    string             // Backing file path, kept for error context.
	file    *os.File           // Open backing file.
	mapping mmap.MMap          // Whole-file shared RW mapping.
	log     *zap.SugaredLogger // Structured logger for operational visibility.

	meta    []byte   // Metadata page.
	sync    []byte   // Sync block within the metadata page.
	imp     []byte   // Implementation template area within the metadata page.
	regions [][]byte // Auxiliary region spans, page-rounded.
	arrays  [][]byte // Parallel array spans, page-rounded.

	elmMax   uint64 // Fixed element capacity.
	elmSizes []byte // Per-array element strides.

	writer  bool   // Set while this handle holds the write lease.
	pending uint64 // Elements reserved and written but not yet published.
}

// Config carries everything needed to attach a segment. The geometry fields
// describe what the attacher expects; the first attacher to win
// initialization stamps them into the file, everyone else reconciles
// byte-for-byte against them.
type Config struct {
	Path string

	// Create allows the backing file to be created when missing. Without
	// it, a missing file is an error.
	Create bool

	// Template is the implementation-defined metadata area content,
	// at most ImpSize bytes. Shorter templates are zero-padded.
	Template []byte

	// RegionSizes lists the auxiliary region sizes, in order.
	RegionSizes []uint64

	// ElementSizes lists the per-array element strides, in order.
	ElementSizes []byte

	// MaxElements is the fixed element capacity shared by all arrays.
	MaxElements uint64

	Logger *zap.SugaredLogger
}

// Attach opens (and, if allowed, creates) the backing file, maps it, and
// runs the initialization protocol. Exactly one attacher wins
// initialization: the first to atomically set the init-reserved flag writes
// the descriptor and the template, flushes the metadata, then publishes
// init-complete. Every other attacher waits for init-complete, passes
// through the spinlock to gain visibility, and verifies that the descriptor
// and template match its own expectation exactly. Any mismatch is fatal: the
// file belongs to a different schema.
func Attach(config *Config) (*Segment, error) {
	if config == nil || config.Path == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Segment configuration is required",
		).WithField("config").WithRule("required")
	}
	if len(config.Template) > ImpSize {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Implementation template too large",
		).WithField("Template").WithRule("max_size").
			WithProvided(len(config.Template)).WithExpected(ImpSize)
	}
	if len(config.RegionSizes) > 255 || len(config.ElementSizes) > 255 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Too many regions or arrays",
		).WithField("RegionSizes/ElementSizes").WithRule("max_count").WithExpected(255)
	}
	if descriptorSize(len(config.RegionSizes), len(config.ElementSizes)) > descSize {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Descriptor does not fit its block",
		).WithField("RegionSizes/ElementSizes").WithRule("descriptor_size")
	}
	for i, size := range config.ElementSizes {
		if size == 0 {
			return nil, errors.NewValidationError(
				nil, errors.ErrorCodeInvalidInput, "Array element size cannot be zero",
			).WithField("ElementSizes").WithRule("nonzero").WithProvided(i)
		}
	}

	dataSize := dataSpanSize(config.MaxElements, config.RegionSizes, config.ElementSizes)
	totalSize := dataOffset + dataSize

	flags := os.O_RDWR
	if config.Create {
		flags |= os.O_CREATE
	}
	file, err := os.OpenFile(config.Path, flags, 0644)
	if err != nil {
		return nil, errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to open segment file",
		).WithPath(config.Path)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to stat segment file",
		).WithPath(config.Path)
	}

	// An existing file must either be empty (concurrent creation racing us
	// before any resize) or already carry the exact expected size. Anything
	// else means the file belongs to another geometry.
	currentSize := uint64(stat.Size())
	if currentSize != 0 && currentSize != totalSize {
		_ = file.Close()
		return nil, errors.NewSegmentError(
			nil, errors.ErrorCodeSegmentSize, "Segment file has unexpected size",
		).WithPath(config.Path).WithMismatch(totalSize, currentSize)
	}
	if err := file.Truncate(int64(totalSize)); err != nil {
		_ = file.Close()
		return nil, errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to resize segment file",
		).WithPath(config.Path).WithDetail("targetSize", totalSize)
	}

	mapping, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		_ = file.Close()
		return nil, errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to map segment file",
		).WithPath(config.Path).WithDetail("size", totalSize)
	}

	s := &Segment{
		path:     config.Path,
		file:     file,
		mapping:  mapping,
		log:      config.Logger,
		meta:     mapping[:dataOffset],
		elmMax:   config.MaxElements,
		elmSizes: append([]byte(nil), config.ElementSizes...),
	}
	s.sync = s.meta[syncOffset : syncOffset+syncSize]
	s.imp = s.meta[impOffset : impOffset+ImpSize]

	// Carve the data block: regions first, arrays after, each page-rounded.
	cursor := dataOffset
	s.regions = make([][]byte, len(config.RegionSizes))
	for i, size := range config.RegionSizes {
		span := pageRound(size)
		s.regions[i] = mapping[cursor : cursor+size]
		cursor += span
	}
	s.arrays = make([][]byte, len(config.ElementSizes))
	for i, elmSize := range config.ElementSizes {
		span := pageRound(config.MaxElements * uint64(elmSize))
		s.arrays[i] = mapping[cursor : cursor+config.MaxElements*uint64(elmSize)]
		cursor += span
	}

	if err := s.initialize(config, dataSize); err != nil {
		_ = mapping.Unmap()
		_ = file.Close()
		return nil, err
	}

	return s, nil
}

// initialize runs the create-or-attach protocol against the sync block.
func (s *Segment) initialize(config *Config, dataSize uint64) error {
	expected := encodeDescriptor(s.elmMax, dataSize, config.RegionSizes, config.ElementSizes)

	if wordAt(s.sync, syncWordInitRes).Swap(1) == 0 {
		// We won the initialization. The file was zero-filled by the
		// resize, so the lock word starts free.
		s.lock()
		wordAt(s.sync, syncWordCount).Store(0)
		wordAt(s.sync, syncWordWriter).Store(0)

		copy(s.meta[descOffset:descOffset+descSize], expected)
		template := s.imp
		n := copy(template, config.Template)
		for i := n; i < len(template); i++ {
			template[i] = 0
		}

		// Push the metadata to the backing file before anyone can trust
		// the init-complete flag.
		if err := s.mapping.Flush(); err != nil {
			s.unlock()
			return errors.NewSegmentError(
				err, errors.ErrorCodeIO, "Failed to flush segment metadata",
			).WithPath(s.path)
		}
		s.unlock()
		wordAt(s.sync, syncWordInitCpl).Store(1)
	} else {
		// Initialization reserved by someone else: wait for completion,
		// then pass through the lock to gain visibility of the metadata.
		for wordAt(s.sync, syncWordInitCpl).Load() == 0 {
			runtime.Gosched()
		}
		s.lock()
		s.unlock()
	}

	// Winner and losers alike reconcile against the on-disk metadata.
	onDisk := s.meta[descOffset : descOffset+descSize]
	for i := range expected {
		if onDisk[i] != expected[i] {
			return errors.NewSegmentError(
				nil, errors.ErrorCodeDescriptorMismatch, "Segment descriptor mismatch",
			).WithPath(s.path).WithElement(uint64(i)).
				WithMismatch(expected[i], onDisk[i])
		}
	}
	for i := 0; i < ImpSize; i++ {
		var want byte
		if i < len(config.Template) {
			want = config.Template[i]
		}
		if s.imp[i] != want {
			return errors.NewSegmentError(
				nil, errors.ErrorCodeDescriptorMismatch, "Segment template mismatch",
			).WithPath(s.path).WithElement(uint64(i)).
				WithMismatch(want, s.imp[i])
		}
	}
	return nil
}

// Close flushes the mapping, unmaps and closes the backing file. The handle
// must not hold the write lease; release it first so a half-reserved write
// never outlives its process silently.
func (s *Segment) Close() error {
	if s.mapping == nil {
		return ErrSegmentClosed
	}
	if s.writer {
		return errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Cannot close a segment while holding its write lease",
		).WithPath(s.path)
	}

	var firstErr error
	if err := s.mapping.Flush(); err != nil {
		firstErr = errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to flush segment on close",
		).WithPath(s.path)
	}
	if err := s.mapping.Unmap(); err != nil && firstErr == nil {
		firstErr = errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to unmap segment",
		).WithPath(s.path)
	}
	s.mapping = nil
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to close segment file",
		).WithPath(s.path)
	}
	return firstErr
}

// Path returns the backing file path.
func (s *Segment) Path() string { return s.path }

// Arrays returns the number of parallel arrays.
func (s *Segment) Arrays() int { return len(s.arrays) }

// MaxElements returns the fixed element capacity.
func (s *Segment) MaxElements() uint64 { return s.elmMax }

// ElementSizes returns the per-array element strides.
func (s *Segment) ElementSizes() []byte { return s.elmSizes }

// Region returns the idx-th auxiliary region span.
func (s *Segment) Region(idx int) []byte { return s.regions[idx] }

// Array returns the idx-th array's full span, published or not. Callers
// that don't do their own atomic element publication must go through
// ReadRange instead.
func (s *Segment) Array(idx int) []byte { return s.arrays[idx] }

// Count returns the published element count with acquire semantics. A
// reader observing count N is guaranteed to see fully-initialized array
// bytes for elements [0, N).
func (s *Segment) Count() uint64 {
	return wordAt(s.sync, syncWordCount).Load()
}

// Ready reports whether at least n elements have been published.
func (s *Segment) Ready(n uint64) bool {
	return n <= s.Count()
}

// ReadRange returns per-array spans covering elements [start, start+n).
// Reading past the published count is a programmer error: the caller must
// have checked Ready first.
func (s *Segment) ReadRange(start, n uint64) ([][]byte, error) {
	end := start + n
	if published := s.Count(); end > published {
		return nil, errors.NewSegmentError(
			nil, errors.ErrorCodeReadPastPublished, "Read past the published element count",
		).WithPath(s.path).WithElement(end).
			WithDetail("published", published)
	}

	dst := make([][]byte, len(s.arrays))
	for i, arr := range s.arrays {
		stride := uint64(s.elmSizes[i])
		dst[i] = arr[start*stride : end*stride]
	}
	return dst, nil
}

// WriteAcquire attempts to take the segment's write lease. On success it
// returns the current published count (the offset of the first reserved
// element) and seeds the process-local pending counter at zero. If someone
// already holds the lease, it returns ErrWriterHeld: a soft failure the
// caller may retry.
func (s *Segment) WriteAcquire() (uint64, error) {
	if s.writer {
		return 0, errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Write lease already held by this handle",
		).WithPath(s.path)
	}

	s.lock()
	held := wordAt(s.sync, syncWordWriter)
	if held.Load() != 0 {
		s.unlock()
		return 0, errors.ErrWriterHeld
	}
	held.Store(1)
	off := wordAt(s.sync, syncWordCount).Load()
	s.unlock()

	s.writer = true
	s.pending = 0
	return off, nil
}

// WriteSlots returns per-array spans for n elements starting at the next
// unreserved position (published + pending). The lease must be held. The
// returned offset is the index of the first element to write.
func (s *Segment) WriteSlots(n uint64) ([][]byte, uint64, error) {
	if !s.writer {
		return nil, 0, errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Write slots requested without the write lease",
		).WithPath(s.path)
	}

	start := s.Count() + s.pending
	if start+n > s.elmMax {
		return nil, 0, errors.NewSegmentError(
			nil, errors.ErrorCodeWriteOverflow, "Write reservation exceeds segment capacity",
		).WithPath(s.path).WithElement(start+n).
			WithDetail("capacity", s.elmMax)
	}

	dst := make([][]byte, len(s.arrays))
	for i, arr := range s.arrays {
		stride := uint64(s.elmSizes[i])
		dst[i] = arr[start*stride : (start+n)*stride]
	}
	return dst, start, nil
}

// WriteDone reports n elements written into previously returned slots and
// returns the next write index. The elements stay invisible to readers
// until the next commit.
func (s *Segment) WriteDone(n uint64) (uint64, error) {
	if !s.writer {
		return 0, errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Write reported without the write lease",
		).WithPath(s.path)
	}
	count := s.Count()
	if count+s.pending+n > s.elmMax {
		return 0, errors.NewSegmentError(
			nil, errors.ErrorCodeWriteOverflow, "Write report exceeds segment capacity",
		).WithPath(s.path).WithElement(count+s.pending+n).
			WithDetail("capacity", s.elmMax)
	}
	s.pending += n
	return count + s.pending, nil
}

// WriteCommit publishes the pending elements with release semantics while
// keeping the lease. Index segments use this to expose a new table entry in
// the middle of a write session.
func (s *Segment) WriteCommit() error {
	if !s.writer {
		return errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Commit without the write lease",
		).WithPath(s.path)
	}

	s.lock()
	count := wordAt(s.sync, syncWordCount)
	count.Store(count.Load() + s.pending)
	s.unlock()
	s.pending = 0
	return nil
}

// WriteRelease publishes any pending elements and releases the lease.
// It reports whether the segment is now full.
func (s *Segment) WriteRelease() (bool, error) {
	if !s.writer {
		return false, errors.NewSegmentError(
			nil, errors.ErrorCodeWriterState, "Release without the write lease",
		).WithPath(s.path)
	}

	s.lock()
	count := wordAt(s.sync, syncWordCount)
	newCount := count.Load() + s.pending
	count.Store(newCount)
	wordAt(s.sync, syncWordWriter).Store(0)
	s.unlock()

	s.writer = false
	s.pending = 0
	return newCount == s.elmMax, nil
}

// Flush synchronizes the whole mapping with the backing file.
func (s *Segment) Flush() error {
	if err := s.mapping.Flush(); err != nil {
		return errors.NewSegmentError(
			err, errors.ErrorCodeIO, "Failed to flush segment",
		).WithPath(s.path)
	}
	return nil
}

// lock acquires the metadata spinlock. Critical sections under it never
// allocate or touch the file system.
func (s *Segment) lock() {
	word := wordAt(s.sync, syncWordLock)
	for {
		if word.CompareAndSwap(0, 1) {
			return
		}
		runtime.Gosched()
	}
}

// unlock releases the metadata spinlock.
func (s *Segment) unlock() {
	word := wordAt(s.sync, syncWordLock)
	if word.Load() != 1 {
		// A broken lock word means the mapping is being scribbled on by
		// something that is not this protocol. There is no safe recovery.
		panic(fmt.Sprintf("segment %s: unlock of an unlocked spinlock", s.path))
	}
	word.Store(0)
}
