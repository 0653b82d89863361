// Package storage provides the per-(venue, instrument, level) append-only
// time-series built on memory-mapped segments.
//
// A storage directory is a tree of indexes keyed by venue/instrument/level.
// Each index owns a bounded table of (start-time, end-time) pairs, one per
// block, and each block is a fixed-capacity segment of event rows for one
// level, optionally carrying a derived end-of-block orderbook snapshot.
//
// The write path appends pre-sorted rows through the writer key acquired
// when the index was opened for writing; blocks are created as their
// predecessors fill, and each new block becomes visible to concurrent
// readers only when its first rows are on disk and its table entry is
// published. The read path bisects the table on end times, streams blocks in
// ascending order, and resolves rows inside a block by linear scan: the
// downstream consumers read monotonically, so a bisection inside the block
// would only add cache misses.
package storage

import (
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/pkg/errors"
	"github.com/iamNilotpal/tickvault/pkg/filesys"
)

var (
	ErrSystemClosed = stdErrors.New("operation failed: cannot access closed storage system")
)

// MarkerFile is the empty file marking a directory as a storage root.
// Its absence on attach is fatal; its creation is idempotent on init.
const MarkerFile = "stg"

// System is a directory of indexes. It owns the in-memory index cache and
// the scratch buffer used to build segment templates; indexes own their
// blocks; blocks own their segments.
type System struct {
	path    string             // Storage root directory.
	test    bool               // Test sizing: 3-row blocks, 2000-entry tables.
	log     *zap.SugaredLogger // Structured logger for operational visibility.
	mu      sync.Mutex         // Guards the index cache and open handle count.
	indexes map[string]*Index  // Open indexes keyed by canonical identifier.
	handles uint32             // Number of outstanding index handles.
	scratch []byte             // Shared template scratch, guarded by mu.
	closed  bool
}

// Config carries the storage system parameters.
type Config struct {
	Path   string
	Test   bool
	Logger *zap.SugaredLogger
}

// InitDir creates the storage directory and its marker file. Both are
// idempotent, so concurrent initializers are harmless.
func InitDir(path string) error {
	if err := filesys.CreateDir(path, 0755, true); err != nil {
		return errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to create storage directory",
		).WithPath(path)
	}
	if err := filesys.CreateMarker(filepath.Join(path, MarkerFile)); err != nil {
		return errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to create storage marker",
		).WithPath(filepath.Join(path, MarkerFile))
	}
	return nil
}

// Attach constructs a storage system over an initialized directory. A
// directory without the marker file is not a storage root: attaching it
// would scatter segment files over arbitrary paths, so it is fatal.
func Attach(config *Config) (*System, error) {
	if config == nil || config.Path == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Storage configuration is required",
		).WithField("config").WithRule("required")
	}

	isDir, err := filesys.IsDir(config.Path)
	if err != nil {
		return nil, errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to inspect storage directory",
		).WithPath(config.Path)
	}
	markerOK, err := filesys.Exists(filepath.Join(config.Path, MarkerFile))
	if err != nil {
		return nil, errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to inspect storage marker",
		).WithPath(config.Path)
	}
	if !isDir || !markerOK {
		return nil, errors.NewStorageError(
			nil, errors.ErrorCodeNotStorageDir, "Not a storage directory",
		).WithPath(config.Path)
	}

	config.Logger.Infow("Storage system attached",
		"path", config.Path,
		"test", config.Test,
	)

	return &System{
		path:    config.Path,
		test:    config.Test,
		log:     config.Logger,
		indexes: make(map[string]*Index),
		scratch: make([]byte, 0, segment.ImpSize),
	}, nil
}

// Path returns the storage root directory.
func (s *System) Path() string { return s.path }

// Test reports whether the system uses test sizing.
func (s *System) Test() bool { return s.test }

// Identifier renders the canonical index identifier.
func Identifier(venue, instrument string, level Level) string {
	return venue + "/" + instrument + "/" + strconv.Itoa(int(level))
}

// Open returns a handle on the venue/instrument/level index, creating its
// directory tree and index segment when missing.
//
// With write set, it attempts to take the index's write privileges and
// returns the nonzero writer key on success; if another handle holds them,
// it returns ErrWriterHeld without an index. Without write, it always
// succeeds and the returned key is zero.
func (s *System) Open(venue, instrument string, level Level, write bool) (*Index, uint64, error) {
	if err := checkLevel(level); err != nil {
		return nil, 0, err
	}
	if venue == "" || instrument == "" {
		return nil, 0, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Venue and instrument are required",
		).WithField("venue/instrument").WithRule("required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrSystemClosed
	}

	id := Identifier(venue, instrument, level)
	idx, ok := s.indexes[id]
	if !ok {
		opened, err := s.openIndex(venue, instrument, level, id)
		if err != nil {
			return nil, 0, err
		}
		idx = opened
		s.indexes[id] = idx
	}

	idx.refs++
	s.handles++

	var key uint64
	if write {
		acquired, err := idx.acquireWriteKey()
		if err != nil {
			s.releaseLocked(idx)
			return nil, 0, err
		}
		key = acquired
	}
	return idx, key, nil
}

// openIndex attaches the index segment, creating the directory tree first.
// Caller holds s.mu.
func (s *System) openIndex(venue, instrument string, level Level, id string) (*Index, error) {
	dir := filepath.Join(s.path, venue, instrument, strconv.Itoa(int(level)))
	if err := filesys.CreateDir(dir, 0755, true); err != nil {
		return nil, errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to create index directory",
		).WithIdentifier(id).WithPath(dir)
	}

	template := s.template(id)
	seg, err := segment.Attach(&segment.Config{
		Path:         filepath.Join(dir, "idx"),
		Create:       true,
		Template:     template,
		ElementSizes: []byte{16}, // (start_time, end_time) pairs
		MaxElements:  IndexCapacity(s.test),
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	idx := &Index{
		sys:        s,
		id:         id,
		venue:      venue,
		instrument: instrument,
		level:      level,
		dir:        dir,
		seg:        seg,
		table:      seg.Array(0),
		blocks:     make(map[uint64]*Block),
	}

	s.checkOrphanedBlocks(idx)
	return idx, nil
}

// template renders an index identifier into the shared scratch, zero-padded
// the way segment templates are compared.
func (s *System) template(id string) []byte {
	s.scratch = append(s.scratch[:0], id...)
	s.scratch = append(s.scratch, '/')
	return s.scratch
}

// blockTemplate renders a block identifier through the shared scratch and
// returns a private copy: the segment attach that consumes it may overlap
// the next caller.
func (s *System) blockTemplate(id string, number uint64) []byte {
	s.mu.Lock()
	s.scratch = append(s.scratch[:0], id...)
	s.scratch = append(s.scratch, '/')
	s.scratch = append(s.scratch, blockFileName(number)...)
	template := append([]byte(nil), s.scratch...)
	s.mu.Unlock()
	return template
}

// checkOrphanedBlocks warns about block files that the index table doesn't
// reference. Orphans appear when a crash lands between block-segment
// creation and table publication; they are harmless (the next append
// re-attaches them) but worth surfacing.
func (s *System) checkOrphanedBlocks(idx *Index) {
	names, err := filesys.ListFiles(idx.dir)
	if err != nil {
		s.log.Warnw("Failed to scan index directory for orphans",
			"identifier", idx.id, "error", err)
		return
	}

	expected := mapset.NewThreadUnsafeSet[string]("idx")
	for number := uint64(0); number < idx.tableCount(); number++ {
		expected.Add(blockFileName(number))
	}

	actual := mapset.NewThreadUnsafeSet[string]()
	for _, name := range names {
		actual.Add(name)
	}

	// One block beyond the table is the normal in-flight creation window.
	orphans := actual.Difference(expected)
	orphans.Remove(blockFileName(idx.tableCount()))
	if orphans.Cardinality() != 0 {
		s.log.Warnw("Orphaned block files present",
			"identifier", idx.id,
			"orphans", orphans.ToSlice(),
		)
	}
}

// Release returns an index handle. The writer key, if any, must have been
// released through Index.Close beforehand.
func (s *System) Release(idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSystemClosed
	}
	return s.releaseLocked(idx)
}

func (s *System) releaseLocked(idx *Index) error {
	if idx.refs == 0 {
		return errors.NewStorageError(
			nil, errors.ErrorCodeInternal, "Index released more times than opened",
		).WithIdentifier(idx.id)
	}
	idx.refs--
	s.handles--
	if idx.refs == 0 {
		if idx.key != 0 {
			return errors.NewStorageError(
				nil, errors.ErrorCodeWriteKey, "Index dropped with its writer key still held",
			).WithIdentifier(idx.id)
		}
		delete(s.indexes, idx.id)
		return idx.destroy()
	}
	return nil
}

// Close tears the system down. Every handle must have been released: a
// storage system never outlives its users, and never leaks indexes.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSystemClosed
	}
	if s.handles != 0 {
		return errors.NewStorageError(
			nil, errors.ErrorCodeInternal, "Storage system closed with outstanding index handles",
		).WithPath(s.path).WithDetail("handles", s.handles)
	}
	s.closed = true
	s.log.Infow("Storage system closed", "path", s.path)
	return nil
}

// blockFileName renders a block number as its file name: 16 lowercase hex
// digits, dense and 0-based.
func blockFileName(number uint64) string {
	return fmt.Sprintf("%016x", number)
}
