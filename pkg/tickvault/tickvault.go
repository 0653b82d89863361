// Package tickvault provides the public entry point of the market-data
// archive: a storage directory of append-only, time-indexed event streams
// per venue/instrument/level, and on-demand level-1 reconstruction of a
// time x price heatmap plus forward bid/ask curves from those streams.
//
// An Instance wires the configured options through the storage system and
// hands out index handles for ingestion and reconstructors for reading.
// The heavy lifting lives in the internal packages; this façade only
// composes them.
package tickvault

import (
	"github.com/iamNilotpal/tickvault/internal/market"
	"github.com/iamNilotpal/tickvault/internal/reconstruct"
	"github.com/iamNilotpal/tickvault/internal/storage"
	"github.com/iamNilotpal/tickvault/pkg/logger"
	"github.com/iamNilotpal/tickvault/pkg/options"
)

// Level re-exports the storage level type for callers of the façade.
type Level = storage.Level

// The supported row schemas.
const (
	Level0 = storage.Level0
	Level1 = storage.Level1
	Level2 = storage.Level2
)

// Instance represents one attached archive.
type Instance struct {
	options  *options.Options
	system   *storage.System
	registry *market.Registry
}

// NewInstance initializes (idempotently) and attaches the archive
// directory configured through the options.
func NewInstance(service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	if err := storage.InitDir(defaultOpts.DataDir); err != nil {
		return nil, err
	}
	system, err := storage.Attach(&storage.Config{
		Path:   defaultOpts.DataDir,
		Test:   defaultOpts.Test,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	return &Instance{
		options:  &defaultOpts,
		system:   system,
		registry: market.NewRegistry(),
	}, nil
}

// Registry returns the venue/currency registry.
func (i *Instance) Registry() *market.Registry { return i.registry }

// Open returns a handle on an instrument's index at the given level. With
// write set, the returned key is the nonzero writer key required by
// appends; the caller passes it back to Index.Close.
func (i *Instance) Open(instrument market.Instrument, level Level, write bool) (*storage.Index, uint64, error) {
	return i.system.Open(instrument.Venue.Symbol, instrument.Identifier(), level, write)
}

// Reconstruct builds a level-1 reconstructor for an instrument, seeded and
// streamed up to startTime with the configured geometry.
func (i *Instance) Reconstruct(instrument market.Instrument, startTime uint64) (*reconstruct.Reconstructor, error) {
	history := i.options.HistoryOptions
	return reconstruct.New(&reconstruct.Config{
		System:          i.system,
		Venue:           instrument.Venue.Symbol,
		Instrument:      instrument.Identifier(),
		TimeResolution:  history.TimeResolution,
		PriceResolution: history.PriceResolution,
		HeatmapRows:     history.HeatmapRows,
		HeatmapColumns:  history.HeatmapColumns,
		CurveLength:     history.CurveLength,
		StartTime:       startTime,
		Logger:          logger.New(service(instrument)),
	})
}

// Close shuts the archive down. Every index handle and reconstructor must
// have been closed first.
func (i *Instance) Close() error {
	return i.system.Close()
}

func service(instrument market.Instrument) string {
	return "reconstruct:" + instrument.String()
}
