// Package options provides data structures and functions for configuring
// the tickvault archive. It defines the parameters that control the storage
// directory, the per-level test/production sizing mode, and the level-1
// reconstruction geometry (heatmap dimensions, bucket width, curve length).
package options

import (
	"strings"
)

// Defines configurable parameters for the level-1 reconstruction engine.
// These control the geometry of the heatmap and of the forward bid/ask
// curves; they have no influence on what is stored on disk.
type historyOptions struct {
	// Width of a heatmap time bucket, in the archive's time unit.
	// Heatmap columns and curve cells both use this resolution.
	//
	// Default: 10_000_000 (ten seconds at microsecond timestamps)
	TimeResolution uint64 `json:"timeResolution"`

	// Price of a single tick. Prices are divided by this factor and
	// truncated to obtain integer tick values.
	//
	// Default: 0.001
	PriceResolution float64 `json:"priceResolution"`

	// Number of tick rows in the heatmap. Must be even: the anchor tick
	// sits at the vertical center.
	//
	// Default: 100
	HeatmapRows uint64 `json:"heatmapRows"`

	// Number of time-bucket columns in the heatmap.
	//
	// Default: 100
	HeatmapColumns uint64 `json:"heatmapColumns"`

	// Number of forward time buckets covered by the bid/ask curves.
	// Zero disables the curves.
	//
	// Default: 200
	CurveLength uint64 `json:"curveLength"`
}

// Defines the configuration parameters for a tickvault instance.
type Options struct {
	// Specifies the storage directory holding the archive: the "stg"
	// marker plus one subtree per venue/instrument/level index.
	//
	// Default: "/var/lib/tickvault"
	DataDir string `json:"dataDir"`

	// Switches blocks and index tables to their reduced test capacities
	// (3-row blocks, 2000-entry tables) so that block rollover and table
	// exhaustion are reachable by tests.
	//
	// Default: false
	Test bool `json:"test"`

	// Configures the level-1 reconstruction geometry.
	HistoryOptions *historyOptions `json:"historyOptions"`
}

// OptionFunc is a function type that modifies the archive's configuration.
type OptionFunc func(*Options)

// WithDataDir sets the storage directory for the archive.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithTestSizing switches blocks and index tables to test capacities.
func WithTestSizing() OptionFunc {
	return func(o *Options) {
		o.Test = true
	}
}

// WithTimeResolution sets the heatmap/curve bucket width.
func WithTimeResolution(resolution uint64) OptionFunc {
	return func(o *Options) {
		if resolution > 0 {
			o.HistoryOptions.TimeResolution = resolution
		}
	}
}

// WithPriceResolution sets the price of a single tick.
func WithPriceResolution(resolution float64) OptionFunc {
	return func(o *Options) {
		if resolution >= MinPriceResolution {
			o.HistoryOptions.PriceResolution = resolution
		}
	}
}

// WithHeatmapSize sets the heatmap dimensions. Row counts must be even;
// odd values are ignored.
func WithHeatmapSize(rows, columns uint64) OptionFunc {
	return func(o *Options) {
		if rows > 0 && rows%2 == 0 {
			o.HistoryOptions.HeatmapRows = rows
		}
		if columns > 0 {
			o.HistoryOptions.HeatmapColumns = columns
		}
	}
}

// WithCurveLength sets the forward bid/ask curve length. Zero disables the
// curves.
func WithCurveLength(length uint64) OptionFunc {
	return func(o *Options) {
		o.HistoryOptions.CurveLength = length
	}
}
