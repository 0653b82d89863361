package options

const (
	// Specifies the default base directory where the archive stores its data.
	DefaultDataDir = "/var/lib/tickvault"

	// Default width of a heatmap time bucket (ten seconds at microsecond
	// timestamps).
	DefaultTimeResolution uint64 = 10_000_000

	// Default price of a single tick.
	DefaultPriceResolution = 0.001

	// Smallest accepted tick price. Below this, price-to-tick conversion
	// loses too much precision to be meaningful.
	MinPriceResolution = 0.001

	// Default heatmap dimensions.
	DefaultHeatmapRows    uint64 = 100
	DefaultHeatmapColumns uint64 = 100

	// Default forward bid/ask curve length, in buckets.
	DefaultCurveLength uint64 = 200
)

// Holds the default configuration settings for a tickvault instance.
var defaultOptions = Options{
	DataDir: DefaultDataDir,
	Test:    false,
	HistoryOptions: &historyOptions{
		TimeResolution:  DefaultTimeResolution,
		PriceResolution: DefaultPriceResolution,
		HeatmapRows:     DefaultHeatmapRows,
		HeatmapColumns:  DefaultHeatmapColumns,
		CurveLength:     DefaultCurveLength,
	},
}

// NewDefaultOptions returns a copy of the default options. The nested
// history options are copied as well so callers can mutate freely.
func NewDefaultOptions() Options {
	opts := defaultOptions
	history := *defaultOptions.HistoryOptions
	opts.HistoryOptions = &history
	return opts
}
