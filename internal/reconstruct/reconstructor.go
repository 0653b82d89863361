// Package reconstruct glues the level-1 history engine to the storage
// system: it seeds the engine from the orderbook snapshot preceding the
// reconstruction window, then streams stored volume updates through the
// engine's prepare/add/process cycle to materialize the heatmap and the
// bid/ask curves at any requested time.
package reconstruct

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/internal/history"
	"github.com/iamNilotpal/tickvault/internal/orderbook"
	"github.com/iamNilotpal/tickvault/internal/segment"
	"github.com/iamNilotpal/tickvault/internal/storage"
	"github.com/iamNilotpal/tickvault/pkg/errors"
)

// Config carries the reconstructor parameters.
type Config struct {
	System     *storage.System
	Venue      string
	Instrument string

	// Engine geometry, passed through to the history engine.
	TimeResolution  uint64
	PriceResolution float64
	HeatmapRows     uint64
	HeatmapColumns  uint64
	CurveLength     uint64 // Must be nonzero: streaming needs the horizon.

	// StartTime is the initial current time.
	StartTime uint64

	Logger *zap.SugaredLogger
}

// Reconstructor drives one level-1 history from one stored instrument. It
// holds the index read-only, at most one loaded block at a time, and the
// stream cursor between Advance calls.
type Reconstructor struct {
	sys  *storage.System
	idx  *storage.Index
	hist *history.History
	log  *zap.SugaredLogger

	work    []float64 // Snapshot derivation scratch.
	current uint64    // Time the engine was last advanced to.
}

// New opens the instrument's level-1 index, seeds the engine from the
// predecessor block's orderbook snapshot, and streams updates up to the
// configured start time.
func New(config *Config) (*Reconstructor, error) {
	if config == nil || config.System == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Reconstructor configuration is required",
		).WithField("config").WithRule("required")
	}
	if config.CurveLength == 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Reconstruction needs a nonzero curve length",
		).WithField("CurveLength").WithRule("nonzero")
	}
	if config.StartTime == 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Start time cannot be zero",
		).WithField("StartTime").WithRule("nonzero")
	}

	hist, err := history.New(&history.Config{
		TimeResolution:  config.TimeResolution,
		PriceResolution: config.PriceResolution,
		Rows:            config.HeatmapRows,
		Columns:         config.HeatmapColumns,
		CurveLength:     config.CurveLength,
		Logger:          config.Logger,
	})
	if err != nil {
		return nil, err
	}

	idx, _, err := config.System.Open(config.Venue, config.Instrument, storage.Level1, false)
	if err != nil {
		return nil, err
	}

	r := &Reconstructor{
		sys:  config.System,
		idx:  idx,
		hist: hist,
		log:  config.Logger,
		work: orderbook.NewWork(),
	}

	// The reconstruction window starts one heatmap span before the
	// requested time.
	span := config.HeatmapColumns * config.TimeResolution
	windowStart := uint64(1)
	if config.StartTime > span {
		windowStart = config.StartTime - span
	}

	if err := r.hist.Prepare(windowStart); err != nil {
		r.close()
		return nil, err
	}
	if err := r.seed(windowStart); err != nil {
		r.close()
		return nil, err
	}
	if err := r.stream(windowStart, config.StartTime); err != nil {
		r.close()
		return nil, err
	}
	r.current = config.StartTime
	return r, nil
}

// History exposes the driven engine: heatmap, curves, spreads.
func (r *Reconstructor) History() *history.History { return r.hist }

// CurrentTime returns the time the engine was last advanced to.
func (r *Reconstructor) CurrentTime() uint64 { return r.current }

// Advance moves the reconstruction forward to timeCur, streaming the
// stored updates in between and cleaning out-of-window state.
func (r *Reconstructor) Advance(timeCur uint64) error {
	if timeCur <= r.current {
		return errors.NewHistoryError(
			nil, errors.ErrorCodeTimeRegression, "Reconstruction time must grow monotonically",
		).WithTime(timeCur).WithCurrent(r.current)
	}
	if err := r.stream(r.current+1, timeCur); err != nil {
		return err
	}
	r.current = timeCur
	return nil
}

// Close releases the index handle.
func (r *Reconstructor) Close() error {
	return r.close()
}

func (r *Reconstructor) close() error {
	if r.idx == nil {
		return nil
	}
	err := r.idx.Close(0)
	r.idx = nil
	return err
}

// seed emits the predecessor snapshot of the window-start block as
// initial-mode volumes: the book state the streamed updates apply to.
func (r *Reconstructor) seed(windowStart uint64) error {
	blk, ok, err := r.idx.Load(windowStart)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing covers the window start: reconstruction begins from an
		// empty book and whatever the stream introduces.
		r.log.Infow("No block covers the reconstruction window start",
			"identifier", r.idx.Identifier(), "windowStart", windowStart)
		return nil
	}
	defer r.idx.Unload(blk)

	if blk.Number() == 0 {
		return nil
	}

	pred, err := r.idx.LoadNumber(blk.Number() - 1)
	if err != nil {
		return err
	}
	defer r.idx.Unload(pred)

	if _, err := pred.EnsureSnapshot(r.work, r.hist.PriceToTick); err != nil {
		return err
	}

	snap := pred.Snapshot()
	start := snap.Start()
	var prices, vols []float64
	for i, vol := range snap.Volumes() {
		if vol == 0 {
			continue
		}
		prices = append(prices, r.hist.TickToPrice(start+uint64(i)))
		vols = append(vols, vol)
	}
	if len(prices) == 0 {
		return nil
	}
	return r.hist.AddInitial(prices, vols)
}

// stream feeds stored rows of [from, target] through the engine's
// add/prepare/process cycle, then settles the engine at target.
func (r *Reconstructor) stream(from, target uint64) error {
	reader, ok, err := r.idx.Read(from, target)
	if err != nil {
		return err
	}
	if ok {
		defer reader.Close()
		for {
			cols, n, done, err := reader.Next()
			if err != nil {
				return err
			}
			if done || n == 0 {
				// n == 0 without done means the writer hasn't published
				// further rows: in reconstruction that is the end of the
				// stored stream.
				break
			}
			if err := r.feed(cols, target); err != nil {
				return err
			}
		}
	}

	if err := r.hist.Prepare(target); err != nil {
		return err
	}
	if err := r.hist.Process(); err != nil {
		return err
	}
	return r.hist.Clean()
}

// feed pushes one row batch, chunked so every update stays below the
// engine's acceptance horizon.
func (r *Reconstructor) feed(cols [][]byte, target uint64) error {
	times := segment.U64s(cols[storage.ColTime])
	prices := segment.F64s(cols[storage.ColL1Price])
	vols := segment.F64s(cols[storage.ColL1Vol])

	j := 0
	for j < len(times) {
		horizon := r.hist.AcceptanceEnd()
		k := j
		for k < len(times) && times[k] < horizon {
			k++
		}
		if k == j {
			// The next row sits at or beyond the horizon: advance the
			// current time to admit it. Rows are bounded by target, and
			// the nonzero curve span keeps the horizon ahead of it.
			if err := r.hist.Prepare(min(times[j], target)); err != nil {
				return err
			}
			continue
		}

		if err := r.hist.Add(times[j:k], prices[j:k], vols[j:k]); err != nil {
			return err
		}
		if err := r.hist.Prepare(min(times[k-1]+1, target)); err != nil {
			return err
		}
		if err := r.hist.Process(); err != nil {
			return err
		}
		j = k
	}
	return nil
}
