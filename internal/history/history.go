// Package history provides the incremental level-1 reconstruction engine:
// a moving time x price heatmap over the recent past, and a forward-looking
// best-bid/best-ask curve, both computed from a monotonically arriving
// stream of per-tick volume updates.
//
// The heatmap spans the last W time buckets of width R by K adjacent tick
// rows centered on an anchor tick; the bid/ask curves span the next L
// buckets strictly after the current time. Buckets are keyed by an absolute
// index ("aid"): aid(t) = t / R.
//
// Each ingest cycle transitions through prepare -> add* -> process ->
// clean?: prepare advances the current time and defers any column shift;
// add records updates at or beyond the last observed time (visible at the
// maximal time immediately, feeding the curves); process makes updates
// older than the current time visible at the current time, re-anchors the
// heatmap if columns shifted, and regenerates the affected cells; clean
// drops updates too old to influence any retained column.
//
// Re-anchoring is deliberately synchronous with the column grid: the anchor
// tick is re-chosen only when the grid shifts, once per R, so that everything
// still overlapping the previous window is reused instead of regenerated.
package history

import (
	stdErrors "errors"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/iamNilotpal/tickvault/pkg/errors"
)

var (
	ErrNotPrepared = stdErrors.New("operation failed: history has no current time yet")
)

// Config carries the engine geometry.
type Config struct {
	// TimeResolution is the bucket width R shared by heatmap columns and
	// curve cells.
	TimeResolution uint64

	// PriceResolution is the price of one tick: prices are divided by it
	// and truncated into integer tick values.
	PriceResolution float64

	// Rows is the heatmap tick-row count K. Must be even.
	Rows uint64

	// Columns is the heatmap time-bucket count W.
	Columns uint64

	// CurveLength is the forward bid/ask curve length L in buckets.
	// Zero disables the curves.
	CurveLength uint64

	Logger *zap.SugaredLogger
}

// History is the engine state. Constructed empty with a current time of
// zero, advanced only forward.
type History struct {
	log *zap.SugaredLogger

	res      uint64  // R
	rows     uint64  // K
	cols     uint64  // W
	curveLen uint64  // L
	tickRate float64 // Ticks per price unit (1 / price resolution).

	hmpSpan   uint64 // W * R: the heatmap's retained time span.
	curveSpan uint64 // L * R

	ticks *btree.BTreeG[*Tick] // Ticks ordered by value.

	queue []*Update // Global time-ordered update queue.
	qHead int       // First retained (uncleaned) entry.
	qProc int       // First unprocessed entry.

	timeCur uint64 // Current time.
	timeHmp uint64 // Heatmap end: current rounded up to the bucket grid.
	timeMax uint64 // Most recent observed update time.
	timeEnd uint64 // End of acceptance: current + L*R.

	bestCurBid *Tick // Best bid at the current time.
	bestCurAsk *Tick // Best ask at the current time.
	bestMaxBid *Tick // Best bid at the maximal time.
	bestMaxAsk *Tick // Best ask at the maximal time.

	anchor  uint64 // Heatmap tick reference, vertical center.
	tickMin uint64 // Heatmap tick range [tickMin, tickMax).
	tickMax uint64

	curveAID uint64 // AID of the first curve cell.
	bidAID   uint64 // AID of the last bid-curve emission.
	askAID   uint64 // AID of the last ask-curve emission.

	pendingShift uint64 // Columns to shift at the next process.

	heatmap  []float64 // Column-major: cell (col, row) at col*rows+row.
	bidCurve []uint64
	askCurve []uint64
}

// New constructs an empty history with a current time of zero.
func New(config *Config) (*History, error) {
	if config == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "History configuration is required",
		).WithField("config").WithRule("required")
	}
	if config.TimeResolution == 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Time resolution cannot be zero",
		).WithField("TimeResolution").WithRule("nonzero")
	}
	if config.Rows == 0 || config.Columns == 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Heatmap dimensions cannot be zero",
		).WithField("Rows/Columns").WithRule("nonzero")
	}
	if config.Rows%2 != 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Heatmap row count must be even",
		).WithField("Rows").WithRule("even").WithProvided(config.Rows)
	}
	if config.PriceResolution < 0.001 {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Price resolution too small",
		).WithField("PriceResolution").WithRule("range").
			WithProvided(config.PriceResolution).WithExpected(">= 0.001")
	}

	h := &History{
		log:       config.Logger,
		res:       config.TimeResolution,
		rows:      config.Rows,
		cols:      config.Columns,
		curveLen:  config.CurveLength,
		tickRate:  1 / config.PriceResolution,
		hmpSpan:   config.Columns * config.TimeResolution,
		curveSpan: config.CurveLength * config.TimeResolution,
		ticks:     btree.NewG(16, tickLess),
		anchor:    config.Rows / 2,
		heatmap:   make([]float64, config.Rows*config.Columns),
	}
	if config.CurveLength > 0 {
		h.bidCurve = make([]uint64, config.CurveLength)
		h.askCurve = make([]uint64, config.CurveLength)
		for i := range h.askCurve {
			h.askCurve[i] = noAsk
		}
	}
	return h, nil
}

// PriceToTick converts a price into its integer tick value.
func (h *History) PriceToTick(price float64) uint64 {
	return uint64(price * h.tickRate)
}

// TickToPrice converts a tick value back into a price.
func (h *History) TickToPrice(tick uint64) float64 {
	return float64(tick) / h.tickRate
}

// Prepare advances the current time. When the bucket grid moves, the column
// shift is deferred until process (the re-anchor height needs every update
// up to the current time), the bid/ask curves slide immediately, and the
// acceptance horizon moves to current + L*R.
func (h *History) Prepare(timeCur uint64) error {
	if timeCur == 0 || timeCur < h.timeCur {
		return errors.NewHistoryError(
			nil, errors.ErrorCodeTimeRegression, "Current time must grow monotonically",
		).WithTime(timeCur).WithCurrent(h.timeCur)
	}
	h.timeCur = timeCur

	h.timeEnd = timeCur + h.curveSpan

	newHmp := roundUpTo(timeCur, h.res)
	if newHmp > h.timeHmp {
		shift := (newHmp - h.timeHmp) / h.res
		if h.curveLen > 0 {
			h.slideCurves(shift)
		}
		h.pendingShift += shift
		h.timeHmp = newHmp
	}
	return nil
}

// AddInitial seeds previously-unknown ticks with their resting volumes. The
// volumes become the ticks' start volumes; no updates are recorded. Only
// legal before any streamed update has been observed.
func (h *History) AddInitial(prices, vols []float64) error {
	if h.timeCur == 0 {
		return ErrNotPrepared
	}
	if h.timeMax != 0 {
		return errors.NewHistoryError(
			nil, errors.ErrorCodeTimeRegression, "Initial volumes after streamed updates",
		).WithCurrent(h.timeCur).WithHorizon(h.timeMax)
	}
	if len(prices) != len(vols) {
		return errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Price and volume counts differ",
		).WithField("prices/vols").WithProvided(len(prices)).WithExpected(len(vols))
	}

	for i, price := range prices {
		tick := h.PriceToTick(price)
		if _, exists := h.ticks.Get(&Tick{value: tick}); exists {
			return errors.NewHistoryError(
				nil, errors.ErrorCodeTickExists, "Initial volume for an already-known tick",
			).WithTick(tick)
		}

		tck := &Tick{value: tick}
		vol := vols[i]
		tck.volStart = vol
		tck.volCur = vol
		tck.volMax = vol
		h.ticks.ReplaceOrInsert(tck)

		h.updateBestCurrent(tck)
		if h.curveLen > 0 {
			// Seed the maximal-time spread too, without curve emission:
			// there is no update time to attribute cells to yet.
			h.updateBestMax(tck, false)
		}
	}
	return nil
}

// Add records streamed volume updates. Times must be non-decreasing across
// calls, strictly below the acceptance horizon, and non-decreasing per
// tick. Updates become visible at the maximal time immediately (feeding the
// bid/ask curves) and at the current time only once processed.
func (h *History) Add(times []uint64, prices, vols []float64) error {
	if h.timeCur == 0 {
		return ErrNotPrepared
	}
	if len(times) != len(prices) || len(times) != len(vols) {
		return errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Update column counts differ",
		).WithField("times/prices/vols").WithProvided(len(times))
	}

	for i, tm := range times {
		if tm == 0 || tm < h.timeMax {
			return errors.NewHistoryError(
				nil, errors.ErrorCodeTimeRegression, "Update time below the last observed time",
			).WithTime(tm).WithHorizon(h.timeMax)
		}
		if tm >= h.timeEnd {
			return errors.NewHistoryError(
				nil, errors.ErrorCodeTimeBeyondAcceptance, "Update time beyond the acceptance horizon",
			).WithTime(tm).WithHorizon(h.timeEnd).WithCurrent(h.timeCur)
		}

		tck := h.getOrCreateTick(h.PriceToTick(prices[i]))
		if tm < tck.timeMax {
			return errors.NewHistoryError(
				nil, errors.ErrorCodeTimeRegression, "Update time below the tick's latest update",
			).WithTick(tck.value).WithTime(tm).WithHorizon(tck.timeMax)
		}

		upd := &Update{tick: tck, vol: vols[i], time: tm}
		h.queue = append(h.queue, upd)
		tck.timeMax = tm
		tck.volMax = vols[i]
		h.timeMax = tm

		if h.curveLen > 0 {
			h.updateBestMax(tck, true)
		}
	}
	return nil
}

// Process makes every queued update older than the current time visible at
// the current time, then re-anchors and regenerates the heatmap: the
// pending shifted columns plus the current column for rows that stay in
// range, all columns for rows that entered it.
func (h *History) Process() error {
	if h.timeCur == 0 {
		return ErrNotPrepared
	}

	for h.qProc < len(h.queue) && h.queue[h.qProc].time < h.timeCur {
		upd := h.queue[h.qProc]
		tck := upd.tick
		tck.updates = append(tck.updates, upd)
		tck.volCur = upd.vol
		h.updateBestCurrent(tck)
		h.qProc++
	}

	prevMin, prevMax := h.tickMin, h.tickMax
	writeCols := min(h.pendingShift+1, h.cols)

	if h.pendingShift > 0 {
		newAnchor := h.computeAnchor()
		h.shiftHeatmap(h.pendingShift, int64(newAnchor)-int64(h.anchor))
		h.anchor = newAnchor
		h.pendingShift = 0
		h.tickMin = newAnchor - h.rows/2
		h.tickMax = newAnchor + h.rows/2
	}

	for row := int64(h.rows) - 1; row >= 0; row-- {
		val := h.tickMin + uint64(row)
		full := !(prevMin <= val && val < prevMax)
		n := writeCols
		if full {
			n = h.cols
		}

		tck, _ := h.ticks.Get(&Tick{value: val})
		h.regenRow(uint64(row), n, tck)
	}
	return nil
}

// Clean deletes every queued update whose time is at or before the start of
// the oldest retained column. Deleted updates fold into their tick's start
// volume; a tick left with no updates and flat zero volumes is destroyed.
func (h *History) Clean() error {
	if h.timeCur == 0 {
		return ErrNotPrepared
	}
	if h.timeHmp <= h.hmpSpan {
		return nil
	}
	hmpStart := h.timeHmp - h.hmpSpan

	for h.qHead < h.qProc && h.queue[h.qHead].time <= hmpStart {
		upd := h.queue[h.qHead]
		tck := upd.tick
		if len(tck.updates) == 0 || tck.updates[0] != upd {
			return errors.NewHistoryError(
				nil, errors.ErrorCodeInternal, "Cleanup found an update out of its tick's order",
			).WithTick(tck.value).WithTime(upd.time)
		}
		tck.updates = tck.updates[1:]
		tck.volStart = upd.vol
		h.queue[h.qHead] = nil
		h.qHead++

		if tck.timeMax <= hmpStart && tck.idle() {
			h.ticks.Delete(tck)
		}
	}

	// Compact the queue once the dead prefix dominates.
	if h.qHead > len(h.queue)/2 && h.qHead > 64 {
		n := copy(h.queue, h.queue[h.qHead:])
		h.queue = h.queue[:n]
		h.qProc -= h.qHead
		h.qHead = 0
	}
	return nil
}

// getOrCreateTick returns the tick at the given value, creating an empty
// one when unknown.
func (h *History) getOrCreateTick(value uint64) *Tick {
	if tck, ok := h.ticks.Get(&Tick{value: value}); ok {
		return tck
	}
	tck := &Tick{value: value}
	h.ticks.ReplaceOrInsert(tck)
	return tck
}

// computeAnchor re-chooses the heatmap tick reference from the current
// best bid and ask: their midpoint, or whichever side exists, or the
// previous reference when the book is empty; clamped so the bottom row
// stays at a non-negative tick.
func (h *History) computeAnchor() uint64 {
	bid, ask := h.bestCurBid, h.bestCurAsk

	var ref uint64
	switch {
	case bid != nil && ask != nil:
		ref = (bid.value + ask.value) / 2
	case bid == nil && ask == nil:
		ref = h.anchor
		h.log.Warnw("Orderbook empty at re-anchor, keeping previous reference",
			"anchor", ref)
	case bid != nil:
		ref = bid.value
		h.log.Warnw("No asks in orderbook at re-anchor", "anchor", ref)
	default:
		ref = ask.value
		h.log.Warnw("No bids in orderbook at re-anchor", "anchor", ref)
	}

	if low := h.rows / 2; ref < low {
		h.log.Warnw("Anchor fell below half the heatmap, offsetting",
			"anchor", ref, "min", low)
		ref = low
	}
	return ref
}

/*
 * Accessors.
 */

// CurrentTime returns the engine's current time.
func (h *History) CurrentTime() uint64 { return h.timeCur }

// HeatmapEnd returns the end of the newest heatmap column.
func (h *History) HeatmapEnd() uint64 { return h.timeHmp }

// MaxTime returns the most recent observed update time.
func (h *History) MaxTime() uint64 { return h.timeMax }

// AcceptanceEnd returns the horizon below which updates are accepted.
func (h *History) AcceptanceEnd() uint64 { return h.timeEnd }

// Anchor returns the heatmap tick reference.
func (h *History) Anchor() uint64 { return h.anchor }

// TickRange returns the heatmap's tick row range [min, max).
func (h *History) TickRange() (uint64, uint64) { return h.tickMin, h.tickMax }

// Heatmap returns the heatmap array, column-major: cell (col, row) sits at
// col*Rows+row. Row r covers tick tickMin+r; column c covers the time range
// [heatmapEnd - (W-c)*R, heatmapEnd - (W-c-1)*R).
func (h *History) Heatmap() []float64 { return h.heatmap }

// HeatmapAt returns the heatmap cell at (col, row).
func (h *History) HeatmapAt(col, row uint64) float64 {
	return h.heatmap[col*h.rows+row]
}

// BidCurve returns the forward bid curve, nil when disabled. Cell i covers
// aid CurveAID()+i; unwritten cells hold the zero sentinel.
func (h *History) BidCurve() []uint64 { return h.bidCurve }

// AskCurve returns the forward ask curve, nil when disabled. Unwritten
// cells hold the all-ones sentinel.
func (h *History) AskCurve() []uint64 { return h.askCurve }

// CurveAID returns the aid of the first curve cell.
func (h *History) CurveAID() uint64 { return h.curveAID }

// BestCurrent returns the best bid and ask tick values at the current time,
// with the absent-side sentinels (0 for bid, all-ones for ask).
func (h *History) BestCurrent() (uint64, uint64) {
	return bestBidValue(h.bestCurBid), bestAskValue(h.bestCurAsk)
}

// BestMax returns the best bid and ask tick values at the maximal time.
func (h *History) BestMax() (uint64, uint64) {
	return bestBidValue(h.bestMaxBid), bestAskValue(h.bestMaxAsk)
}

// RetainedUpdates calls fn for every retained update in time order. Used by
// verification to recompute cells independently.
func (h *History) RetainedUpdates(fn func(tick uint64, vol float64, time uint64)) {
	for i := h.qHead; i < len(h.queue); i++ {
		upd := h.queue[i]
		fn(upd.tick.value, upd.vol, upd.time)
	}
}

// LookupTick returns a tracked tick by value.
func (h *History) LookupTick(value uint64) (*Tick, bool) {
	return h.ticks.Get(&Tick{value: value})
}

// roundUpTo rounds t up to the next multiple of res.
func roundUpTo(t, res uint64) uint64 {
	t += res - 1
	return t - t%res
}
