package history

// Absent-side sentinels, shared by the best-price accessors and the curve
// cells: an unwritten bid cell reads 0, an unwritten ask cell reads
// all-ones, so both behave as identities under the per-side extremum.
const (
	noBid uint64 = 0
	noAsk uint64 = ^uint64(0)
)

func bestBidValue(t *Tick) uint64 {
	if t == nil {
		return noBid
	}
	return t.value
}

func bestAskValue(t *Tick) uint64 {
	if t == nil {
		return noAsk
	}
	return t.value
}

// updateSpread refreshes one best bid/ask pair after tck's volume changed
// under the given accessor. It reports which sides changed.
//
// A volume transitioning to zero vacates its side: when tck was the best,
// the sorted tick map is scanned away from the spread for the next
// non-zero candidate, warning when the opposite side appears on the way
// (crossed data is logged and processed, never raised). A volume
// transitioning to non-zero adopts tck as best iff it improves its side.
func (h *History) updateSpread(tck *Tick, vol func(*Tick) float64, bid, ask **Tick) (bidUpd, askUpd bool) {
	v := vol(tck)

	if v == 0 {
		switch tck {
		case *bid:
			bidUpd = true
			*bid = h.scanDown(tck, vol)
		case *ask:
			askUpd = true
			*ask = h.scanUp(tck, vol)
		}
		return bidUpd, askUpd
	}

	if v < 0 {
		if *bid == nil || (*bid).value < tck.value {
			*bid = tck
			bidUpd = true
		}
	} else {
		if *ask == nil || (*ask).value > tck.value {
			*ask = tck
			askUpd = true
		}
	}
	return bidUpd, askUpd
}

// scanDown finds the best bid below a vacated one: the first lower tick
// with a negative volume.
func (h *History) scanDown(from *Tick, vol func(*Tick) float64) *Tick {
	var found *Tick
	h.ticks.DescendLessOrEqual(&Tick{value: from.value}, func(t *Tick) bool {
		if t.value >= from.value {
			return true
		}
		v := vol(t)
		if v > 0 {
			h.log.Warnw("Ask found below the previous best bid",
				"tick", t.value, "previousBest", from.value)
			return true
		}
		if v < 0 {
			found = t
			return false
		}
		return true
	})
	return found
}

// scanUp finds the best ask above a vacated one: the first higher tick with
// a positive volume.
func (h *History) scanUp(from *Tick, vol func(*Tick) float64) *Tick {
	var found *Tick
	h.ticks.AscendGreaterOrEqual(&Tick{value: from.value}, func(t *Tick) bool {
		if t.value <= from.value {
			return true
		}
		v := vol(t)
		if v < 0 {
			h.log.Warnw("Bid found above the previous best ask",
				"tick", t.value, "previousBest", from.value)
			return true
		}
		if v > 0 {
			found = t
			return false
		}
		return true
	})
	return found
}

// updateBestCurrent refreshes the current-time spread, which drives
// heatmap anchoring.
func (h *History) updateBestCurrent(tck *Tick) {
	h.updateSpread(tck, func(t *Tick) float64 { return t.volCur },
		&h.bestCurBid, &h.bestCurAsk)
}

// updateBestMax refreshes the maximal-time spread, which drives the
// bid/ask curves, and emits curve cells when a side changed.
func (h *History) updateBestMax(tck *Tick, emit bool) {
	prevBid, prevAsk := h.bestMaxBid, h.bestMaxAsk
	bidUpd, askUpd := h.updateSpread(tck, func(t *Tick) float64 { return t.volMax },
		&h.bestMaxBid, &h.bestMaxAsk)
	if !emit {
		return
	}

	if bidUpd {
		h.emitCurve(h.bidCurve, &h.bidAID,
			bestBidValue(prevBid), bestBidValue(h.bestMaxBid), tck.timeMax, true)
	}
	if askUpd {
		h.emitCurve(h.askCurve, &h.askAID,
			bestAskValue(prevAsk), bestAskValue(h.bestMaxAsk), tck.timeMax, false)
	}
}

// emitCurve records a best-price change at time t into a curve:
//
//   - The previous best propagates forward from the last emission aid
//     through aid(t-1): those buckets closed with the old best standing.
//   - The bucket containing aid(t) keeps the aggressive per-side extremum
//     (max for bids, min for asks) of its existing value and the new best;
//     a bucket entered for the first time is overwritten outright.
//
// Cells beyond the last emission keep their sentinel until written.
func (h *History) emitCurve(curve []uint64, lastAID *uint64, prevVal, curVal uint64, t uint64, isBid bool) {
	prpAID := (t - 1) / h.res
	newAID := t / h.res

	if h.curveAID <= prpAID {
		// The last emission's own cell keeps its extremum; propagation
		// fills the buckets the previous best reigned over after it.
		start := max(h.curveAID, *lastAID+1)
		for aid := start; aid <= prpAID; aid++ {
			if i := aid - h.curveAID; i < h.curveLen {
				curve[i] = prevVal
			}
		}
	}

	if newAID >= h.curveAID {
		if i := newAID - h.curveAID; i < h.curveLen {
			switch {
			case prpAID != newAID:
				curve[i] = curVal
			case isBid && curve[i] < curVal:
				curve[i] = curVal
			case !isBid && curve[i] > curVal:
				curve[i] = curVal
			}
		}
	}

	*lastAID = newAID
}
