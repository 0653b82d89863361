package orderbook

// Add copies the intersection of two tick-aligned volume windows: src of
// srcLen ticks starting at srcStart into dst of dstLen ticks starting at
// dstStart. Elements of dst outside the intersection are left untouched.
// It reports whether any src element was dropped for falling outside dst.
func Add(dst []float64, dstStart, dstLen uint64, src []float64, srcStart, srcLen uint64) bool {
	dstEnd := dstStart + dstLen
	srcEnd := srcStart + srcLen

	itsStart := max(dstStart, srcStart)
	itsEnd := min(dstEnd, srcEnd)

	partial := itsStart != srcStart || itsEnd != srcEnd
	if itsEnd <= itsStart {
		return partial
	}

	copy(dst[itsStart-dstStart:itsEnd-dstStart], src[itsStart-srcStart:itsEnd-srcStart])
	return partial
}

// AddSnapshot overlays a snapshot onto a working window starting at
// bufStart. It reports whether any snapshot element fell outside the window.
func AddSnapshot(buf []float64, bufStart uint64, s Snapshot) bool {
	return Add(buf, bufStart, uint64(len(buf)), s.Volumes(), s.Start(), SnapshotTicks)
}

// ExtractSnapshot fills a snapshot from a working window starting at
// bufStart. The snapshot's start tick must be set beforehand. It reports
// whether any snapshot element had no counterpart in the window.
func ExtractSnapshot(buf []float64, bufStart uint64, s Snapshot) bool {
	return Add(s.Volumes(), s.Start(), SnapshotTicks, buf, bufStart, uint64(len(buf)))
}

// AddUpdates scatters per-tick volume updates into a working window starting
// at bufStart. Updates outside the window are dropped silently; the window
// is sized so that only absurd price moves fall out. It returns the minimal
// and maximal updated tick values, window-bound or not.
func AddUpdates(buf []float64, bufStart uint64, ticks []uint64, vols []float64) (tickMin, tickMax uint64) {
	bufEnd := bufStart + uint64(len(buf))
	tickMin = ^uint64(0)
	tickMax = 0
	for i, tick := range ticks {
		tickMin = min(tickMin, tick)
		tickMax = max(tickMax, tick)
		if bufStart <= tick && tick < bufEnd {
			buf[tick-bufStart] = vols[i]
		}
	}
	return tickMin, tickMax
}

// BestWorst scans the tick range [from, to) of a working window starting at
// bufStart and computes, in a single pass, the best bid (highest bid tick),
// worst bid (lowest bid tick), best ask (lowest ask tick) and worst ask
// (highest ask tick). Absent sides report the NoBid/NoAsk sentinels. The
// inverted flag reports that some bid sits above some ask in tick order.
func BestWorst(buf []float64, bufStart, from, to uint64) (bestBid, worstBid, bestAsk, worstAsk uint64, inverted bool) {
	bufEnd := bufStart + uint64(len(buf))
	from = max(from, bufStart)
	to = min(to, bufEnd)

	bestBid, worstBid = NoBid, NoBid
	bestAsk, worstAsk = NoAsk, NoAsk
	var sawBid, sawAsk bool

	for tick := from; tick < to; tick++ {
		vol := buf[tick-bufStart]
		if vol == 0 {
			continue
		}

		if !IsAsk(vol) {
			if !sawBid {
				worstBid = tick
				sawBid = true
			}
			bestBid = tick
			if sawAsk {
				// A bid above an ask: crossed book in the source data.
				inverted = true
			}
		} else {
			if !sawAsk {
				bestAsk = tick
				sawAsk = true
			}
			worstAsk = tick
		}
	}
	return bestBid, worstBid, bestAsk, worstAsk, inverted
}

// Anchor chooses the snapshot anchor tick from the best bid and ask of a
// scanned range: the midpoint when both sides exist, the existing side when
// only one does, the previous anchor when neither does. The result is
// clamped so a half-window below it stays at non-negative ticks.
func Anchor(bestBid, bestAsk, prev, size uint64) uint64 {
	anchorMin := size / 2

	var anchor uint64
	switch {
	case bestBid == NoBid && bestAsk == NoAsk:
		anchor = prev
	case bestBid == NoBid:
		anchor = bestAsk
	case bestAsk == NoAsk:
		anchor = bestBid
	default:
		anchor = (bestBid + bestAsk) / 2
	}

	return max(anchor, anchorMin)
}
