package history

// slideCurves moves the bid/ask curves left by shift buckets when the
// column grid advances, filling the vacated trailing cells with their
// side's sentinel. The curve start aid follows the grid.
func (h *History) slideCurves(shift uint64) {
	length := h.curveLen
	h.curveAID += shift

	if shift >= length {
		for i := range h.bidCurve {
			h.bidCurve[i] = noBid
			h.askCurve[i] = noAsk
		}
		return
	}

	keep := length - shift
	copy(h.bidCurve, h.bidCurve[shift:])
	copy(h.askCurve, h.askCurve[shift:])
	for i := keep; i < length; i++ {
		h.bidCurve[i] = noBid
		h.askCurve[i] = noAsk
	}
}
