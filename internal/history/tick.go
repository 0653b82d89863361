package history

// Update is one per-tick volume observation from the stream. An update
// belongs to exactly one tick; it sits in the engine's global time-ordered
// queue from creation to cleanup, and in its tick's processed list from the
// process pass that makes it visible at the current time until cleanup.
type Update struct {
	tick *Tick
	vol  float64
	time uint64
}

// Tick is one price level tracked by the engine. Its processed updates are
// kept in time-ascending order; walking them backward from the tail yields
// the volume in effect at any past instant, with the start volume filling
// the tail before the first update.
type Tick struct {
	value    uint64
	volStart float64 // Volume before any retained update.
	volCur   float64 // Volume at the current time.
	volMax   float64 // Volume at the most recent update.
	timeMax  uint64  // Time of the most recent update, 0 when none.

	updates []*Update // Processed updates, time-ascending.
}

// Value returns the tick's integer price level.
func (t *Tick) Value() uint64 { return t.value }

// CurrentVolume returns the tick's volume at the current time.
func (t *Tick) CurrentVolume() float64 { return t.volCur }

// StartVolume returns the volume before any retained update.
func (t *Tick) StartVolume() float64 { return t.volStart }

// MaxVolume returns the volume at the tick's most recent update.
func (t *Tick) MaxVolume() float64 { return t.volMax }

// LatestUpdateTime returns the time of the tick's most recent update, zero
// when none was ever recorded.
func (t *Tick) LatestUpdateTime() uint64 { return t.timeMax }

// EachProcessed calls fn for every processed update in time order. Used by
// verification to recompute heatmap cells independently.
func (t *Tick) EachProcessed(fn func(time uint64, vol float64)) {
	for _, upd := range t.updates {
		fn(upd.time, upd.vol)
	}
}

// idle reports whether the tick carries no information at all and may be
// destroyed: no retained updates and flat zero volumes.
func (t *Tick) idle() bool {
	return len(t.updates) == 0 &&
		t.volStart == 0 && t.volCur == 0 && t.volMax == 0
}

// tickLess orders ticks by value for the engine's sorted map.
func tickLess(a, b *Tick) bool {
	return a.value < b.value
}
