package errors

// HistoryError is a specialized error type for the level-1 history engine.
// It embeds baseError to inherit the standard error functionality, then adds
// the tick and times involved, which is what you need to reproduce a failed
// ingest step.
type HistoryError struct {
	*baseError
	tick    uint64 // Tick value involved, when tick-specific.
	time    uint64 // Offending time.
	current uint64 // Engine current time when the error occurred.
	horizon uint64 // Relevant bound (end of acceptance, max observed, ...).
}

// NewHistoryError creates a new history-specific error.
func NewHistoryError(err error, code ErrorCode, msg string) *HistoryError {
	return &HistoryError{baseError: NewBaseError(err, code, msg)}
}

// WithTick records which tick was involved.
func (he *HistoryError) WithTick(tick uint64) *HistoryError {
	he.tick = tick
	return he
}

// WithTime records the offending time.
func (he *HistoryError) WithTime(t uint64) *HistoryError {
	he.time = t
	return he
}

// WithCurrent records the engine's current time at failure.
func (he *HistoryError) WithCurrent(t uint64) *HistoryError {
	he.current = t
	return he
}

// WithHorizon records the bound the offending time was compared against.
func (he *HistoryError) WithHorizon(t uint64) *HistoryError {
	he.horizon = t
	return he
}

// Tick returns the tick value involved.
func (he *HistoryError) Tick() uint64 { return he.tick }

// Time returns the offending time.
func (he *HistoryError) Time() uint64 { return he.time }

// Current returns the engine's current time at failure.
func (he *HistoryError) Current() uint64 { return he.current }

// Horizon returns the bound the offending time was compared against.
func (he *HistoryError) Horizon() uint64 { return he.horizon }
