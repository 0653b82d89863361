package errors

// ValidationError is a specialized error type for configuration and input
// validation failures. It embeds baseError to inherit the standard error
// functionality, then captures which field failed, what rule was violated,
// and what was provided versus expected.
type ValidationError struct {
	*baseError
	field    string // Name of the field or parameter that failed validation.
	rule     string // The validation rule that was violated (e.g. "required", "even", "range").
	provided any    // The value that was actually provided.
	expected any    // What would have been valid.
}

// NewValidationError creates a new validation-specific error.
func NewValidationError(err error, code ErrorCode, msg string) *ValidationError {
	return &ValidationError{baseError: NewBaseError(err, code, msg)}
}

// WithField records which field failed validation.
func (ve *ValidationError) WithField(field string) *ValidationError {
	ve.field = field
	return ve
}

// WithRule records the validation rule that was violated.
func (ve *ValidationError) WithRule(rule string) *ValidationError {
	ve.rule = rule
	return ve
}

// WithProvided records the value that was provided.
func (ve *ValidationError) WithProvided(value any) *ValidationError {
	ve.provided = value
	return ve
}

// WithExpected records what the rule expected.
func (ve *ValidationError) WithExpected(value any) *ValidationError {
	ve.expected = value
	return ve
}

// Field returns the name of the field that failed validation.
func (ve *ValidationError) Field() string { return ve.field }

// Rule returns the validation rule that was violated.
func (ve *ValidationError) Rule() string { return ve.rule }

// Provided returns the value that was provided.
func (ve *ValidationError) Provided() any { return ve.provided }

// Expected returns what the rule expected.
func (ve *ValidationError) Expected() any { return ve.expected }
