package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUnknownType       = "UNKNOWN_TYPE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidIndex      = "INVALID_INDEX"
	ErrCodeExpression        = "EXPRESSION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeContract          = "CONTRACT_VIOLATION"
)

// SequencerError is the structured error type for all sequencer operations.
type SequencerError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ActivityID string         `json:"activity_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *SequencerError) Error() string {
	if e.ActivityID != "" {
		return fmt.Sprintf("[%s] activity %s: %s", e.Code, e.ActivityID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SequencerError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SequencerError.
func NewError(code, message string) *SequencerError {
	return &SequencerError{Code: code, Message: message}
}

// NewErrorf creates a new SequencerError with a formatted message.
func NewErrorf(code, format string, args ...any) *SequencerError {
	return &SequencerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithActivity attaches an activity config id to the error.
func (e *SequencerError) WithActivity(activityID string) *SequencerError {
	e.ActivityID = activityID
	return e
}

// WithCause attaches an underlying cause.
func (e *SequencerError) WithCause(err error) *SequencerError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SequencerError) WithDetails(details map[string]any) *SequencerError {
	e.Details = details
	return e
}

// HasCode reports whether err is a SequencerError carrying the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if se, ok := err.(*SequencerError); ok && se.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
