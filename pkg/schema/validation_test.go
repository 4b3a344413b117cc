package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictHelpers(t *testing.T) {
	assert.Equal(t, Verdict{Valid: true}, Pass())
	assert.Equal(t, Verdict{Valid: true, Reason: "nothing to compare"}, PassWith("nothing to compare"))

	v := Fail("element %d is invalid", 3)
	assert.False(t, v.Valid)
	assert.Equal(t, "element 3 is invalid", v.Reason)
}

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("activities[0].requirements[1]", ErrCodeValidation, "duplicate requirement name")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "activities[0].requirements[1]", r.Errors[0].Path)
	assert.Equal(t, ErrCodeValidation, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_AddWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("activities[0]", ErrCodeValidation, "no requirements declared")

	assert.True(t, r.Valid(), "warnings alone should not make result invalid")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r1.AddWarning("/", ErrCodeValidation, "warn1")

	r2 := &ValidationResult{}
	r2.AddError("activities[0]", ErrCodeUnknownType, "err2")
	r2.AddWarning("activities[1]", ErrCodeValidation, "warn2")

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 2)
}

func TestValidationResult_ToError(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := &ValidationResult{}
		r.AddWarning("/", ErrCodeValidation, "just a warning")
		assert.Nil(t, r.ToError())
	})

	t.Run("single", func(t *testing.T) {
		r := &ValidationResult{}
		r.AddError("activities[0].id", ErrCodeValidation, "id is required")

		err := r.ToError()
		require.Error(t, err)
		var seqErr *SequencerError
		require.True(t, errors.As(err, &seqErr))
		assert.Equal(t, ErrCodeValidation, seqErr.Code)
		assert.Equal(t, "activities[0].id: id is required", seqErr.Message)
		assert.Equal(t, 1, seqErr.Details["error_count"])
	})

	t.Run("multiple", func(t *testing.T) {
		r := &ValidationResult{}
		r.AddError("/", ErrCodeValidation, "err1")
		r.AddError("/", ErrCodeValidation, "err2")

		var seqErr *SequencerError
		require.True(t, errors.As(r.ToError(), &seqErr))
		assert.Equal(t, "validation failed with 2 errors", seqErr.Message)
	})
}

func TestSequencerError(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorf(ErrCodeUnknownType, "no factory for type %q", "Mesh").
		WithActivity("Segmentation").
		WithCause(cause)

	assert.Equal(t, `[UNKNOWN_TYPE] activity Segmentation: no factory for type "Mesh"`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, ErrCodeUnknownType))
	assert.True(t, HasCode(fmt.Errorf("wrapped: %w", err), ErrCodeUnknownType))
	assert.False(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(cause, ErrCodeNotFound))
}
