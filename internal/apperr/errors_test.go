package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("failed to issue book: %w", NotFound("book", "B001"))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))

	var nf *NotFoundError
	require.True(t, errors.As(wrapped, &nf))
	assert.Equal(t, "book", nf.Entity)
	assert.Equal(t, "B001", nf.ID)

	assert.True(t, errors.Is(Conflict("book %s is %s", "B001", "Issued"), ErrConflict))
	assert.True(t, errors.Is(Validation(map[string]string{"bookId": "must be provided"}), ErrValidation))
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := Validation(map[string]string{
		"memberId": "must be provided",
		"bookId":   "must be provided",
	})
	assert.Equal(t, "validation failed: bookId must be provided; memberId must be provided", err.Error())
}
