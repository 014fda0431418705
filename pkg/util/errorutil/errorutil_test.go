package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughWrapped(t *testing.T) {
	base := NewForbidden("access denied")
	wrapped := fmt.Errorf("get ticket: %w", base)

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeForbidden, de.Code)
	assert.Equal(t, http.StatusForbidden, de.HTTPStatus)
}

func TestToDomainError_UnknownBecomesInternal(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.EqualError(t, de.Unwrap(), "boom")
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}

func TestNewFieldValidationError(t *testing.T) {
	err := NewFieldValidationError([]FieldError{{Field: "title", Message: "title is required"}})
	de := ToDomainError(err)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	fields, ok := de.Details["errors"].([]FieldError)
	require.True(t, ok)
	assert.Len(t, fields, 1)
	assert.Equal(t, "title", fields[0].Field)
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewNotFound("ticket", nil), CodeNotFound))
	assert.False(t, HasCode(errors.New("x"), CodeNotFound))
}
