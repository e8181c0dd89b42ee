package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestClonedSentinelMatchesWithIs(t *testing.T) {
	err := fmt.Errorf("load: %w", Clone(ErrNotFound, "course not found"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestValidationCarriesDetails(t *testing.T) {
	err := Validation("invalid enrollment", FieldError{Field: "status", Rule: "oneof", Message: "status must be one of active completed inactive"})
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Len(t, err.Details, 1)
	assert.Nil(t, ErrValidation.Details)
}
