package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("send failed: %w", ForbiddenError("not a participant"))

	assert.True(t, HasCode(err, ErrCodeForbidden))
	assert.False(t, HasCode(err, ErrCodeValidation))
	assert.False(t, HasCode(io.EOF, ErrCodeForbidden))
}

func TestGetAppError(t *testing.T) {
	appErr := GetAppError(ValidationError("too long"))
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, ErrCodeValidation, appErr.Code)

	internal := GetAppError(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, internal.StatusCode)
	assert.ErrorIs(t, internal, io.ErrUnexpectedEOF)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: listing not found", NotFoundError("listing").Error())
	assert.Contains(t, DatabaseError(io.EOF).Error(), "caused by: EOF")
}
