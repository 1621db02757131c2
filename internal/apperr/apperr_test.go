package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Auth("no key"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("exists"), http.StatusConflict},
		{Timeout("expired"), http.StatusRequestTimeout},
		{Internal(errors.New("disk"), "io failed"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.Status())
		assert.Equal(t, tc.status, StatusOf(tc.err))
	}
}

func TestStatusOfWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("unknown session"))
	assert.Equal(t, http.StatusNotFound, StatusOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindConflict))
}

func TestStatusOfUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("mystery")))
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("no space left on device")
	err := Internal(cause, "cannot write partial file")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cannot write partial file")
	assert.Contains(t, err.Error(), "no space left on device")
}
