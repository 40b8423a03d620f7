package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, CodeNotFound},
		{ErrInvalidMealType, http.StatusBadRequest, CodeInvalidData},
		{ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{ErrEmailTaken, http.StatusBadRequest, CodeInvalidData},
	}
	for _, tc := range cases {
		mapped := FromError(tc.err)
		assert.Equal(t, tc.status, mapped.Status)
		assert.Equal(t, tc.code, mapped.Code)
	}
}

func TestFromErrorKeepsStructuredErrors(t *testing.T) {
	orig := New(http.StatusRequestTimeout, CodeTimeout, "too slow")
	mapped := FromError(orig)
	assert.Equal(t, orig, mapped)
}

// Unknown errors must not masquerade as workflow failures.
func TestFromErrorDefaultsToInternalError(t *testing.T) {
	mapped := FromError(errors.New("driver: bad connection"))
	assert.Equal(t, http.StatusInternalServerError, mapped.Status)
	assert.Equal(t, CodeInternalError, mapped.Code)
	assert.Equal(t, "driver: bad connection", mapped.Message)
}
