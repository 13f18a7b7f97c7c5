package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, CodeOf(NotFound("")))
	assert.Equal(t, http.StatusBadRequest, CodeOf(BadRequest("bad", nil)))
	assert.Equal(t, http.StatusInternalServerError, CodeOf(errors.New("boom")))

	wrapped := errors.Wrap(MethodNotAllowed("nope"), "reading")
	assert.Equal(t, http.StatusMethodNotAllowed, CodeOf(wrapped))
	assert.True(t, IsNotFound(errors.WithStack(NotFound("gone"))))
}

func TestMessageOf(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Internal("Store unavailable", cause)

	assert.Equal(t, "Store unavailable", MessageOf(err))
	assert.Equal(t, "Store unavailable: dial tcp: refused", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Internal Server Error", MessageOf(cause))
	assert.Equal(t, "Not Found", NotFound("").Message)
}
