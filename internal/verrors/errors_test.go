package verrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(ImageNotFound, "no such image")
	assert.True(t, Is(err, ImageNotFound))
	assert.False(t, Is(err, InvalidROI))
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(InternalError, "writing template", cause)
	assert.True(t, Is(err, InternalError))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestIsFalseForPlainErrors(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), ImageNotFound))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(ImageNotFound))
	assert.Equal(t, 404, HTTPStatus(TemplateNotFound))
	assert.Equal(t, 400, HTTPStatus(InvalidROI))
	assert.Equal(t, 400, HTTPStatus(InvalidParameter))
	assert.Equal(t, 400, HTTPStatus(InsufficientContourPoints))
	assert.Equal(t, 413, HTTPStatus(CapacityExceeded))
	assert.Equal(t, 500, HTTPStatus(InternalError))
}
