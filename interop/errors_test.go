package interop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := newError(KindDuplication, "duplicate handle", errors.New("access denied"))
	assert.ErrorIs(t, err, ErrDuplication)
	assert.NotErrorIs(t, err, ErrOpenResource)
	assert.True(t, Retryable(err))
	assert.True(t, Retryable(newError(KindOpenResource, "", nil)))
	assert.False(t, Retryable(newError(KindInteropUnsupported, "", nil)))
	assert.False(t, Retryable(errors.New("plain")))
	assert.Equal(t, "interop: duplicate handle: duplication: access denied", err.Error())
}
