package swizzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBGRA(t *testing.T) {
	p := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	BGRA(p)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8, 9}, p)
	BGRA(p)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, p)

	BGRA(nil)
}
