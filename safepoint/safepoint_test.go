package safepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	assert.False(t, InProgress())

	Run(func() {
		assert.True(t, InProgress())
		Run(func() {
			assert.True(t, InProgress())
		})
		assert.True(t, InProgress())
		assert.NotPanics(t, func() { Guarantee("nested") })
	})

	assert.False(t, InProgress())
	assert.Panics(t, func() { Guarantee("outside") })
}

func TestEnd_WithoutBegin(t *testing.T) {
	assert.Panics(t, func() { End() })
	depth.Store(0)
}
