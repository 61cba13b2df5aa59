package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/remset/config"
	"github.com/QuangTung97/remset/heap"
)

func TestMutate(t *testing.T) {
	for _, useRememberedSet := range []bool{true, false} {
		conf := config.Default()
		conf.UseRememberedSet = useRememberedSet
		conf.VerifyRememberedSet = true

		h, err := heap.New(conf.Heap())
		require.NoError(t, err)

		objs, err := mutate(h, uintptr(conf.LargeObjectThreshold), mutationOptions{
			objects:    500,
			stores:     2000,
			youngRatio: 0.5,
			largeRatio: 0.02,
			seed:       7,
		})
		require.NoError(t, err)
		assert.Equal(t, 500, len(objs))
		assert.NoError(t, h.Verify())

		roots, err := h.OldToYoungRoots()
		require.NoError(t, err)
		if !useRememberedSet {
			assert.Empty(t, roots)
		}
		assert.NoError(t, h.Close())
	}
}
