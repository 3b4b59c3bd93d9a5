package qcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MergeStructs_OverrideNonZeroFieldsWin(t *testing.T) {
	base := QueryOptions{StaleTime: time.Second, GCTime: GCTimeOf(time.Minute), Enabled: true}
	override := QueryOptions{StaleTime: 5 * time.Second}

	merged := mergeStructs(base, override)

	assert.Equal(t, 5*time.Second, merged.StaleTime, "override's non-zero field replaces base")
	require.NotNil(t, merged.GCTime)
	assert.Equal(t, time.Minute, *merged.GCTime, "base's field survives when override leaves it unset")
	assert.True(t, merged.Enabled, "base's field survives when override leaves it zero")
}

func Test_MergeStructs_ZeroOverrideNeverClearsBase(t *testing.T) {
	base := QueryOptions{StaleTime: time.Second}
	merged := mergeStructs(base, QueryOptions{})
	assert.Equal(t, time.Second, merged.StaleTime, "an explicit zero at the override layer cannot be told apart from unset")
}

func Test_MergeStructs_LeavesBaseUntouched(t *testing.T) {
	base := QueryOptions{StaleTime: time.Second}
	_ = mergeStructs(base, QueryOptions{StaleTime: 2 * time.Second})
	assert.Equal(t, time.Second, base.StaleTime)
}
