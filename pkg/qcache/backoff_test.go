package qcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_DefaultRetryDelay_DoublesUntilCap(t *testing.T) {
	assert.Equal(t, DefaultBaseRetryDelay, DefaultRetryDelay(0, nil))
	assert.Equal(t, 2*DefaultBaseRetryDelay, DefaultRetryDelay(1, nil))
	assert.Equal(t, 4*DefaultBaseRetryDelay, DefaultRetryDelay(2, nil))
	assert.Equal(t, DefaultMaxRetryDelay, DefaultRetryDelay(20, nil))
}

func Test_JitteredRetryDelay_GrowsAndCaps(t *testing.T) {
	delayFn := JitteredRetryDelay(BackoffConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	})
	assert.Equal(t, 100*time.Millisecond, delayFn(0, nil))
	assert.Equal(t, 200*time.Millisecond, delayFn(1, nil))
	assert.Equal(t, time.Second, delayFn(10, nil), "exponential growth clamps at MaxDelay")
}

func Test_JitteredRetryDelay_StaysWithinJitterBandAndNonNegative(t *testing.T) {
	delayFn := JitteredRetryDelay(BackoffConfig{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.5,
	})
	for i := 0; i < 50; i++ {
		d := delayFn(0, nil)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func Test_JitteredRetryDelay_DefaultsMultiplierToTwo(t *testing.T) {
	delayFn := JitteredRetryDelay(BackoffConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	})
	assert.Equal(t, 400*time.Millisecond, delayFn(2, nil))
}
