package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowth(t *testing.T) {
	t.Parallel()

	b := &Backoff{Min: time.Second, Max: 4 * time.Second, K: 1.5}
	assert.Equal(t, time.Duration(0), b.DelayBefore())
	expect := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
	}
	for i, e := range expect {
		assert.Equal(t, e, b.Failure(), "step=%d", i)
		assert.Equal(t, e, b.Next())
	}
	d := b.DelayBefore()
	assert.True(t, d > 3*time.Second && d <= 4*time.Second, "delay=%s", d)

	b.Reset()
	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, time.Duration(0), b.DelayBefore())
	assert.Equal(t, time.Second, b.Failure())
}

func TestBackoffElapsed(t *testing.T) {
	t.Parallel()

	b := &Backoff{Min: 20 * time.Millisecond, Max: time.Second, K: 2}
	b.Failure()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}
