package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/nmeaproxy/helpers/atomic_clock"
)

// Limited exponential backoff for reconnect delays.
// First delay is always 0.
// Failure() increases next delay by K, bounded by [Min, Max].
// Reset() after success returns to the zero first delay.
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Use scenario:
//
//	for {
//	  time.Sleep(backoff.DelayBefore())
//	  if err := op(); err != nil {
//	    backoff.Failure()
//	    continue
//	  }
//	  backoff.Reset()
//	}
func (b *Backoff) DelayBefore() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	since := atomic_clock.Since(&b.last)
	if since >= next {
		return 0
	}
	return b.round(next - since)
}

// Failure registers failed attempt and returns full delay before next one.
func (b *Backoff) Failure() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		next = b.Min
	} else {
		k := b.K
		if k < 1 {
			k = 1
		}
		next = time.Duration(float64(next) * float64(k))
	}
	next = b.limit(next)
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(next))
	return next
}

// Next is the delay that was scheduled by last Failure(), 0 after Reset().
func (b *Backoff) Next() time.Duration { return time.Duration(atomic.LoadInt64(&b.next)) }

func (b *Backoff) Reset() {
	b.last.SetNow()
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
