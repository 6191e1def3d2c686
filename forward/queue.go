package forward

import "github.com/temoto/nmeaproxy/nmea"

// ring is bounded FIFO of frames, push over capacity overwrites oldest.
// Not safe for concurrent use, Forwarder guards it with mutex.
type ring struct {
	buf  []nmea.Frame
	head int
	n    int
}

func newRing(size int) ring {
	if size < 1 {
		size = 1
	}
	return ring{buf: make([]nmea.Frame, size)}
}

func (r *ring) Len() int { return r.n }
func (r *ring) Cap() int { return len(r.buf) }

// push returns true if oldest frame was dropped to make room.
func (r *ring) push(f nmea.Frame) bool {
	tail := (r.head + r.n) % len(r.buf)
	r.buf[tail] = f
	if r.n < len(r.buf) {
		r.n++
		return false
	}
	r.head = (r.head + 1) % len(r.buf)
	return true
}

func (r *ring) pop() (nmea.Frame, bool) {
	if r.n == 0 {
		return nil, false
	}
	f := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return f, true
}

func (r *ring) reset() int {
	n := r.n
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head, r.n = 0, 0
	return n
}
