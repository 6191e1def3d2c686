// Package forward keeps single outbound TCP connection to NMEA concentrator
// and delivers frames from all sources over it.
// - Submit never blocks, frames wait in bounded queue, oldest dropped on overflow
// - one writer goroutine owns the socket, frames are written in queue order
// - failed frame is counted as lost and never resent
// - reconnect with exponential backoff, reset after successful connect
package forward

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/helpers/atomic_clock"
	"github.com/temoto/nmeaproxy/log2"
	"github.com/temoto/nmeaproxy/nmea"
)

const (
	DefaultBuffer       = 1024
	DefaultBackoffMin   = 1 * time.Second
	DefaultBackoffMax   = 600 * time.Second
	DefaultBackoffK     = 1.5
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultFlushTimeout = 2 * time.Second
)

var (
	ErrClosing      = fmt.Errorf("forwarder is closing")
	errRemoteClosed = fmt.Errorf("closed by remote")
)

type LinkState int32

const (
	Disconnected LinkState = iota
	Connecting
	Connected
	Backoff
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	}
	return fmt.Sprintf("LinkState(%d)", int32(s))
}

type DialFunc = func(ctx context.Context, network, address string) (net.Conn, error)

type Options struct {
	Addr         string // concentrator host:port
	Buffer       int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	BackoffK     float32
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	FlushTimeout time.Duration
	Log          *log2.Log
	Dial         DialFunc // default net.Dialer
}

type Stats struct {
	Submitted  uint64
	Written    uint64
	Dropped    uint64 // queue overflow
	Lost       uint64 // write failed
	Rejected   uint64 // submitted after Close
	Abandoned  uint64 // left in queue when flush timed out
	Reconnects uint64
	Bytes      uint64 // written to concentrator, including partial writes
	Queued     int
	State      LinkState
	LastWrite  time.Time
}

func (s Stats) String() string {
	return fmt.Sprintf("state=%s queued=%d submitted=%d written=%d dropped=%d lost=%d rejected=%d abandoned=%d reconnects=%d",
		s.State, s.Queued, s.Submitted, s.Written, s.Dropped, s.Lost, s.Rejected, s.Abandoned, s.Reconnects)
}

type Forwarder struct {
	// 64-bit atomic counters first for alignment on 32-bit ARM
	submitted  uint64
	written    uint64
	dropped    uint64
	lost       uint64
	rejected   uint64
	abandoned  uint64
	reconnects uint64
	bytes      uint64
	lastWrite  atomic_clock.Clock
	state      int32
	connected  bool // writer goroutine only

	alive   *alive.Alive
	opt     Options
	log     *log2.Log
	backoff helpers.Backoff
	wake    chan struct{}

	// cancelled when flush after Close must give up
	flushCtx    context.Context
	flushCancel context.CancelFunc

	mu     sync.Mutex // protects queue, closed
	queue  ring
	closed bool // writer exited, queue is never read again
}

// New validates options and starts writer goroutine, it connects immediately.
func New(opt Options) (*Forwarder, error) {
	if _, _, err := net.SplitHostPort(opt.Addr); err != nil {
		return nil, errors.NotValidf("concentrator address=%q", opt.Addr)
	}
	if opt.Buffer <= 0 {
		opt.Buffer = DefaultBuffer
	}
	if opt.BackoffMin <= 0 {
		opt.BackoffMin = DefaultBackoffMin
	}
	if opt.BackoffMax <= 0 {
		opt.BackoffMax = DefaultBackoffMax
	}
	if opt.BackoffMax < opt.BackoffMin {
		return nil, errors.NotValidf("backoff max=%s < min=%s", opt.BackoffMax, opt.BackoffMin)
	}
	if opt.BackoffK < 1 {
		opt.BackoffK = DefaultBackoffK
	}
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = DefaultDialTimeout
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = DefaultWriteTimeout
	}
	if opt.FlushTimeout <= 0 {
		opt.FlushTimeout = DefaultFlushTimeout
	}
	if opt.Dial == nil {
		opt.Dial = (&net.Dialer{}).DialContext
	}

	f := &Forwarder{
		alive: alive.NewAlive(),
		opt:   opt,
		log:   opt.Log,
		backoff: helpers.Backoff{
			Min: opt.BackoffMin,
			Max: opt.BackoffMax,
			K:   opt.BackoffK,
		},
		wake:  make(chan struct{}, 1),
		queue: newRing(opt.Buffer),
	}
	f.flushCtx, f.flushCancel = context.WithCancel(context.Background())
	f.alive.Add(1)
	go f.run()
	return f, nil
}

// Submit queues frame for delivery and returns immediately.
// When queue is full, the oldest frame is dropped.
func (f *Forwarder) Submit(frame nmea.Frame) error {
	f.mu.Lock()
	if f.closed || !f.alive.IsRunning() {
		f.mu.Unlock()
		atomic.AddUint64(&f.rejected, 1)
		return ErrClosing
	}
	dropped := f.queue.push(frame)
	atomic.AddUint64(&f.submitted, 1)
	f.mu.Unlock()
	if dropped {
		if n := atomic.AddUint64(&f.dropped, 1); n == 1 || n%1000 == 0 {
			f.log.Errorf("forward: queue full buffer=%d dropped total=%d state=%s", f.opt.Buffer, n, f.State())
		}
	}
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops admission of new frames and flushes queued ones until
// flush timeout or ctx expire, whichever comes first.
// Frames left in queue are counted as abandoned.
func (f *Forwarder) Close(ctx context.Context) error {
	timer := time.AfterFunc(f.opt.FlushTimeout, f.flushCancel)
	defer timer.Stop()
	f.alive.Stop()
	select {
	case <-f.alive.WaitChan():
	case <-ctx.Done():
		f.flushCancel()
		f.alive.Wait()
	}
	f.flushCancel()

	s := f.Stats()
	f.log.Infof("forward: closed %s", s)
	if s.Abandoned != 0 {
		return errors.Errorf("forward: flush incomplete abandoned=%d", s.Abandoned)
	}
	return nil
}

func (f *Forwarder) State() LinkState { return LinkState(atomic.LoadInt32(&f.state)) }

func (f *Forwarder) Stats() Stats {
	f.mu.Lock()
	queued := f.queue.Len()
	f.mu.Unlock()
	return Stats{
		Submitted:  atomic.LoadUint64(&f.submitted),
		Written:    atomic.LoadUint64(&f.written),
		Dropped:    atomic.LoadUint64(&f.dropped),
		Lost:       atomic.LoadUint64(&f.lost),
		Rejected:   atomic.LoadUint64(&f.rejected),
		Abandoned:  atomic.LoadUint64(&f.abandoned),
		Reconnects: atomic.LoadUint64(&f.reconnects),
		Bytes:      atomic.LoadUint64(&f.bytes),
		Queued:     queued,
		State:      f.State(),
		LastWrite:  f.lastWrite.Time(),
	}
}

func (f *Forwarder) setState(s LinkState) {
	if old := LinkState(atomic.SwapInt32(&f.state, int32(s))); old != s {
		f.log.Debugf("forward: link %s -> %s", old, s)
	}
}

func (f *Forwarder) queueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// writer goroutine
func (f *Forwarder) run() {
	defer f.alive.Done()
	var c *link
	defer func() {
		if c != nil {
			c.close()
		}
		f.setState(Disconnected)
		f.mu.Lock()
		f.closed = true
		n := f.queue.reset()
		f.mu.Unlock()
		atomic.AddUint64(&f.abandoned, uint64(n))
	}()

	for {
		if !f.alive.IsRunning() && (f.flushCtx.Err() != nil || f.queueLen() == 0) {
			return
		}
		if c == nil {
			var err error
			if c, err = f.connect(); err != nil {
				continue
			}
		}

		frame, err := f.next(c)
		switch err {
		case nil:
		case ErrClosing:
			return
		default:
			f.log.Errorf("forward: concentrator=%s connection lost: %v", f.opt.Addr, err)
			c.close()
			c = nil
			f.backoff.Failure()
			continue
		}

		if err = f.write(c, frame); err != nil {
			atomic.AddUint64(&f.lost, 1)
			f.log.Errorf("forward: write frame=%q err=%v", frame, err)
			c.close()
			c = nil
			f.backoff.Failure()
			continue
		}
		atomic.AddUint64(&f.written, 1)
		f.lastWrite.SetNow()
	}
}

// next blocks until queued frame, dead link or Close.
// After Close it drains queue without waiting, ErrClosing when empty.
func (f *Forwarder) next(c *link) (nmea.Frame, error) {
	for {
		if f.flushCtx.Err() != nil {
			return nil, ErrClosing
		}
		f.mu.Lock()
		frame, ok := f.queue.pop()
		f.mu.Unlock()
		if ok {
			return frame, nil
		}
		if !f.alive.IsRunning() {
			return nil, ErrClosing
		}
		select {
		case <-f.wake:
		case <-c.done:
			return nil, c.err()
		case <-f.alive.StopChan():
		}
	}
}

func (f *Forwarder) connect() (*link, error) {
	if delay := f.backoff.DelayBefore(); delay > 0 {
		f.setState(Backoff)
		f.log.Debugf("forward: reconnect delay=%s", delay)
		if err := f.sleep(delay); err != nil {
			return nil, err
		}
	}

	f.setState(Connecting)
	ctx, cancel := context.WithTimeout(f.flushCtx, f.opt.DialTimeout)
	conn, err := f.opt.Dial(ctx, "tcp", f.opt.Addr)
	cancel()
	if err != nil {
		next := f.backoff.Failure()
		f.setState(Backoff)
		err = errors.Annotatef(err, "connect concentrator=%s", f.opt.Addr)
		f.log.Errorf("%v, retry in %s", err, next)
		return nil, err
	}

	f.backoff.Reset()
	if f.connected {
		atomic.AddUint64(&f.reconnects, 1)
	}
	f.connected = true
	f.setState(Connected)
	f.log.Infof("forward: connected concentrator=%s local=%s", f.opt.Addr, conn.LocalAddr())
	return newLink(f.flushCtx, conn, f.log), nil
}

func (f *Forwarder) write(c *link, frame nmea.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(f.opt.WriteTimeout)); err != nil {
		return errors.Annotate(err, "SetWriteDeadline")
	}
	return helpers.WriteAll(helpers.NewCountWriter(c.conn, &f.bytes), frame)
}

// sleep is interrupted by Close only when there is nothing left to flush.
func (f *Forwarder) sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	stop := f.alive.StopChan()
	for {
		select {
		case <-t.C:
			return nil
		case <-f.flushCtx.Done():
			return ErrClosing
		case <-stop:
			if f.queueLen() == 0 {
				return ErrClosing
			}
			stop = nil
		}
	}
}
