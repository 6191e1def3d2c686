package forward

import (
	"context"
	"io"
	"net"

	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/log2"
)

// link is one concentrator connection with its reader goroutine.
// Concentrator is not expected to talk back, reader only logs what it sends
// and notices remote close before next write fails.
type link struct {
	conn     net.Conn
	done     chan struct{} // closed when reader exits
	readErr  helpers.FirstError
	stopHook func() bool
}

func newLink(ctx context.Context, conn net.Conn, log *log2.Log) *link {
	c := &link{
		conn: conn,
		done: make(chan struct{}),
	}
	// abandoned flush must not wait for write deadline
	c.stopHook = context.AfterFunc(ctx, func() { _ = conn.Close() })
	go c.reader(log)
	return c
}

func (c *link) reader(log *log2.Log) {
	defer close(c.done)
	buf := make([]byte, 512)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			log.Debugf("forward: concentrator sent %q", buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				err = errRemoteClosed
			}
			c.readErr.Set(err)
			return
		}
	}
}

func (c *link) err() error {
	return c.readErr.Err()
}

// close waits for reader goroutine.
func (c *link) close() {
	c.stopHook()
	_ = c.conn.Close()
	<-c.done
}
