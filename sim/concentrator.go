// Package sim has stand-ins for the devices around the proxy,
// used for manual end to end runs and tests.
package sim

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/log2"
)

const DumpName = "nmea_concentrator.dump"

// DefaultDumpPath is <tmp>/nmea_concentrator.dump
func DefaultDumpPath() string { return filepath.Join(os.TempDir(), DumpName) }

type ConcentratorOptions struct {
	Listen   string // host:port
	DumpPath string // empty disables dump file
	Log      *log2.Log
}

// FakeConcentrator accepts proxy connections, logs and records everything received.
type FakeConcentrator struct {
	alive *alive.Alive
	log   *log2.Log
	ll    net.Listener
	conns struct {
		sync.Mutex
		m map[string]net.Conn
	}
	data struct {
		sync.Mutex
		buf  bytes.Buffer
		dump *os.File
	}
}

func NewFakeConcentrator(opt ConcentratorOptions) (*FakeConcentrator, error) {
	fc := &FakeConcentrator{
		alive: alive.NewAlive(),
		log:   opt.Log,
	}
	fc.conns.m = make(map[string]net.Conn)
	if opt.DumpPath != "" {
		f, err := os.OpenFile(opt.DumpPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Annotate(err, "fake concentrator dump")
		}
		fc.data.dump = f
	}
	ll, err := net.Listen("tcp", opt.Listen)
	if err != nil {
		if fc.data.dump != nil {
			_ = fc.data.dump.Close()
		}
		return nil, errors.Annotatef(err, "fake concentrator listen=%s", opt.Listen)
	}
	fc.ll = ll
	fc.log.Infof("fake concentrator: listening %s", ll.Addr())
	fc.alive.Add(1)
	go fc.acceptLoop()
	return fc, nil
}

func (fc *FakeConcentrator) Addr() string { return fc.ll.Addr().String() }

// Received returns copy of all bytes received so far, from all connections.
func (fc *FakeConcentrator) Received() []byte {
	fc.data.Lock()
	defer fc.data.Unlock()
	return append([]byte(nil), fc.data.buf.Bytes()...)
}

// Drop closes current connections, as if concentrator restarted.
func (fc *FakeConcentrator) Drop() int {
	fc.conns.Lock()
	defer fc.conns.Unlock()
	n := len(fc.conns.m)
	for _, c := range fc.conns.m {
		_ = c.Close()
	}
	return n
}

func (fc *FakeConcentrator) Close() error {
	fc.alive.Stop()
	err := fc.ll.Close()
	fc.Drop()
	fc.alive.Wait()
	helpers.WithLock(&fc.data, func() {
		if fc.data.dump != nil {
			if e := fc.data.dump.Close(); e != nil && err == nil {
				err = e
			}
			fc.data.dump = nil
		}
	})
	return err
}

func (fc *FakeConcentrator) acceptLoop() {
	defer fc.alive.Done()
	for {
		conn, err := fc.ll.Accept()
		if err != nil {
			if fc.alive.IsRunning() {
				fc.log.Errorf("fake concentrator: accept err=%v", err)
			}
			return
		}
		if !fc.alive.Add(1) {
			_ = conn.Close()
			return
		}
		go fc.serve(conn)
	}
}

func (fc *FakeConcentrator) serve(conn net.Conn) {
	defer fc.alive.Done()
	id := uuid.New().String()
	remote := conn.RemoteAddr().String()
	helpers.WithLock(&fc.conns, func() { fc.conns.m[id] = conn })
	defer helpers.WithLock(&fc.conns, func() { delete(fc.conns.m, id) })
	defer conn.Close()
	if !fc.alive.IsRunning() {
		return
	}
	fc.log.Infof("fake concentrator: connection from %s", remote)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			fc.log.Infof("fake concentrator: data received from %s: %q", remote, buf[:n])
			if werr := fc.record(buf[:n]); werr != nil {
				fc.log.Errorf("fake concentrator: dump err=%v", werr)
			}
		}
		if err != nil {
			if err != io.EOF && fc.alive.IsRunning() {
				fc.log.Errorf("fake concentrator: read from %s err=%v", remote, err)
			}
			fc.log.Infof("fake concentrator: connection from %s lost", remote)
			return
		}
	}
}

func (fc *FakeConcentrator) record(b []byte) error {
	return helpers.WithLockError(&fc.data, func() error {
		fc.data.buf.Write(b)
		if fc.data.dump == nil {
			return nil
		}
		return helpers.WriteAll(fc.data.dump, b)
	})
}

func (fc *FakeConcentrator) String() string {
	return fmt.Sprintf("FakeConcentrator(%s)", fc.Addr())
}
