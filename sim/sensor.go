package sim

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"net"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/log2"
)

//go:embed fixtures/*.txt
var fixtures embed.FS

const (
	SensorAanderaa = "aanderaa"
	SensorOptiplex = "optiplex"

	DefaultInterval = time.Second
)

type SensorOptions struct {
	Kind     string // aanderaa, optiplex
	Addr     string // proxy source host:port
	Lines    [][]byte
	Interval time.Duration
	Backoff  helpers.Backoff
	Log      *log2.Log
	Dial     func(ctx context.Context, network, address string) (net.Conn, error)
}

// FakeSensor connects to a proxy source and sends Lines every Interval, looping.
type FakeSensor struct {
	opt SensorOptions
	log *log2.Log
}

// LoadLines reads path or embedded fixture for kind when path is empty.
// Line terminators are kept, missing ones become CRLF.
func LoadLines(kind, path string) ([][]byte, error) {
	var b []byte
	var err error
	if path == "" {
		switch kind {
		case SensorAanderaa, SensorOptiplex:
			b, err = fixtures.ReadFile("fixtures/" + kind + ".txt")
		default:
			return nil, errors.NotValidf("fake sensor kind=%s", kind)
		}
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "fake sensor data kind=%s path=%s", kind, path)
	}

	lines := make([][]byte, 0, 16)
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		line := bytes.TrimRight(s.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append(append([]byte(nil), line...), '\r', '\n'))
	}
	if err = s.Err(); err != nil {
		return nil, errors.Annotatef(err, "fake sensor data path=%s", path)
	}
	if len(lines) == 0 {
		return nil, errors.NotFoundf("fake sensor data lines path=%s", path)
	}
	return lines, nil
}

func NewFakeSensor(opt SensorOptions) (*FakeSensor, error) {
	if opt.Addr == "" {
		return nil, errors.NotValidf("fake sensor addr empty")
	}
	if opt.Lines == nil {
		lines, err := LoadLines(opt.Kind, "")
		if err != nil {
			return nil, err
		}
		opt.Lines = lines
	}
	if opt.Interval == 0 {
		opt.Interval = DefaultInterval
	}
	if opt.Backoff.Min == 0 {
		opt.Backoff = helpers.Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, K: 2}
	}
	if opt.Dial == nil {
		opt.Dial = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	}
	return &FakeSensor{opt: opt, log: opt.Log}, nil
}

// Encode returns bytes on the wire for line.
// Aanderaa device sends NUL after each space.
func Encode(kind string, line []byte) []byte {
	if kind != SensorAanderaa {
		return line
	}
	return bytes.ReplaceAll(line, []byte{' '}, []byte{' ', 0})
}

// Run blocks until ctx is done, reconnecting on errors.
func (fs *FakeSensor) Run(ctx context.Context) error {
	name := strings.ToUpper(fs.opt.Kind) + " fake sensor"
	for {
		conn, err := fs.opt.Dial(ctx, "tcp", fs.opt.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := fs.opt.Backoff.Failure()
			fs.log.Errorf("%s: connect %s err=%v retry in %v", name, fs.opt.Addr, err, delay)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		fs.opt.Backoff.Reset()
		fs.log.Infof("%s: connected to %s", name, fs.opt.Addr)
		err = fs.send(ctx, name, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		fs.log.Errorf("%s: connection to %s lost err=%v", name, fs.opt.Addr, err)
	}
}

func (fs *FakeSensor) send(ctx context.Context, name string, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		for _, line := range fs.opt.Lines {
			fs.log.Debugf("%s: data sent to %s: %q", name, fs.opt.Addr, line)
			if err := helpers.WriteAll(conn, Encode(fs.opt.Kind, line)); err != nil {
				return err
			}
			if !sleepCtx(ctx, fs.opt.Interval) {
				return ctx.Err()
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
