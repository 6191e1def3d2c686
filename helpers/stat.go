package helpers

import (
	"io"
	"sync/atomic"
)

// CountReader adds number of bytes read to N.
type CountReader struct {
	R io.Reader
	N *uint64
}

var _ io.Reader = &CountReader{}

func NewCountReader(r io.Reader, n *uint64) *CountReader {
	return &CountReader{R: r, N: n}
}

func (cr *CountReader) Read(p []byte) (n int, err error) {
	n, err = cr.R.Read(p)
	atomic.AddUint64(cr.N, uint64(n))
	return
}

// CountWriter adds number of bytes written to N.
type CountWriter struct {
	W io.Writer
	N *uint64
}

var _ io.Writer = &CountWriter{}

func NewCountWriter(w io.Writer, n *uint64) *CountWriter {
	return &CountWriter{W: w, N: n}
}

func (cw *CountWriter) Write(p []byte) (n int, err error) {
	n, err = cw.W.Write(p)
	atomic.AddUint64(cw.N, uint64(n))
	return
}
