package helpers

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// chunkWriter accepts at most n bytes per Write.
type chunkWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		p = p[:w.n]
	}
	return w.buf.Write(p)
}

func TestWriteAll(t *testing.T) {
	t.Parallel()

	frame := []byte("$VWMTW,19.0,C*1A\r\n")
	type Case struct {
		name   string
		chunk  int
		expect string
		err    error
	}
	cases := []Case{
		{"whole", len(frame), string(frame), nil},
		{"short", 7, string(frame), nil},
		{"byte", 1, string(frame), nil},
		{"stuck", 0, "", io.ErrShortWrite},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			w := &chunkWriter{n: c.chunk}
			err := WriteAll(w, frame)
			assert.Equal(t, c.err, err)
			assert.Equal(t, c.expect, w.buf.String())
		})
	}
	assert.NoError(t, WriteAll(&chunkWriter{}, nil))
}
