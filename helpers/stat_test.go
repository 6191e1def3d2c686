package helpers

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountReader(t *testing.T) {
	t.Parallel()

	var counter uint64
	s := NewCountReader(strings.NewReader(strings.Repeat(".", 20)), &counter)
	assert.Equal(t, uint64(0), atomic.LoadUint64(&counter))
	buf := make([]byte, 17)
	_, _ = s.Read(buf[:0])
	assert.Equal(t, uint64(0), atomic.LoadUint64(&counter))
	_, _ = s.Read(buf[:5])
	assert.Equal(t, uint64(5), atomic.LoadUint64(&counter))
	_, _ = s.Read(buf)
	_, _ = s.Read(buf)
	assert.Equal(t, uint64(20), atomic.LoadUint64(&counter))
}

func TestCountWriter(t *testing.T) {
	t.Parallel()

	var counter uint64
	var out bytes.Buffer
	s := NewCountWriter(&out, &counter)
	buf := make([]byte, 17)
	_, _ = s.Write(buf[:0])
	assert.Equal(t, uint64(0), atomic.LoadUint64(&counter))
	_, _ = s.Write(buf[:5])
	assert.Equal(t, uint64(5), atomic.LoadUint64(&counter))
	assert.NoError(t, WriteAll(s, buf))
	assert.Equal(t, uint64(22), atomic.LoadUint64(&counter))
	assert.Equal(t, 22, out.Len())
}
