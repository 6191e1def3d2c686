package log2

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fun  func(t testing.TB, l *Log) string
	}{
		{"caller/debug", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("low level var=%d", 42)
			return formatCallerShort(1) + "debug: low level var=42\n"
		}},
		{"caller/info", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("regular state=%s", "ok")
			return formatCallerShort(1) + "regular state=ok\n"
		}},
		{"caller/printf", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Printf("frame=%q", "$VWMTW,18.9,C*12")
			return formatCallerShort(1) + "frame=\"$VWMTW,18.9,C*12\"\n"
		}},
		{"caller/error", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Errorf("problem")
			return formatCallerShort(1) + "error: problem\n"
		}},
		{"prefix", func(t testing.TB, l *Log) string {
			l.SetFlags(0)
			l.SetPrefix("forward: ")
			l.Info("connected")
			return "forward: connected\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(t, nil)
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, LAll)
			expect := c.fun(t, l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.Debugf("hidden")
	l.Infof("shown")
	assert.Equal(t, "shown\n", buf.String())

	l.SetLevel(LDebug)
	assert.True(t, l.Enabled(LDebug))
	l.Debugf("now visible")
	assert.Equal(t, "shown\ndebug: now visible\n", buf.String())

	c := l.Clone(LError)
	require.NotNil(t, c)
	c.Infof("clone skips info")
	assert.Equal(t, LError, c.Level())
	assert.Equal(t, "shown\ndebug: now visible\n", buf.String())
}

func TestDiscardIsNil(t *testing.T) {
	t.Parallel()

	l := NewWriter(io.Discard, LAll)
	assert.Nil(t, l)
	assert.False(t, l.Enabled(LError))
	assert.NotPanics(t, func() { l.Errorf("into the void") })
	assert.NotNil(t, l.Stdlib())
}

func callerShort(depth int) (file string, line int) {
	var ok bool
	_, file, line, ok = runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}

	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = short

	return
}

func formatCallerShort(depth int) string {
	file, line := callerShort(depth + 1)
	return fmt.Sprintf("%s:%d: ", file, line-1)
}
