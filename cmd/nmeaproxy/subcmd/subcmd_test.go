package subcmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nmeaproxy/log2"
)

func TestParse(t *testing.T) {
	t.Parallel()

	nop := func(context.Context, *log2.Log, []string) error { return nil }
	mods := []Mod{{Name: "run", Usage: "start proxy", Main: nop}, {Name: "log", Main: nop}}

	m, err := Parse("log", mods)
	require.NoError(t, err)
	assert.Equal(t, "log", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("fly", mods)
	assert.EqualError(t, err, "unknown command='fly'")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: nop}}) })

	var buf bytes.Buffer
	Usage(&buf, "nmeaproxy", mods)
	assert.Contains(t, buf.String(), "usage: nmeaproxy COMMAND")
	assert.Regexp(t, `\n  run +start proxy\n`, buf.String())
}
