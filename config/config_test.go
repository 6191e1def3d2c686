package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nmeaproxy/adapter"
	"github.com/temoto/nmeaproxy/log2"
)

const testMinimal = `
concentrator { host = "127.0.0.1" port = 8500 }
source "aanderaa" { kind = "flow" port = 8502 magnetic_declination = -0.5 }
`

func TestRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		files     map[string]string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"minimal", map[string]string{"main.hcl": testMinimal},
			func(t testing.TB, c *Config) {
				assert.Equal(t, "127.0.0.1:8500", c.ConcentratorAddr())
				require.Len(t, c.Sources, 1)
				s := c.Sources[0]
				assert.Equal(t, "aanderaa", s.Name)
				assert.Equal(t, "0.0.0.0:8502", s.ListenAddr())
				require.NotNil(t, s.MagneticDeclination)
				assert.Equal(t, -0.5, *s.MagneticDeclination)
				assert.Equal(t, 4096, s.ReadLimit)

				opt := c.ForwardOptions(nil)
				assert.Equal(t, 1024, opt.Buffer)
				assert.Equal(t, 1*time.Second, opt.BackoffMin)
				assert.Equal(t, 600*time.Second, opt.BackoffMax)
				assert.Equal(t, 2*time.Second, opt.FlushTimeout)
				assert.Equal(t, "", c.Mirror.TopicPrefix)
			}, ""},

		{"full", map[string]string{"main.hcl": `
concentrator { host = "concentrator.local" port = 10110 }
source "optiplex" { kind = "optiplex" host = "10.0.0.5" port = 8501 }
source "gps" { kind = "passthrough" port = 8503 read_limit = 256 }
source "ctd" { kind = "temperature" device = "/dev/ttyUSB0" }
forward { buffer = 64 backoff_min_ms = 200 backoff_max_sec = 30 write_timeout_ms = 1500 flush_timeout_ms = 500 }
metrics { listen = "127.0.0.1:9108" }
mirror { broker = "tcp://127.0.0.1:1883" }
log { file = "/tmp/proxy.log" debug = true }
`},
			func(t testing.TB, c *Config) {
				require.Len(t, c.Sources, 3)
				assert.Equal(t, "10.0.0.5:8501", c.Sources[0].ListenAddr())
				assert.Equal(t, 256, c.Sources[1].ReadLimit)
				assert.Equal(t, "", c.Sources[2].ListenAddr())
				assert.Equal(t, 9600, c.Sources[2].Baud)
				opt := c.ForwardOptions(nil)
				assert.Equal(t, "concentrator.local:10110", opt.Addr)
				assert.Equal(t, 64, opt.Buffer)
				assert.Equal(t, 200*time.Millisecond, opt.BackoffMin)
				assert.Equal(t, 30*time.Second, opt.BackoffMax)
				assert.Equal(t, 1500*time.Millisecond, opt.WriteTimeout)
				assert.Equal(t, 500*time.Millisecond, opt.FlushTimeout)
				assert.Equal(t, "127.0.0.1:9108", c.Metrics.Listen)
				assert.Equal(t, "nmeaproxy", c.Mirror.TopicPrefix)
				assert.True(t, c.Log.Debug)
			}, ""},

		{"include", map[string]string{
			"main.hcl":    testMinimal + `include "sensors.hcl" {}` + "\n" + `include "local.hcl" { optional = true }`,
			"sensors.hcl": `source "gps" { kind = "passthrough" port = 8503 }`,
		},
			func(t testing.TB, c *Config) {
				require.Len(t, c.Sources, 2)
				assert.Equal(t, "aanderaa", c.Sources[0].Name)
				assert.Equal(t, "gps", c.Sources[1].Name)
				assert.Nil(t, c.XXX_Include)
			}, ""},

		{"include-loop", map[string]string{
			"main.hcl":  testMinimal + `include "other.hcl" {}`,
			"other.hcl": `include "main.hcl" {}`,
		}, nil, "include loop"},
		{"include-missing", map[string]string{
			"main.hcl": testMinimal + `include "absent.hcl" {}`,
		}, nil, "absent.hcl"},
		{"missing", map[string]string{}, nil, "not found"},
		{"syntax", map[string]string{"main.hcl": `concentrator { host = `}, nil, "unmarshal"},

		{"port-range", map[string]string{"main.hcl": `
concentrator { host = "127.0.0.1" port = 70000 }
source "gps" { kind = "passthrough" port = 0 }
`}, nil, "between 1 and 65535"},
		{"no-concentrator", map[string]string{"main.hcl": `source "gps" { kind = "passthrough" port = 8503 }`},
			nil, "concentrator host is required"},
		{"no-sources", map[string]string{"main.hcl": `concentrator { host = "127.0.0.1" port = 8500 }`},
			nil, "no sources"},
		{"bad-host", map[string]string{"main.hcl": `
concentrator { host = "not a host!" port = 8500 }
source "gps" { kind = "passthrough" port = 8503 }
`}, nil, "IP address or hostname"},
		{"duplicate-name", map[string]string{"main.hcl": testMinimal + `
source "aanderaa" { kind = "passthrough" port = 8600 }
`}, nil, "duplicate name"},
		{"duplicate-port", map[string]string{"main.hcl": testMinimal + `
source "gps" { kind = "passthrough" port = 8502 }
`}, nil, "already used by source aanderaa"},
		{"unknown-kind", map[string]string{"main.hcl": `
concentrator { host = "127.0.0.1" port = 8500 }
source "x" { kind = "sonar" port = 8503 }
`}, nil, "adapter kind"},
		{"flow-without-declination", map[string]string{"main.hcl": `
concentrator { host = "127.0.0.1" port = 8500 }
source "aanderaa" { kind = "flow" port = 8502 }
`}, nil, "magnetic_declination is required"},
		{"flow-declination-range", map[string]string{"main.hcl": `
concentrator { host = "127.0.0.1" port = 8500 }
source "aanderaa" { kind = "flow" port = 8502 magnetic_declination = 60.5 }
`}, nil, "between -50 and 50"},
		{"port-and-device", map[string]string{"main.hcl": `
concentrator { host = "127.0.0.1" port = 8500 }
source "ctd" { kind = "temperature" port = 8504 device = "/dev/ttyUSB0" }
`}, nil, "exactly one of port or device"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			cfg, err := Read(log, NewMockFullReader(c.files), "main.hcl")
			if c.expectErr == "" {
				require.NoError(t, err)
				c.check(t, cfg)
				return
			}
			require.Error(t, err)
			var ce *Error
			assert.True(t, errors.As(err, &ce), "err=%T", err)
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	t.Parallel()

	c := &Config{}
	c.Sources = []Source{{Name: "a", Kind: "flow", Port: 99999}}
	err := c.Validate()
	require.Error(t, err)
	s := err.Error()
	assert.Contains(t, s, "concentrator host")
	assert.Contains(t, s, "concentrator.port")
	assert.Contains(t, s, "source a port")
	assert.Contains(t, s, "magnetic_declination")
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	decl := -0.5
	whole := 3.0
	c := &Config{}
	c.Concentrator.Host = "192.168.1.10"
	c.Concentrator.Port = 8500
	c.Sources = []Source{
		{Name: "aanderaa", Kind: "flow", Port: 8502, MagneticDeclination: &decl, Separator: ";"},
		{Name: "aanderaa-2", Kind: "flow", Host: "127.0.0.1", Port: 8505, MagneticDeclination: &whole},
		{Name: "optiplex", Kind: "optiplex", Port: 8501},
		{Name: "ctd", Kind: "temperature", Device: "/dev/ttyS1", Baud: 4800},
	}
	c.Metrics.Listen = ":9108"
	c.Mirror.Broker = "tcp://broker:1883"
	c.Mirror.ClientID = "proxy-1"
	c.Log.File = "/var/log/nmeaproxy.log"
	c.ApplyDefaults()
	require.NoError(t, c.Validate())

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	t.Logf("written:\n%s", buf.String())

	c2, err := Read(log2.NewTest(t, log2.LDebug), NewMockFullReader(map[string]string{"nmeaproxy.hcl": buf.String()}), "nmeaproxy.hcl")
	require.NoError(t, err)
	if diff := cmp.Diff(c, c2, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("round trip (-written +read):\n%s", diff)
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"),
		[]byte(testMinimal+`include "extra.hcl" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.hcl"),
		[]byte(`source "gps" { kind = "passthrough" port = 8503 }`), 0o644))

	c, err := ReadFile(log2.NewTest(t, log2.LDebug), filepath.Join(dir, "main.hcl"))
	require.NoError(t, err)
	require.Len(t, c.Sources, 2)

	_, err = ReadFile(log2.NewTest(t, log2.LDebug), filepath.Join(dir, "absent.hcl"))
	assert.Error(t, err)
}

func TestSourceBuild(t *testing.T) {
	t.Parallel()

	decl := 1.5
	s := Source{Name: "aanderaa", Kind: "Flow", Host: "0.0.0.0", Port: 8502, MagneticDeclination: &decl, ReadLimit: 100}
	ls, err := s.Build()
	require.NoError(t, err)
	assert.Equal(t, "aanderaa", ls.Name)
	assert.Equal(t, "0.0.0.0:8502", ls.Listen)
	assert.Equal(t, adapter.KindFlow, ls.Adapter.Kind())
	assert.Equal(t, 100, ls.ReadLimit)

	s.MagneticDeclination = nil
	_, err = s.Build()
	assert.Error(t, err)
}

func TestCheckHost(t *testing.T) {
	t.Parallel()

	for _, h := range []string{"127.0.0.1", "::1", "localhost", "concentrator.ship.lan", "a-b"} {
		assert.NoError(t, CheckHost("h", h), h)
	}
	for _, h := range []string{"", "-a", "a b", "host_name", "a..b"} {
		assert.Error(t, CheckHost("h", h), h)
	}
}
