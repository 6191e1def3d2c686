// Package config reads proxy configuration from hcl files.
//
//	concentrator { host = "127.0.0.1" port = 8500 }
//	source "aanderaa" { kind = "flow" port = 8502 magnetic_declination = -0.5 }
//	include "local.hcl" { optional = true }
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/adapter"
	"github.com/temoto/nmeaproxy/forward"
	"github.com/temoto/nmeaproxy/helpers"
	"github.com/temoto/nmeaproxy/listen"
	"github.com/temoto/nmeaproxy/log2"
)

const (
	DefaultListenHost  = "0.0.0.0"
	DefaultTopicPrefix = "nmeaproxy"
	DefaultLogFile     = "nmea_converter_proxy.log"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Include `hcl:"include"`

	Concentrator struct {
		Host string `hcl:"host"`
		Port int    `hcl:"port"`
	} `hcl:"concentrator"`

	Sources []Source `hcl:"source"`

	Forward struct {
		Buffer         int `hcl:"buffer"`
		BackoffMinMs   int `hcl:"backoff_min_ms"`
		BackoffMaxSec  int `hcl:"backoff_max_sec"`
		DialTimeoutMs  int `hcl:"dial_timeout_ms"`
		WriteTimeoutMs int `hcl:"write_timeout_ms"`
		FlushTimeoutMs int `hcl:"flush_timeout_ms"`
	} `hcl:"forward"`

	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`

	Mirror struct {
		Broker      string `hcl:"broker"`
		TopicPrefix string `hcl:"topic_prefix"`
		ClientID    string `hcl:"client_id"`
	} `hcl:"mirror"`

	Log struct {
		File  string `hcl:"file"`
		Debug bool   `hcl:"debug"`
	} `hcl:"log"`
}

type Include struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Source is one instrument input, either TCP port or serial device.
type Source struct {
	Name                string   `hcl:"name,key"`
	Kind                string   `hcl:"kind"`
	Host                string   `hcl:"host"`
	Port                int      `hcl:"port"`
	Device              string   `hcl:"device"`
	Baud                int      `hcl:"baud"`
	MagneticDeclination *float64 `hcl:"magnetic_declination"`
	Separator           string   `hcl:"separator"`
	ReadLimit           int      `hcl:"read_limit"`
}

// Error is any problem with configuration, fatal at startup.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config source=%s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (c *Config) read(log *log2.Log, fs FullReader, source Include, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []Include
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read parses names in order, later files and includes add to earlier ones.
// Result is validated, any problem is returned as *Error.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, &Error{Err: errors.New("code error config.Read() without names")}
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if dir != "" {
			osfs.SetBase(dir)
		}
		names = append([]string{name}, names[1:]...)
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Include{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, &Error{Source: names[0], Err: err}
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, &Error{Source: names[0], Err: err}
	}
	return c, nil
}

// ReadFile is Read for a single file on disk, includes are relative to it.
func ReadFile(log *log2.Log, path string) (*Config, error) {
	fs, err := NewOsFullReader(".")
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	return Read(log, fs, path)
}

func (c *Config) ApplyDefaults() {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Device == "" && s.Host == "" {
			s.Host = DefaultListenHost
		}
		if s.Device != "" && s.Baud == 0 {
			s.Baud = listen.DefaultBaud
		}
		if s.ReadLimit == 0 {
			s.ReadLimit = listen.DefaultReadLimit
		}
	}
	f := &c.Forward
	if f.Buffer == 0 {
		f.Buffer = forward.DefaultBuffer
	}
	if f.BackoffMinMs == 0 {
		f.BackoffMinMs = int(forward.DefaultBackoffMin / time.Millisecond)
	}
	if f.BackoffMaxSec == 0 {
		f.BackoffMaxSec = int(forward.DefaultBackoffMax / time.Second)
	}
	if f.DialTimeoutMs == 0 {
		f.DialTimeoutMs = int(forward.DefaultDialTimeout / time.Millisecond)
	}
	if f.WriteTimeoutMs == 0 {
		f.WriteTimeoutMs = int(forward.DefaultWriteTimeout / time.Millisecond)
	}
	if f.FlushTimeoutMs == 0 {
		f.FlushTimeoutMs = int(forward.DefaultFlushTimeout / time.Millisecond)
	}
	if c.Mirror.Broker != "" && c.Mirror.TopicPrefix == "" {
		c.Mirror.TopicPrefix = DefaultTopicPrefix
	}
}

func (c *Config) ConcentratorAddr() string {
	return net.JoinHostPort(c.Concentrator.Host, strconv.Itoa(c.Concentrator.Port))
}

func (c *Config) ForwardOptions(log *log2.Log) forward.Options {
	return forward.Options{
		Addr:         c.ConcentratorAddr(),
		Buffer:       c.Forward.Buffer,
		BackoffMin:   time.Duration(c.Forward.BackoffMinMs) * time.Millisecond,
		BackoffMax:   time.Duration(c.Forward.BackoffMaxSec) * time.Second,
		BackoffK:     forward.DefaultBackoffK,
		DialTimeout:  time.Duration(c.Forward.DialTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(c.Forward.WriteTimeoutMs) * time.Millisecond,
		FlushTimeout: time.Duration(c.Forward.FlushTimeoutMs) * time.Millisecond,
		Log:          log,
	}
}

func (s *Source) ListenAddr() string {
	if s.Device != "" {
		return ""
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Build creates adapter and listen.Source from validated config.
func (s *Source) Build() (listen.Source, error) {
	kind, err := adapter.ParseKind(s.Kind)
	if err != nil {
		return listen.Source{}, errors.Annotatef(err, "source=%s", s.Name)
	}
	a, err := adapter.New(s.Name, kind, adapter.Params{
		MagneticDeclination: s.MagneticDeclination,
		Separator:           s.Separator,
	})
	if err != nil {
		return listen.Source{}, err
	}
	return listen.Source{
		Name:      s.Name,
		Adapter:   a,
		Listen:    s.ListenAddr(),
		Device:    s.Device,
		Baud:      s.Baud,
		ReadLimit: s.ReadLimit,
	}, nil
}
