package config

import (
	"math"
	"net"
	"regexp"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/adapter"
	"github.com/temoto/nmeaproxy/helpers"
)

const MaxMagneticDeclination = 50

var reHostname = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// Validate returns all problems at once, each is NotValid.
func (c *Config) Validate() error {
	errs := make([]error, 0)
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Concentrator.Host == "" {
		add(errors.NotValidf("concentrator host is required, concentrator.host"))
	} else {
		add(CheckHost("concentrator.host", c.Concentrator.Host))
	}
	add(CheckPort("concentrator.port", c.Concentrator.Port))

	if len(c.Sources) == 0 {
		add(errors.NotValidf("no sources configured, source"))
	}
	names := make(map[string]struct{}, len(c.Sources))
	ports := make(map[int]string, len(c.Sources))
	devices := make(map[string]string, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		prefix := "source " + s.Name
		if _, ok := names[s.Name]; ok {
			add(errors.NotValidf("%s duplicate name", prefix))
		}
		names[s.Name] = struct{}{}

		kind, err := adapter.ParseKind(s.Kind)
		add(errors.Annotate(err, prefix))

		switch {
		case s.Device != "" && s.Port != 0:
			add(errors.NotValidf("%s exactly one of port or device, both", prefix))
		case s.Device != "":
			if other, ok := devices[s.Device]; ok {
				add(errors.NotValidf("%s device=%s already used by source %s", prefix, s.Device, other))
			}
			devices[s.Device] = s.Name
			if s.Baud < 0 {
				add(errors.NotValidf("%s baud=%d", prefix, s.Baud))
			}
		default:
			if err := CheckPort(prefix+" port", s.Port); err != nil {
				add(err)
			} else if other, ok := ports[s.Port]; ok {
				add(errors.NotValidf("%s port=%d already used by source %s", prefix, s.Port, other))
			}
			ports[s.Port] = s.Name
			if s.Host != "" {
				add(CheckHost(prefix+" host", s.Host))
			}
		}

		if kind == adapter.KindFlow {
			add(CheckDeclination(prefix, s.MagneticDeclination))
		}
		if s.ReadLimit < 0 {
			add(errors.NotValidf("%s read_limit=%d", prefix, s.ReadLimit))
		}
	}

	if c.Forward.Buffer < 0 {
		add(errors.NotValidf("forward buffer=%d", c.Forward.Buffer))
	}
	if c.Forward.BackoffMinMs < 0 || c.Forward.BackoffMaxSec < 0 ||
		int64(c.Forward.BackoffMaxSec)*1000 < int64(c.Forward.BackoffMinMs) {
		add(errors.NotValidf("forward backoff min=%dms max=%ds", c.Forward.BackoffMinMs, c.Forward.BackoffMaxSec))
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			add(errors.NotValidf("metrics listen=%q", c.Metrics.Listen))
		}
	}
	return helpers.FoldErrors(errs)
}

func CheckPort(what string, port int) error {
	if port < 1 || port > 65535 {
		return errors.NotValidf("%s must be a number between 1 and 65535, %d", what, port)
	}
	return nil
}

// CheckHost accepts IP address or hostname.
func CheckHost(what, host string) error {
	if net.ParseIP(host) != nil || reHostname.MatchString(host) {
		return nil
	}
	return errors.NotValidf("%s must be IP address or hostname, %q", what, host)
}

func CheckDeclination(what string, d *float64) error {
	if d == nil {
		return errors.NotValidf("%s magnetic_declination is required for kind=flow", what)
	}
	if math.IsNaN(*d) || math.Abs(*d) > MaxMagneticDeclination {
		return errors.NotValidf("%s magnetic_declination must be between -50 and 50, %v", what, *d)
	}
	return nil
}
