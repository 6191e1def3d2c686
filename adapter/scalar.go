package adapter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/nmea"
)

// unit suffix -> multiplier to sentence unit, "" is default unit
type unitTable map[string]float64

var (
	temperatureUnits = unitTable{"": 1, "c": 1}
	depthUnits       = unitTable{"": 1, "m": 1, "cm": 0.01, "mm": 0.001}
	pressureUnits    = unitTable{"": 1, "pa": 1, "hpa": 100, "mbar": 100, "kpa": 1000}
)

var reScalar = regexp.MustCompile(`^([+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)\s*([A-Za-z]*)$`)

// scalar decodes single numeric reading, either optiplex line or `<number>[unit]`.
type scalar struct {
	base
	units unitTable
	build func(float64) (nmea.Frame, error)
}

func (s *scalar) Decode(raw []byte) ([]nmea.Frame, error) {
	value, unit, err := parseScalar(raw)
	if err != nil {
		return nil, s.fail(raw, err)
	}
	k, ok := s.units[strings.ToLower(unit)]
	if !ok {
		return nil, s.fail(raw, errors.NotValidf("unit=%q for kind=%s", unit, s.kind))
	}
	f, err := s.build(value * k)
	if err != nil {
		return nil, s.fail(raw, err)
	}
	return []nmea.Frame{f}, nil
}

func parseScalar(raw []byte) (float64, string, error) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return 0, "", ErrEmpty
	}
	// optiplex first, its glued timestamp+value would pass as one big number
	if reOptiplex.MatchString(line) {
		o, err := ParseOptiplex(raw)
		if err != nil {
			return 0, "", err
		}
		return o.Value, o.Unit, nil
	}
	m := reScalar.FindStringSubmatch(line)
	if m == nil {
		return 0, "", errors.NotValidf("numeric reading")
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", errors.Annotate(err, "value")
	}
	return v, m[2], nil
}
