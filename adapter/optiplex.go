package adapter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/nmea"
)

// Optiplex is one level/pressure sensor reading.
type Optiplex struct {
	Time  time.Time
	Value float64
	Unit  string
	Alert *int
}

var reOptiplex = regexp.MustCompile(`(\d{8}\s*\d{6})\s*([+-]?[0-9.]+)\s*([a-zA-Z]+)\s*(\d*)`)

// ParseOptiplex decodes lines like
//
//	20101217 150000 +0543.8 cm 0\r\n
//	20101217150001+0544.0cm0\r\n
//	201012171500011001.6hPa\r\n
func ParseOptiplex(line []byte) (Optiplex, error) {
	s := strings.TrimSpace(string(line))
	if s == "" {
		return Optiplex{}, ErrEmpty
	}
	m := reOptiplex.FindStringSubmatch(s)
	if m == nil {
		return Optiplex{}, errors.NotValidf("optiplex format")
	}
	var o Optiplex
	var err error
	stamp := strings.Join(strings.Fields(m[1]), "")
	if o.Time, err = time.Parse("20060102150405", stamp); err != nil {
		return Optiplex{}, errors.Annotate(err, "timestamp")
	}
	if o.Value, err = strconv.ParseFloat(m[2], 64); err != nil {
		return Optiplex{}, errors.Annotate(err, "value")
	}
	o.Unit = m[3]
	if m[4] != "" {
		alert, err := strconv.Atoi(m[4])
		if err != nil {
			return Optiplex{}, errors.Annotate(err, "alert")
		}
		o.Alert = &alert
	}
	return o, nil
}

// optiplex routes by unit: cm -> depth in meters, hPa -> pressure in pascals.
type optiplex struct{ base }

func (p optiplex) Decode(raw []byte) ([]nmea.Frame, error) {
	o, err := ParseOptiplex(raw)
	if err != nil {
		return nil, p.fail(raw, err)
	}
	var f nmea.Frame
	switch o.Unit {
	case "cm":
		f, err = nmea.DepthSentence(o.Value / 100)
	case "hPa":
		f, err = nmea.PressureSentence(o.Value * 100)
	default:
		err = errors.NotValidf("optiplex unit=%q", o.Unit)
	}
	if err != nil {
		return nil, p.fail(raw, err)
	}
	return []nmea.Frame{f}, nil
}
