// Package adapter turns raw instrument lines into concentrator frames.
// Adapter kinds are a closed set, chosen by explicit `kind` in source config.
package adapter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/nmea"
)

type Kind string

const (
	KindPassthrough Kind = "passthrough"
	KindFlow        Kind = "flow"
	KindTemperature Kind = "temperature"
	KindDepth       Kind = "depth"
	KindPressure    Kind = "pressure"
	KindOptiplex    Kind = "optiplex"
)

var Kinds = []Kind{KindPassthrough, KindFlow, KindTemperature, KindDepth, KindPressure, KindOptiplex}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.NotValidf("adapter kind=%q (known: %s)", s, kindList())
}

// Passthrough sources keep line terminator and bytes exactly as received.
func (k Kind) Passthrough() bool { return k == KindPassthrough }

func kindList() string {
	ss := make([]string, len(Kinds))
	for i, k := range Kinds {
		ss[i] = string(k)
	}
	return strings.Join(ss, ",")
}

// Params are adapter specific settings, only some kinds read each field.
type Params struct {
	// flow: magnetic = true + declination, degrees
	MagneticDeclination *float64
	// flow: field separator, default is any whitespace
	Separator string
}

type Adapter interface {
	Name() string
	Kind() Kind
	// Decode returns frames for one reading.
	// Error is always *DecodeError, the reading should be dropped.
	Decode(raw []byte) ([]nmea.Frame, error)
}

// DecodeError names the source and offending raw text.
type DecodeError struct {
	Source string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("source=%s decode raw=%q: %v", e.Source, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	ErrEmpty      = fmt.Errorf("empty line")
	ErrFieldCount = fmt.Errorf("wrong field count")
)

// New validates params for kind and returns adapter.
// Missing required parameter is a configuration error.
func New(name string, kind Kind, p Params) (Adapter, error) {
	base := base{name: name, kind: kind}
	switch kind {
	case KindPassthrough:
		return passthrough{base}, nil

	case KindFlow:
		if p.MagneticDeclination == nil {
			return nil, errors.NotValidf("source=%s kind=flow magnetic_declination is required", name)
		}
		return &flow{base: base, declination: *p.MagneticDeclination, sep: p.Separator}, nil

	case KindTemperature:
		return &scalar{base: base, units: temperatureUnits, build: nmea.TemperatureSentence}, nil

	case KindDepth:
		return &scalar{base: base, units: depthUnits, build: nmea.DepthSentence}, nil

	case KindPressure:
		return &scalar{base: base, units: pressureUnits, build: nmea.PressureSentence}, nil

	case KindOptiplex:
		return optiplex{base}, nil
	}
	return nil, errors.NotValidf("source=%s adapter kind=%q", name, kind)
}

type base struct {
	name string
	kind Kind
}

func (b base) Name() string { return b.name }
func (b base) Kind() Kind   { return b.kind }

func (b base) fail(raw []byte, err error) error {
	return &DecodeError{Source: b.name, Raw: string(raw), Err: err}
}

type passthrough struct{ base }

func (p passthrough) Decode(raw []byte) ([]nmea.Frame, error) {
	if len(bytes.TrimRight(raw, "\r\n")) == 0 {
		return nil, p.fail(raw, ErrEmpty)
	}
	// listener reuses read buffer
	f := make(nmea.Frame, len(raw))
	copy(f, raw)
	return []nmea.Frame{f}, nil
}
