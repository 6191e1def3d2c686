package adapter

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/nmeaproxy/nmea"
)

// Aanderaa current meter scaling, raw integer counts to units.
const (
	aanderaaSpeedScale       = 2.933e-01 // cm/s
	aanderaaDirectionScale   = 3.516e-01 // degrees
	aanderaaTemperatureScale = 5.181e-02 // Celsius
	cmsToKnots               = 0.01944
)

// Aanderaa is one decoded current meter reading.
type Aanderaa struct {
	Reference int
	SpeedCms  float64
	// compass bearing, magnetic
	Direction   float64
	Temperature float64
}

func (a Aanderaa) SpeedKnots() float64 { return a.SpeedCms * cmsToKnots }

// ParseAanderaa decodes `ref speed direction temperature` line, e.g.
//
//	0701 0116 0906 0366\r\n
//
// The device sends NUL after each space, those are treated as spaces.
// Empty sep means any run of whitespace.
func ParseAanderaa(line []byte, sep string) (Aanderaa, error) {
	s := string(bytes.ReplaceAll(line, []byte{0}, []byte{' '}))
	s = strings.TrimSpace(s)
	if s == "" {
		return Aanderaa{}, ErrEmpty
	}
	var fields []string
	if sep == "" {
		fields = strings.Fields(s)
	} else {
		fields = strings.Split(s, sep)
	}
	if len(fields) != 4 {
		return Aanderaa{}, errors.Annotatef(ErrFieldCount, "expected=4 actual=%d", len(fields))
	}
	var ints [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Aanderaa{}, errors.Annotatef(err, "field=%d", i+1)
		}
		ints[i] = n
	}
	return Aanderaa{
		Reference:   ints[0],
		SpeedCms:    float64(ints[1]) * aanderaaSpeedScale,
		Direction:   float64(ints[2]) * aanderaaDirectionScale,
		Temperature: float64(ints[3]) * aanderaaTemperatureScale,
	}, nil
}

// flow emits water flow and, from the same reading, water temperature.
type flow struct {
	base
	declination float64
	sep         string
}

func (f *flow) Decode(raw []byte) ([]nmea.Frame, error) {
	a, err := ParseAanderaa(raw, f.sep)
	if err != nil {
		return nil, f.fail(raw, err)
	}
	vdr, err := nmea.FlowSentence(nmea.MagneticWaterFlow(a.Direction, f.declination, a.SpeedKnots()))
	if err != nil {
		return nil, f.fail(raw, err)
	}
	mtw, err := nmea.TemperatureSentence(a.Temperature)
	if err != nil {
		return nil, f.fail(raw, err)
	}
	return []nmea.Frame{vdr, mtw}, nil
}
