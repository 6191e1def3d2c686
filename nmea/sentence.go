package nmea

import (
	"fmt"
	"math"
	"strconv"
)

// Talker ids of produced sentences.
const (
	TalkerFlow        = "VWVDR"
	TalkerTemperature = "VWMTW"
	TalkerDepth       = "VWDPT"
	// No standard sentence exists for pressure, hence proprietary '!' talker.
	TalkerPressure = "PPRE"
)

// FormatError means a builder got non-finite value.
// Caller drops the reading.
type FormatError struct {
	Sentence string
	Field    string
	Value    float64
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("nmea %s: field %s value=%v is not finite", e.Sentence, e.Field, e.Value)
}

func finite(sentence, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &FormatError{Sentence: sentence, Field: field, Value: v}
	}
	return nil
}

// Decimal formats v with one fractional digit, "-0.0" becomes "0.0".
func Decimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if s == "-0.0" {
		return "0.0"
	}
	return s
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m = 0
	}
	return m
}

// MagneticBearing is (true + declination) mod 360.
func MagneticBearing(trueDeg, declination float64) float64 {
	return NormalizeBearing(trueDeg + declination)
}

// TrueBearing is (magnetic - declination) mod 360.
func TrueBearing(magneticDeg, declination float64) float64 {
	return NormalizeBearing(magneticDeg - declination)
}

// bearing rounds to one fractional digit first so 359.96 renders as 0.0, not 360.0
func bearing(deg float64) string {
	r := math.Round(NormalizeBearing(deg)*10) / 10
	return Decimal(NormalizeBearing(r))
}

// WaterFlow is decoded current meter reading.
type WaterFlow struct {
	TrueDeg     float64
	MagneticDeg float64
	SpeedKnots  float64
}

// NewWaterFlow computes magnetic bearing from true bearing and declination.
func NewWaterFlow(trueDeg, declination, speedKnots float64) WaterFlow {
	return WaterFlow{
		TrueDeg:     NormalizeBearing(trueDeg),
		MagneticDeg: MagneticBearing(trueDeg, declination),
		SpeedKnots:  speedKnots,
	}
}

// MagneticWaterFlow is for instruments with a compass, they report magnetic bearing.
func MagneticWaterFlow(magneticDeg, declination, speedKnots float64) WaterFlow {
	return WaterFlow{
		TrueDeg:     TrueBearing(magneticDeg, declination),
		MagneticDeg: NormalizeBearing(magneticDeg),
		SpeedKnots:  speedKnots,
	}
}

// FlowSentence builds `$VWVDR,<true>,T,<magnetic>,M,<speed>,N`.
func FlowSentence(w WaterFlow) (Frame, error) {
	for _, f := range []struct {
		name string
		v    float64
	}{{"true", w.TrueDeg}, {"magnetic", w.MagneticDeg}, {"speed", w.SpeedKnots}} {
		if err := finite(TalkerFlow, f.name, f.v); err != nil {
			return nil, err
		}
	}
	return Encode(DelimStandard, TalkerFlow,
		bearing(w.TrueDeg), "T",
		bearing(w.MagneticDeg), "M",
		Decimal(w.SpeedKnots), "N"), nil
}

// TemperatureSentence builds `$VWMTW,<celsius>,C`.
func TemperatureSentence(celsius float64) (Frame, error) {
	if err := finite(TalkerTemperature, "celsius", celsius); err != nil {
		return nil, err
	}
	return Encode(DelimStandard, TalkerTemperature, Decimal(celsius), "C"), nil
}

// DepthSentence builds `$VWDPT,<meters>,,`, negative depth keeps its sign.
func DepthSentence(meters float64) (Frame, error) {
	if err := finite(TalkerDepth, "meters", meters); err != nil {
		return nil, err
	}
	return Encode(DelimStandard, TalkerDepth, Decimal(meters), "", ""), nil
}

// PressureSentence builds `!PPRE,<pascals>,P`.
func PressureSentence(pascals float64) (Frame, error) {
	if err := finite(TalkerPressure, "pascals", pascals); err != nil {
		return nil, err
	}
	return Encode(DelimEncapsulated, TalkerPressure, Decimal(pascals), "P"), nil
}
