package nmea

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		frame  Frame
		expect string
	}{
		{"gpgll", Encode('$', "GPGLL", "5057.970", "N", "00146.110", "E", "142451", "A"),
			"$GPGLL,5057.970,N,00146.110,E,142451,A*27\r\n"},
		{"gpvtg-empty-fields", Encode('$', "GPVTG", "089.0", "T", "", "", "15.2", "N", "", ""),
			"$GPVTG,089.0,T,,,15.2,N,,*7F\r\n"},
		{"append-with-delim", AppendChecksum([]byte("$VWMTW,18.9,C")), "$VWMTW,18.9,C*12\r\n"},
		{"append-without-delim", AppendChecksum([]byte("VWMTW,18.9,C")), "VWMTW,18.9,C*12\r\n"},
		{"empty", AppendChecksum(nil), "*00\r\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, string(c.frame))
		})
	}
}

func TestSentences(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		build  func() (Frame, error)
		expect string
	}
	cases := []Case{
		{"depth-negative", func() (Frame, error) { return DepthSentence(-1.0) }, "$VWDPT,-1.0,,*6F\r\n"},
		{"depth", func() (Frame, error) { return DepthSentence(5.438) }, "$VWDPT,5.4,,*42\r\n"},
		{"pressure", func() (Frame, error) { return PressureSentence(102400.0) }, "!PPRE,102400.0,P*5E\r\n"},
		{"pressure-hpa", func() (Frame, error) { return PressureSentence(1001.6 * 100) }, "!PPRE,100160.0,P*5F\r\n"},
		{"temperature", func() (Frame, error) { return TemperatureSentence(18.96246) }, "$VWMTW,19.0,C*1A\r\n"},
		{"temperature-negative-zero", func() (Frame, error) { return TemperatureSentence(-0.01) }, "$VWMTW,0.0,C*22\r\n"},
		{"flow", func() (Frame, error) { return FlowSentence(NewWaterFlow(318.0, -0.5, 34.0)) },
			"$VWVDR,318.0,T,317.5,M,34.0,N*05\r\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			f, err := c.build()
			require.NoError(t, err)
			assert.Equal(t, c.expect, string(f))
			assert.NoError(t, Verify(f))
		})
	}
}

func TestSentenceNonFinite(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := DepthSentence(v)
		require.Error(t, err)
		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, TalkerDepth, fe.Sentence)

		_, err = PressureSentence(v)
		assert.Error(t, err)
		_, err = TemperatureSentence(v)
		assert.Error(t, err)
		_, err = FlowSentence(WaterFlow{TrueDeg: 1, MagneticDeg: 1, SpeedKnots: v})
		assert.Error(t, err)
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := (rnd.Float64() - 0.5) * 2e6
		for _, f := range []Frame{
			mustFrame(t)(DepthSentence(v)),
			mustFrame(t)(PressureSentence(v)),
			mustFrame(t)(TemperatureSentence(v)),
		} {
			body, declared, err := Split(f)
			require.NoError(t, err, "frame=%s", f)
			assert.Equal(t, declared, Checksum(body), "frame=%s", f)
			assert.Equal(t, fmt.Sprintf("%02X", declared), string(f[len(f)-4:len(f)-2]))
		}
	}
}

func TestMagneticBearingRange(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(2))
	check := func(tr, d float64) {
		m := MagneticBearing(tr, d)
		assert.True(t, m >= 0 && m < 360, "true=%v decl=%v magnetic=%v", tr, d, m)
		expect := math.Mod(math.Mod(tr+d, 360)+360, 360)
		if expect >= 360 {
			expect = 0
		}
		assert.InDelta(t, expect, m, 1e-9)
	}
	for i := 0; i < 2000; i++ {
		check(rnd.Float64()*720-360, rnd.Float64()*100-50)
	}
	check(0, -0.5)
	check(359.9, 0.1)
	check(360, 0)
	check(-1e-17, 0)
}

func TestFlowBearingRounding(t *testing.T) {
	t.Parallel()

	f, err := FlowSentence(NewWaterFlow(359.97, 0, 1))
	require.NoError(t, err)
	body, _, err := Split(f)
	require.NoError(t, err)
	assert.Equal(t, "VWVDR,0.0,T,0.0,M,1.0,N", string(body))

	f, err = FlowSentence(NewWaterFlow(0.2, -0.5, 0.66))
	require.NoError(t, err)
	body, _, err = Split(f)
	require.NoError(t, err)
	assert.Equal(t, "VWVDR,0.2,T,359.7,M,0.7,N", string(body))
}

func TestMagneticWaterFlow(t *testing.T) {
	t.Parallel()

	type Case struct {
		magnetic    float64
		declination float64
		expect      string
	}
	cases := []Case{
		{318.5496, -0.5, "VWVDR,319.0,T,318.5,M,0.7,N"},
		{0.2, 0.5, "VWVDR,359.7,T,0.2,M,0.7,N"},
		{359.9, -0.5, "VWVDR,0.4,T,359.9,M,0.7,N"},
		{10, 0, "VWVDR,10.0,T,10.0,M,0.7,N"},
	}
	for _, c := range cases {
		w := MagneticWaterFlow(c.magnetic, c.declination, 0.68)
		assert.InDelta(t, NormalizeBearing(c.magnetic), MagneticBearing(w.TrueDeg, c.declination), 1e-9,
			"magnetic must equal true+declination")
		f, err := FlowSentence(w)
		require.NoError(t, err)
		body, _, err := Split(f)
		require.NoError(t, err)
		assert.Equal(t, c.expect, string(body), "magnetic=%v declination=%v", c.magnetic, c.declination)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input     string
		expectErr string
	}{
		{"$GPGLL,5057.970,N,00146.110,E,142451,A*27\r\n", ""},
		{"$GPGLL,5057.970,N,00146.110,E,142451,A*27", ""},
		{"!PPRE,102400.0,P*5e\r\n", ""},
		{"$GPGLL,5057.970,N,00146.110,E,142451,A*28\r\n", "checksum mismatch declared=28 actual=27"},
		{"GPGLL,A*27\r\n", ErrNoDelimiter.Error()},
		{"$GPGLL,A\r\n", ErrNoChecksum.Error()},
		{"$GPGLL,A*2\r\n", ErrNoChecksum.Error()},
		{"$GPGLL,A*ZZ\r\n", `invalid checksum digits "ZZ"`},
		{"", ErrNoDelimiter.Error()},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			err := Verify([]byte(c.input))
			if c.expectErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, c.expectErr, err.Error())
			}
		})
	}
}

func mustFrame(t testing.TB) func(Frame, error) Frame {
	return func(f Frame, err error) Frame {
		require.NoError(t, err)
		return f
	}
}
