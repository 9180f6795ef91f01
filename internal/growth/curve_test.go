package growth

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func testParameters() Parameters {
	return Parameters{
		MaxHeight:        f(30),
		AvgDbh:           f(20),
		GB:               f(2),
		GC:               f(0.05),
		GBDbh:            f(2.5),
		GCDbh:            f(0.08),
		AllometricCoeffA: f(0.05),
		AllometricCoeffB: f(2.5),
		RCoeff:           f(0.24),
	}
}

func TestGenerate_HeightAtYearZero(t *testing.T) {
	curve, err := Generate(testParameters(), 10)
	require.NoError(t, err)

	p := curve.At(0)
	assert.InDelta(t, 4.06, p.Height, 0.01)
	assert.Equal(t, p.CO2eq, p.DeltaCO2)
}

func TestGenerate_HeightApproachesMaximum(t *testing.T) {
	curve, err := Generate(testParameters(), 50)
	require.NoError(t, err)

	last := curve.At(curve.Years())
	assert.Less(t, last.Height, 30.0)
	assert.Greater(t, last.Height, curve.At(0).Height)
	assert.InDelta(t, 30.0, curve.At(1000).Height, 1e-6)
}

func TestGenerate_ClampsHorizon(t *testing.T) {
	curve, err := Generate(testParameters(), 120)
	require.NoError(t, err)

	assert.Equal(t, MaxYears, curve.Years())
	assert.Len(t, curve.Points(), MaxYears+1)
}

func TestGenerate_ZeroHorizon(t *testing.T) {
	curve, err := Generate(testParameters(), 0)
	require.NoError(t, err)

	points := curve.Points()
	require.Len(t, points, 1)
	assert.Equal(t, 0, points[0].Year)
}

func TestGenerate_NegativeHorizon(t *testing.T) {
	_, err := Generate(testParameters(), -1)
	assert.ErrorIs(t, err, ErrInvalidYearRange)
}

func TestGenerate_MissingParameters(t *testing.T) {
	params := testParameters()
	params.GC = nil
	params.RCoeff = nil

	_, err := Generate(params, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingGrowthParameters)

	var missing *MissingParametersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{FieldGC, FieldRCoeff}, missing.Fields)
}

func TestCurve_MonotonicGrowth(t *testing.T) {
	sets := []Parameters{
		testParameters(),
		{
			MaxHeight: f(45), AvgDbh: f(60), GB: f(4), GC: f(0.12), GBDbh: f(3), GCDbh: f(0.2),
			AllometricCoeffA: f(0.1), AllometricCoeffB: f(2.3), RCoeff: f(0.3),
		},
		{
			MaxHeight: f(8), AvgDbh: f(12), GB: f(0.5), GC: f(0.01), GBDbh: f(0.7), GCDbh: f(0.02),
			AllometricCoeffA: f(0.2), AllometricCoeffB: f(2), RCoeff: f(0.2),
		},
	}

	for _, params := range sets {
		curve, err := Generate(params, 50)
		require.NoError(t, err)

		points := curve.Points()
		for i := 1; i < len(points); i++ {
			assert.GreaterOrEqual(t, points[i].Height, points[i-1].Height)
			assert.GreaterOrEqual(t, points[i].Diameter, points[i-1].Diameter)
			assert.GreaterOrEqual(t, points[i].CO2eq, 0.0)
		}
	}
}

func TestCurve_DeltaTelescopes(t *testing.T) {
	curve, err := Generate(testParameters(), 35)
	require.NoError(t, err)

	var sum float64
	for _, p := range curve.All() {
		sum += p.DeltaCO2
	}

	final := curve.At(35).CO2eq
	assert.InDelta(t, final, sum, 1e-9*math.Max(1, final))
}

func TestCurve_AllMatchesAt(t *testing.T) {
	curve, err := Generate(testParameters(), 20)
	require.NoError(t, err)

	for y, p := range curve.All() {
		assert.InDelta(t, curve.At(y).DeltaCO2, p.DeltaCO2, 1e-9)
	}
}

func TestCurve_RestartableIteration(t *testing.T) {
	curve, err := Generate(testParameters(), 15)
	require.NoError(t, err)

	assert.Equal(t, curve.Points(), curve.Points())
}

func TestCurve_DeltaOutsideRange(t *testing.T) {
	curve, err := Generate(testParameters(), 5)
	require.NoError(t, err)

	assert.Zero(t, curve.Delta(-1))
	assert.Zero(t, curve.Delta(6))
	assert.NotZero(t, curve.Delta(5))
}

func TestGenerate_RejectsNonFiniteCurve(t *testing.T) {
	params := testParameters()
	params.AvgDbh = f(0)
	params.AllometricCoeffB = f(-1)

	curve, err := Generate(params, 2)
	assert.Nil(t, curve)
	require.ErrorIs(t, err, ErrNonFiniteCurve)

	var nonFinite *NonFiniteError
	require.True(t, errors.As(err, &nonFinite))
	assert.Equal(t, 0, nonFinite.Year)
	assert.Equal(t, "agb", nonFinite.Field)
}

func TestCO2Equivalent(t *testing.T) {
	assert.InDelta(t, 1.7233, CO2Equivalent(1), 1e-4)
}

func TestDescribe(t *testing.T) {
	meta := Describe()
	assert.Equal(t, "Gompertz", meta.Name)
	assert.Len(t, meta.Steps, 6)
	assert.ElementsMatch(t, CurveFields, meta.RequiredFields)
}
