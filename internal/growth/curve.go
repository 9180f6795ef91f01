package growth

import (
	"fmt"
	"iter"
	"math"
)

const (
	// ModelName is the display label of the growth model.
	ModelName = "Gompertz"

	// CarbonFraction is the share of dry biomass that is carbon.
	CarbonFraction = 0.47

	// CO2PerCarbon is the CO2:C molar mass ratio.
	CO2PerCarbon = 44.0 / 12.0

	// MaxYears caps every simulation horizon.
	MaxYears = 50
)

// Point is the state of one individual of a species after Year elapsed years.
type Point struct {
	Year     int     `json:"year"`
	Height   float64 `json:"height"`
	Diameter float64 `json:"diameter"`
	AGB      float64 `json:"agb"`
	BGB      float64 `json:"bgb"`
	CO2eq    float64 `json:"co2eq"`
	DeltaCO2 float64 `json:"deltaCo2"`
}

// Curve is a finite growth curve over years 0..Years(). Points are computed
// on demand, so iterating it repeatedly is safe and has no side effects.
type Curve struct {
	coeffs Coefficients
	years  int
}

// Generate builds the growth curve of a species up to maxYears. Horizons
// above MaxYears are clamped; negative horizons are rejected. Every point of
// the returned curve is finite.
func Generate(params Parameters, maxYears int) (*Curve, error) {
	if maxYears < 0 {
		return nil, fmt.Errorf("%w: maxYears must not be negative, got %d", ErrInvalidYearRange, maxYears)
	}

	coeffs, err := params.Resolve()
	if err != nil {
		return nil, err
	}

	curve := &Curve{coeffs: coeffs, years: ClampYears(maxYears)}
	if err := curve.check(); err != nil {
		return nil, err
	}
	return curve, nil
}

func (c *Curve) check() error {
	for year, p := range c.All() {
		fields := []struct {
			name  string
			value float64
		}{
			{"height", p.Height},
			{"diameter", p.Diameter},
			{"agb", p.AGB},
			{"bgb", p.BGB},
			{"co2eq", p.CO2eq},
			{"deltaCo2", p.DeltaCO2},
		}
		for _, f := range fields {
			if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
				return &NonFiniteError{Year: year, Field: f.name}
			}
		}
	}
	return nil
}

// ClampYears bounds a horizon to [0, MaxYears].
func ClampYears(years int) int {
	if years > MaxYears {
		return MaxYears
	}
	if years < 0 {
		return 0
	}
	return years
}

// Years returns the last year of the curve.
func (c *Curve) Years() int {
	return c.years
}

// Len returns the number of points, year 0 included.
func (c *Curve) Len() int {
	return c.years + 1
}

// At computes the point for a single year.
func (c *Curve) At(year int) Point {
	p := c.state(year)
	if year == 0 {
		p.DeltaCO2 = p.CO2eq
	} else {
		p.DeltaCO2 = p.CO2eq - c.state(year-1).CO2eq
	}
	return p
}

// Delta returns deltaCo2 for year, or 0 outside the curve.
func (c *Curve) Delta(year int) float64 {
	if year < 0 || year > c.years {
		return 0
	}
	return c.At(year).DeltaCO2
}

// All yields every point of the curve in ascending year order.
func (c *Curve) All() iter.Seq2[int, Point] {
	return func(yield func(int, Point) bool) {
		var prev float64
		for y := 0; y <= c.years; y++ {
			p := c.state(y)
			if y == 0 {
				p.DeltaCO2 = p.CO2eq
			} else {
				p.DeltaCO2 = p.CO2eq - prev
			}
			prev = p.CO2eq
			if !yield(y, p) {
				return
			}
		}
	}
}

// Points materializes the curve.
func (c *Curve) Points() []Point {
	points := make([]Point, 0, c.Len())
	for _, p := range c.All() {
		points = append(points, p)
	}
	return points
}

// state computes every field but DeltaCO2.
func (c *Curve) state(year int) Point {
	y := float64(year)
	k := c.coeffs

	height := gompertz(k.MaxHeight, k.GB, k.GC, y)
	diameter := gompertz(k.AvgDbh, k.GBDbh, k.GCDbh, y)
	agb := AllometricBiomass(k.AllometricCoeffA, k.AllometricCoeffB, diameter)
	bgb := agb * k.RCoeff

	return Point{
		Year:     year,
		Height:   height,
		Diameter: diameter,
		AGB:      agb,
		BGB:      bgb,
		CO2eq:    CO2Equivalent(agb + bgb),
	}
}

// gompertz evaluates a*exp(-b*exp(-c*t)).
func gompertz(a, b, c, t float64) float64 {
	return a * math.Exp(-b*math.Exp(-c*t))
}

// AllometricBiomass is the power-law estimator a*dbh^b.
func AllometricBiomass(a, b, dbh float64) float64 {
	return a * math.Pow(dbh, b)
}

// CO2Equivalent converts dry biomass to CO2-equivalent mass.
func CO2Equivalent(biomass float64) float64 {
	return biomass * CarbonFraction * CO2PerCarbon
}
