// Package population simulates the standing population of a species in a
// project under harvest and thinning events, and the CO2 it captures.
package population

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nuwa/carbon-engine/internal/growth"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
	one      = decimal.NewFromInt(1)
)

// Event removes Percentage percent of the population in Year.
type Event struct {
	Year       int     `json:"year"`
	Percentage float64 `json:"percentage"`
}

// Options tunes the simulation.
type Options struct {
	// TruncatePopulation floors the live population after every year, as
	// the stored procedure did. By default only the reported value is floored.
	TruncatePopulation bool
}

// Period is one simulated calendar year.
type Period struct {
	Year             int     `json:"year"`
	Population       int64   `json:"population"`
	Co2eqTonnes      float64 `json:"co2eqTonnes"`
	Co2eqAccumulated float64 `json:"co2eqAccumulated"`
}

// Result is the outcome of a simulation.
type Result struct {
	InitialPopulation float64  `json:"initialPopulation"`
	Periods           []Period `json:"periods"`
	Warnings          []string `json:"warnings,omitempty"`
}

// FieldError reports an invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Simulate walks every calendar year from start to end inclusive. In each
// year the first event for that year, if any, reduces the population; later
// events for the same year are ignored and reported as warnings.
// co2eqTonnes = round(deltaCo2(offset) * population / 1000, 2) and the
// accumulated total is rounded at each step.
func Simulate(initialPopulation float64, params growth.Parameters, start, end time.Time, events []Event, opts Options) (*Result, error) {
	startYear, endYear := start.Year(), end.Year()
	if startYear > endYear || (startYear == endYear && start.After(end)) {
		return nil, fmt.Errorf("%w: start date %s is after end date %s",
			growth.ErrInvalidYearRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if initialPopulation < 0 {
		return nil, &FieldError{Field: "initialPopulation", Message: "must not be negative"}
	}

	byYear, warnings, err := indexEvents(events, startYear, endYear)
	if err != nil {
		return nil, err
	}

	curve, err := growth.Generate(params, endYear-startYear)
	if err != nil {
		return nil, err
	}

	result := &Result{
		InitialPopulation: initialPopulation,
		Periods:           make([]Period, 0, endYear-startYear+1),
		Warnings:          warnings,
	}

	population := decimal.NewFromFloat(initialPopulation)
	accumulated := decimal.Zero

	for year := startYear; year <= endYear; year++ {
		if event, ok := byYear[year]; ok {
			remaining := one.Sub(decimal.NewFromFloat(event.Percentage).Div(hundred))
			population = population.Mul(remaining)
		}
		if opts.TruncatePopulation {
			population = population.Floor()
		}

		delta := decimal.NewFromFloat(curve.Delta(year - startYear))
		tonnes := delta.Mul(population).Div(thousand).Round(2)
		accumulated = accumulated.Add(tonnes).Round(2)

		result.Periods = append(result.Periods, Period{
			Year:             year,
			Population:       population.Floor().IntPart(),
			Co2eqTonnes:      tonnes.InexactFloat64(),
			Co2eqAccumulated: accumulated.InexactFloat64(),
		})
	}

	return result, nil
}

// indexEvents validates events and keeps the first one per year.
func indexEvents(events []Event, startYear, endYear int) (map[int]Event, []string, error) {
	byYear := make(map[int]Event, len(events))
	var warnings []string

	for i, event := range events {
		if event.Percentage < 0 || event.Percentage > 100 {
			return nil, nil, &FieldError{
				Field:   fmt.Sprintf("events[%d].percentage", i),
				Message: "must be between 0 and 100",
			}
		}
		if event.Year < startYear || event.Year > endYear {
			warnings = append(warnings, fmt.Sprintf("events[%d]: year %d is outside %d-%d and was ignored", i, event.Year, startYear, endYear))
			continue
		}
		if _, dup := byYear[event.Year]; dup {
			warnings = append(warnings, fmt.Sprintf("events[%d]: year %d already has an event and was ignored", i, event.Year))
			continue
		}
		byYear[event.Year] = event
	}
	return byYear, warnings, nil
}
