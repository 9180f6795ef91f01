package growth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingGrowthParameters is matched by every *MissingParametersError.
	ErrMissingGrowthParameters = errors.New("missing growth parameters")

	// ErrInvalidYearRange reports a negative horizon or an inverted date range.
	ErrInvalidYearRange = errors.New("invalid year range")

	// ErrNonFiniteCurve is matched by every *NonFiniteError.
	ErrNonFiniteCurve = errors.New("growth parameters produce a non-finite curve")
)

// MissingParametersError lists the coefficients that are nil for a species.
type MissingParametersError struct {
	Fields []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingGrowthParameters, strings.Join(e.Fields, ", "))
}

// Is lets errors.Is(err, ErrMissingGrowthParameters) succeed.
func (e *MissingParametersError) Is(target error) bool {
	return target == ErrMissingGrowthParameters
}

// NonFiniteError reports the first year whose point is NaN or infinite, as
// happens with a zero avgDbh and a negative allometric exponent.
type NonFiniteError struct {
	Year  int
	Field string
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("%s: %s at year %d", ErrNonFiniteCurve, e.Field, e.Year)
}

// Is lets errors.Is(err, ErrNonFiniteCurve) succeed.
func (e *NonFiniteError) Is(target error) bool {
	return target == ErrNonFiniteCurve
}
