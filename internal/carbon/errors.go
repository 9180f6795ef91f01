package carbon

import (
	"errors"
	"net/http"
	"strings"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/population"
	"nuwa/carbon-engine/internal/projects"
)

var (
	ErrSpeciesNotFound = errors.New("species not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrArchiveDisabled = errors.New("export archiving is not configured")
)

// Error codes returned to clients
const (
	CodeValidation        = "validation_error"
	CodeRequired          = "required"
	CodeInvalidYearRange  = "invalid_year_range"
	CodeMissingParameters = "missing_growth_parameters"
	CodeNonFiniteCurve    = "non_finite_curve"
	CodeSpeciesNotFound   = "species_not_found"
	CodeProjectNotFound   = "project_not_found"
	CodeArchiveDisabled   = "archive_disabled"
	CodeInternal          = "internal_error"
)

// ValidationError represents a rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Code: CodeValidation}
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required", Code: CodeRequired}
}

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// classify maps an error to an HTTP status and a client-safe body. Unknown
// errors are reported as internal without their text.
func classify(err error) (int, ErrorBody) {
	var validation *ValidationError
	var fieldErr *population.FieldError
	var missing *growth.MissingParametersError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorBody{Code: validation.Code, Field: validation.Field, Message: validation.Message}
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Field: fieldErr.Field, Message: fieldErr.Message}
	case errors.Is(err, growth.ErrInvalidYearRange):
		return http.StatusBadRequest, ErrorBody{Code: CodeInvalidYearRange, Message: err.Error()}
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, ErrorBody{
			Code:    CodeMissingParameters,
			Field:   strings.Join(missing.Fields, ","),
			Message: err.Error(),
		}
	case errors.Is(err, growth.ErrNonFiniteCurve):
		return http.StatusUnprocessableEntity, ErrorBody{Code: CodeNonFiniteCurve, Message: err.Error()}
	case errors.Is(err, ErrSpeciesNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeSpeciesNotFound, Message: err.Error()}
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, projects.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeProjectNotFound, Message: ErrProjectNotFound.Error()}
	case errors.Is(err, ErrArchiveDisabled):
		return http.StatusConflict, ErrorBody{Code: CodeArchiveDisabled, Field: "archive", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal server error"}
}

// projectErr turns a repository miss into ErrProjectNotFound.
func projectErr(err error) error {
	if errors.Is(err, projects.ErrNotFound) {
		return ErrProjectNotFound
	}
	return err
}
