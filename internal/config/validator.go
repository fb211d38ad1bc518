package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration is matched by every validation failure.
var ErrConfiguration = errors.New("config: invalid configuration")

// weightTolerance absorbs float rounding when summing the ranking weights.
const weightTolerance = 1e-9

var validate = validator.New()

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// Is lets errors.Is(err, ErrConfiguration) match a single field error.
func (e ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Is lets errors.Is(err, ErrConfiguration) match the collection.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrConfiguration
}

// Validate checks struct tags and the cross-field rules. It returns
// ValidationErrors listing every problem, or nil.
func Validate(cfg *Config) error {
	var details ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		for _, fe := range fieldErrs {
			details = append(details, ConfigError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
	}

	details = append(details, crossFieldErrors(cfg)...)
	if len(details) > 0 {
		return details
	}
	return nil
}

func crossFieldErrors(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	r := cfg.Ranking
	sum := r.WeightSimilarity + r.WeightImportance + r.WeightEmotion
	if math.Abs(sum-1) > weightTolerance {
		errs = append(errs, ConfigError{
			Field:   "Config.Ranking",
			Message: "weight_similarity + weight_importance + weight_emotion must equal 1",
			Value:   sum,
		})
	}

	if cfg.Echo.PartialThreshold > cfg.Echo.VerbatimThreshold {
		errs = append(errs, ConfigError{
			Field:   "Config.Echo.PartialThreshold",
			Message: "must not exceed verbatim_threshold",
			Value:   cfg.Echo.PartialThreshold,
		})
	}

	if r.InitialImportance < cfg.Decay.Floor {
		errs = append(errs, ConfigError{
			Field:   "Config.Ranking.InitialImportance",
			Message: "must not be below decay.floor",
			Value:   r.InitialImportance,
		})
	}

	if cfg.Decay.Interval <= 0 {
		errs = append(errs, ConfigError{
			Field:   "Config.Decay.Interval",
			Message: "must be a positive duration",
			Value:   cfg.Decay.Interval,
		})
	}

	return errs
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
