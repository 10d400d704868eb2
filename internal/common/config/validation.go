package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func Validate(c Config) error {
	return c.Validate()
}

// LogValidationErrors logs one line per invalid field of a configuration rejected by Validate.
func LogValidationErrors(err error) {
	if err == nil {
		return
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		log.Errorf("ConfigError: %v", err)
		return
	}
	for _, fieldErr := range validationErrors {
		field := stripPrefix(fieldErr.Namespace())
		switch fieldErr.Tag() {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", field)
		case "required_if":
			log.Errorf("ConfigError: Field %s is required when %s", field, fieldErr.Param())
		case "oneof":
			log.Errorf("ConfigError: Field %s is %q but must be one of [%s]", field, fieldErr.Value(), fieldErr.Param())
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s %s", field, fieldErr.Value(), fieldErr.Tag(), fieldErr.Param())
		}
	}
}

// stripPrefix drops the name of the top-level configuration struct, e.g. ImporterConfiguration.Scheduler.Interval
// becomes Scheduler.Interval.
func stripPrefix(s string) string {
	if _, rest, found := strings.Cut(s, "."); found {
		return rest
	}
	return s
}
