package reader

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a request that cannot run as configured. It is
// raised before any retrieval stage and is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ExhaustionError reports that no tier produced articles for a category fetch.
type ExhaustionError struct {
	Category string
	Page     int
}

func (e *ExhaustionError) Error() string {
	return "no articles available"
}

// Detail includes the request that ran dry; Error keeps the fixed user-facing text.
func (e *ExhaustionError) Detail() string {
	return fmt.Sprintf("no articles available for %s page %d", e.Category, e.Page)
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func configErr(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
