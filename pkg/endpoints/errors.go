package endpoints

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an unknown operation or arguments that cannot be
// turned into a request.
type ConfigurationError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Operation == "" {
		return "configuration error: " + msg
	}
	return fmt.Sprintf("configuration error for operation %q: %s", e.Operation, msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func asConfigurationError(op string, err error) error {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &ConfigurationError{Operation: op, Reason: "invalid arguments", Err: err}
}
