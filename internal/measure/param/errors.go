package param

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a bad parameter declaration or binding.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: parameter %q: %s", e.Param, e.Reason)
}

type configErrors []*ConfigurationError

// err returns the single error, or all of them joined. errors.As on the
// joined error still finds the first *ConfigurationError.
func (c configErrors) err() error {
	if len(c) == 1 {
		return c[0]
	}
	errs := make([]error, len(c))
	for i, e := range c {
		errs[i] = e
	}
	return errors.Join(errs...)
}
