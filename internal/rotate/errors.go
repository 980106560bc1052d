package rotate

import "fmt"

// ConfigError reports a precondition violated before the batch starts.
// It is always surfaced before any host is contacted and aborts the run.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
