package config

import "fmt"

// Error is a configuration error: an invalid setting, a bad mode argument or
// a missing input file. It is always reported before any file is written.
type Error struct {
	// Key names the offending setting or input, e.g. "mode" or
	// "wrappers.lit-wrapper.externals.browser".
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns a *Error for key with a formatted message.
func Errorf(key, format string, args ...any) *Error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}
