package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches any *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrPluginInit matches any *PluginInitError via errors.Is.
	ErrPluginInit = errors.New("plugin initialisation failed")
)

// ConfigurationError reports an invalid or unresolvable setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// PluginInitError reports a plugin that failed its own setup. Error returns the
// plugin's message verbatim.
type PluginInitError struct {
	Plugin string
	Err    error
}

func (e *PluginInitError) Error() string {
	return e.Err.Error()
}

func (e *PluginInitError) Unwrap() error {
	return e.Err
}

func (e *PluginInitError) Is(target error) bool {
	return target == ErrPluginInit
}

func configErrorf(field string, err error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
