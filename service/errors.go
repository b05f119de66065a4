package service

import (
	"errors"
	"fmt"
)

var ErrTunnelNotFound = errors.New("tunnel not found")

// CommandError is a non-zero exit or timeout of a host command. Output is
// the captured text of the failing command. Msg, when set, replaces the
// default "<step> failed: <output>" text.
type CommandError struct {
	Step   string
	Output string
	Msg    string
}

func (e *CommandError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Output == "" {
		return e.Step + " failed"
	}
	return fmt.Sprintf("%s failed: %s", e.Step, e.Output)
}

// ConfigError is a required field missing for the requested operation.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// ValidationError is a malformed or out of range user supplied value.
type ValidationError struct {
	Token string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("'%s': %s", e.Token, e.Msg)
}
