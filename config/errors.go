package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrConfig is the cause of every configuration error
var ErrConfig = errors.New("configuration error")

// Error is a configuration error located in the configuration tree, printed as
// "<section> -> <field>: <message>"
type Error struct {
	Section string
	Field   string
	Msg     string
}

func (e *Error) Error() string {
	var loc []string
	if e.Section != "" {
		loc = append(loc, e.Section)
	}
	if e.Field != "" {
		loc = append(loc, e.Field)
	}
	if len(loc) == 0 {
		return e.Msg
	}
	return strings.Join(loc, " -> ") + ": " + e.Msg
}

// Cause makes errors.Cause return ErrConfig
func (e *Error) Cause() error { return ErrConfig }

// Unwrap makes errors.Is(err, ErrConfig) hold
func (e *Error) Unwrap() error { return ErrConfig }

// Errorf returns a configuration error for the given field
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Locate prefixes the location of err with section.  Errors which are not
// configuration errors are turned into one.  A nil error stays nil.
func Locate(err error, section string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		out := *ce
		if out.Section == "" {
			out.Section = section
		} else {
			out.Section = section + " -> " + out.Section
		}
		return &out
	}
	return &Error{Section: section, Msg: err.Error()}
}
