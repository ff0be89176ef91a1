package config

import (
	"errors"
	"fmt"
)

// Common configuration errors.
var (
	// ErrSettingNotFound indicates the requested setting path has no value.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrNotLoaded indicates Load has not been called yet.
	ErrNotLoaded = errors.New("configuration not loaded")
)

// TypeError indicates a setting value has an unexpected type.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("setting %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// typeName returns a printable name for a value's type.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
