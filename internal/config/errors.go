package config

import (
	"errors"
	"strings"
)

var (
	// ErrMissingSetting is matched by problems where a mandatory setting is unset.
	ErrMissingSetting = errors.New("missing required setting")
	// ErrInvalidPath is matched by problems where a configured path does not exist.
	ErrInvalidPath = errors.New("configured path does not exist")
	// ErrMissingCredential is matched by problems where an active data source has no credential.
	ErrMissingCredential = errors.New("missing data source credential")
	// ErrInvalidSetting is matched by problems where a setting cannot be parsed or is out of range.
	ErrInvalidSetting = errors.New("invalid setting")
	// ErrInvalidSource is matched by problems in the data source catalog.
	ErrInvalidSource = errors.New("invalid data source")
	// ErrUnknownSource is returned when a caller names a data source the registry does not know.
	ErrUnknownSource = errors.New("unknown data source")
)

// Kind classifies a validation Problem.
type Kind int

const (
	KindMissingSetting Kind = iota + 1
	KindInvalidPath
	KindMissingCredential
	KindInvalidSetting
	KindInvalidSource
)

func (k Kind) String() string {
	switch k {
	case KindMissingSetting:
		return "missing_setting"
	case KindInvalidPath:
		return "invalid_path"
	case KindMissingCredential:
		return "missing_credential"
	case KindInvalidSetting:
		return "invalid_setting"
	case KindInvalidSource:
		return "invalid_source"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindMissingSetting:
		return ErrMissingSetting
	case KindInvalidPath:
		return ErrInvalidPath
	case KindMissingCredential:
		return ErrMissingCredential
	case KindInvalidSetting:
		return ErrInvalidSetting
	case KindInvalidSource:
		return ErrInvalidSource
	default:
		return nil
	}
}

// Problem is a single configuration defect found while building a Registry.
type Problem struct {
	Kind    Kind
	Message string
}

func (p Problem) Error() string {
	return p.Message
}

// Unwrap lets errors.Is match a Problem against its kind's sentinel error.
func (p Problem) Unwrap() error {
	return p.Kind.sentinel()
}

// ValidationError aggregates every Problem found in one construction attempt.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.Message)
	}
	return b.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Problems))
	for _, p := range e.Problems {
		errs = append(errs, p)
	}
	return errs
}

// Messages returns the problem messages in report order.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Message)
	}
	return out
}
