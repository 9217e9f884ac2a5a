package freshness

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a broken crisis definition. It aborts that
	// crisis only.
	ErrConfiguration = errors.New("configuration error")
	// ErrLookup marks a failed call to the catalog, activity log or user
	// directory. The affected dataset is skipped.
	ErrLookup = errors.New("lookup failure")

	errMissing = errors.New("missing value")
)

const (
	OpSearch   = "search"
	OpActivity = "activity"
	OpUser     = "user"
)

type ConfigurationError struct {
	Crisis string
	Field  string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("crisis %q: invalid %s: %v", e.Crisis, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

type LookupError struct {
	Op  string
	ID  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup %q: %v", e.Op, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookup }
