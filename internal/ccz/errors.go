package ccz

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is matched by every ParseError.
	ErrParse = errors.New("package parse failed")

	// ErrBuild is matched by every BuildError.
	ErrBuild = errors.New("package build failed")

	// ErrMissingEntry indicates a required manifest entry is absent.
	ErrMissingEntry = errors.New("missing required entry")

	// ErrEntryTooLarge indicates an entry exceeds MaxEntryBytes.
	ErrEntryTooLarge = errors.New("entry exceeds size limit")

	// ErrDuplicateEntry indicates two archive entries share a path.
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// ParseError reports why an archive could not be read into a FileSet.
type ParseError struct {
	Path  string // archive path, empty for in-memory sets
	Entry string // offending entry, if any
	Err   error
}

func (e *ParseError) Error() string {
	target := e.Path
	if target == "" {
		target = "package"
	}
	if e.Entry != "" {
		return fmt.Sprintf("failed to parse %s: entry %s: %v", target, e.Entry, e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", target, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParse) hold for any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// BuildError reports an I/O failure while writing an archive.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build %s: %v", e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrBuild) hold for any BuildError.
func (e *BuildError) Is(target error) bool { return target == ErrBuild }
