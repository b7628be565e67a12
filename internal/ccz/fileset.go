package ccz

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kcowger/commcare-forge-sub001/internal/appxml"
)

// Well-known package entries.
const (
	ProfilePath    = "profile.ccpr"
	SuitePath      = "suite.xml"
	MediaSuitePath = "media_suite.xml"
	AppStringsPath = "default/app_strings.txt"
)

// ErrInvalidPath indicates an entry path that would escape the package root
// or is otherwise not a canonical relative path.
var ErrInvalidPath = errors.New("invalid package path")

// FileSet maps forward-slash relative entry paths to their contents.
//
// A FileSet is treated as immutable once handed to another component:
// transformations Clone it and edit the copy.
type FileSet map[string][]byte

// NewFileSet validates entries and returns a deep copy.
func NewFileSet(entries map[string][]byte) (FileSet, error) {
	fs := make(FileSet, len(entries))
	for p, content := range entries {
		if err := ValidatePath(p); err != nil {
			return nil, err
		}
		fs[p] = bytes.Clone(content)
	}
	return fs, nil
}

// ValidatePath checks that p is a clean, relative, forward-slash path.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	case strings.Contains(p, "\\"):
		return fmt.Errorf("%w: backslash in %q", ErrInvalidPath, p)
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("%w: absolute path %q", ErrInvalidPath, p)
	case strings.ContainsRune(p, 0):
		return fmt.Errorf("%w: NUL byte in %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q escapes package root", ErrInvalidPath, p)
		}
	}
	if path.Clean(p) != p {
		return fmt.Errorf("%w: %q is not canonical", ErrInvalidPath, p)
	}
	return nil
}

// Validate checks every path in the set.
func (fs FileSet) Validate() error {
	for _, p := range fs.Paths() {
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	return nil
}

// Paths returns the entry paths in lexical order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether p is present.
func (fs FileSet) Has(p string) bool {
	_, ok := fs[p]
	return ok
}

// Clone returns a deep copy.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	for p, content := range fs {
		out[p] = bytes.Clone(content)
	}
	return out
}

// Equal reports whether both sets hold the same paths with identical bytes.
func (fs FileSet) Equal(other FileSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for p, content := range fs {
		oc, ok := other[p]
		if !ok || !bytes.Equal(content, oc) {
			return false
		}
	}
	return true
}

// FormPaths returns the form definition paths ordered by module and form.
func (fs FileSet) FormPaths() []string {
	var forms []string
	for p := range fs {
		if appxml.IsFormPath(p) {
			forms = append(forms, p)
		}
	}
	appxml.SortFormPaths(forms)
	return forms
}

// Size returns the total number of content bytes.
func (fs FileSet) Size() int64 {
	var n int64
	for _, content := range fs {
		n += int64(len(content))
	}
	return n
}
