package ccz

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	// MaxEntryBytes caps the decompressed size of a single entry.
	MaxEntryBytes = 16 << 20
	// MaxEntries caps the number of entries read from one archive.
	MaxEntries = 10000
)

// Package is a parsed application package.
type Package struct {
	// Path is the archive the package was read from. Empty for generated sets.
	Path    string
	Files   FileSet
	AppName string
	// Summary is a markdown description of modules and forms.
	Summary   string
	Structure Structure
}

// Parse reads the archive at path. No partial FileSet is returned on error.
func Parse(path string) (*Package, error) {
	// ErrInsecurePath comes with a usable reader; entry names are checked
	// individually below so the offending entry can be reported.
	r, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &ParseError{Path: filepath.Base(path), Err: err}
	}
	defer r.Close()

	if len(r.File) > MaxEntries {
		return nil, &ParseError{Path: filepath.Base(path), Err: fmt.Errorf("archive has %d entries (max %d)", len(r.File), MaxEntries)}
	}

	files := make(FileSet, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if err := ValidatePath(f.Name); err != nil {
			return nil, &ParseError{Path: filepath.Base(path), Entry: f.Name, Err: err}
		}
		if files.Has(f.Name) {
			return nil, &ParseError{Path: filepath.Base(path), Entry: f.Name, Err: ErrDuplicateEntry}
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, &ParseError{Path: filepath.Base(path), Entry: f.Name, Err: err}
		}
		files[f.Name] = content
	}

	pkg, err := ParseFiles(files)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = filepath.Base(path)
		}
		return nil, err
	}
	pkg.Path = path
	return pkg, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxEntryBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, MaxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(content) > MaxEntryBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, MaxEntryBytes)
	}
	return content, nil
}

// ParseFiles derives package metadata from an in-memory FileSet. The set is
// used as-is, not copied.
func ParseFiles(files FileSet) (*Package, error) {
	if err := files.Validate(); err != nil {
		return nil, &ParseError{Err: err}
	}
	for _, required := range []string{ProfilePath, SuitePath} {
		if !files.Has(required) {
			return nil, &ParseError{Entry: required, Err: ErrMissingEntry}
		}
	}

	structure := Describe(files)
	return &Package{
		Files:     files,
		AppName:   AppName(files),
		Summary:   structure.Markdown(),
		Structure: structure,
	}, nil
}
