package ccz

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Extension is the archive file extension.
const Extension = ".ccz"

// entryTime is stamped on every entry so identical sets build identical bytes.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Write serializes files as a zip archive with entries sorted by path.
func Write(w io.Writer, files FileSet) (err error) {
	if err := files.Validate(); err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	defer func() {
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, p := range files.Paths() {
		hdr := &zip.FileHeader{
			Name:     p,
			Method:   zip.Deflate,
			Modified: entryTime,
		}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", p, err)
		}
		if _, err := fw.Write(files[p]); err != nil {
			return fmt.Errorf("write entry %s: %w", p, err)
		}
	}
	return nil
}

// Build writes files to <dir>/<baseName>.ccz and returns the path. The file
// is written under a temporary name and renamed into place.
func Build(files FileSet, dir, baseName string) (path string, err error) {
	path = filepath.Join(dir, baseName+Extension)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &BuildError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+baseName+"-*.tmp")
	if err != nil {
		return "", &BuildError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if werr := Write(tmp, files); werr != nil {
		_ = tmp.Close()
		return "", &BuildError{Path: path, Err: werr}
	}
	if cerr := tmp.Close(); cerr != nil {
		return "", &BuildError{Path: path, Err: cerr}
	}
	if rerr := os.Rename(tmpName, path); rerr != nil {
		return "", &BuildError{Path: path, Err: rerr}
	}
	return path, nil
}
