// Package export writes final application artifacts to the export directory.
//
// Exports are keyed by a sanitized base name: exporting the same application
// twice replaces the earlier file, so the directory always holds the latest
// artifact per application. Files are written under a temporary name in the
// export directory and renamed into place, so readers never see a partial
// file.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
	"github.com/kcowger/commcare-forge-sub001/internal/sanitize"
)

const instrumentationName = "github.com/kcowger/commcare-forge-sub001/internal/export"

// JSONExtension is the extension of the HQ JSON artifact.
const JSONExtension = ".json"

// ErrExport is matched by every ExportError.
var ErrExport = errors.New("export failed")

// ExportError reports a failed export write.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Is reports ErrExport as a match.
func (e *ExportError) Is(target error) bool { return target == ErrExport }

// Exporter writes artifacts into one directory.
type Exporter struct {
	dir    string
	logger *zap.Logger
	tracer trace.Tracer
}

// New returns an exporter for dir. The directory is created on first export.
func New(dir string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{dir: dir, logger: logger, tracer: otel.Tracer(instrumentationName)}
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// PackagePath returns where ExportPackage writes baseName.
func (e *Exporter) PackagePath(baseName string) string {
	return filepath.Join(e.dir, sanitize.BaseName(baseName)+ccz.Extension)
}

// JSONPath returns where ExportJSON writes baseName.
func (e *Exporter) JSONPath(baseName string) string {
	return filepath.Join(e.dir, sanitize.BaseName(baseName)+JSONExtension)
}

// ExportPackage copies the archive at artifactPath to <dir>/<base>.ccz,
// replacing any earlier export of the same base name.
func (e *Exporter) ExportPackage(ctx context.Context, artifactPath, baseName string) (string, error) {
	dest := e.PackagePath(baseName)
	_, span := e.tracer.Start(ctx, "export.package")
	defer span.End()
	span.SetAttributes(attribute.String("export.path", dest))

	src, err := os.Open(artifactPath)
	if err != nil {
		return "", e.fail(span, dest, err)
	}
	defer src.Close()

	if err := e.writeAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return "", e.fail(span, dest, err)
	}

	e.logger.Info("exported package", zap.String("path", dest))
	return dest, nil
}

// ExportJSON writes doc to <dir>/<base>.json.
func (e *Exporter) ExportJSON(ctx context.Context, doc *hqjson.Document, baseName string) (string, error) {
	dest := e.JSONPath(baseName)
	_, span := e.tracer.Start(ctx, "export.json")
	defer span.End()
	span.SetAttributes(attribute.String("export.path", dest))

	data, err := hqjson.Marshal(doc)
	if err != nil {
		return "", e.fail(span, dest, err)
	}
	if err := e.writeAtomic(dest, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", e.fail(span, dest, err)
	}

	e.logger.Info("exported application JSON", zap.String("path", dest))
	return dest, nil
}

func (e *Exporter) fail(span trace.Span, dest string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("export failed", zap.String("path", dest), zap.Error(err))
	return &ExportError{Path: dest, Err: err}
}

func (e *Exporter) writeAtomic(dest string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(e.dir, "."+filepath.Base(dest)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
