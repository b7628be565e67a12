package pipeline

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/export"
)

// IsFatal reports whether err ends a run without further attempts: the
// package could not be parsed, built or exported.
func IsFatal(err error) bool {
	return errors.Is(err, ccz.ErrParse) ||
		errors.Is(err, ccz.ErrBuild) ||
		errors.Is(err, export.ErrExport)
}

// sentence upper-cases the first letter of an error message for display.
func sentence(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
