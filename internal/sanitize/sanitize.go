// Package sanitize turns user- and model-supplied names into safe file names
// and validates filesystem paths taken from untrusted input.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const (
	// MaxBaseNameLength is the maximum length of a sanitized file base name.
	MaxBaseNameLength = 100

	// HashSuffixLength is the length of the hash suffix added to truncated names.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultBaseName is used when sanitization produces an empty result.
	DefaultBaseName = "application"
)

// BaseName sanitizes an application name for use as an export file name
// without extension.
//
// Rules applied:
//   - Letters and digits are kept, including non-ASCII letters
//   - '-' and '.' are kept; everything else becomes '_'
//   - Runs of '_' collapse to one
//   - Leading and trailing '_', '.' and '-' are trimmed
//   - Names longer than MaxBaseNameLength are truncated with a hash suffix
//   - An empty result becomes DefaultBaseName
//
// Examples:
//
//	"Household Survey"  -> "Household_Survey"
//	"../../etc/passwd"  -> "etc_passwd"
//	"" or "???"         -> "application"
func BaseName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", ".")
	}
	sanitized = strings.Trim(sanitized, "_.-")

	if sanitized == "" {
		return DefaultBaseName
	}
	if len(sanitized) > MaxBaseNameLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

// truncateWithHash truncates a name to fit within MaxBaseNameLength,
// appending a hash of the full name to keep distinct names distinct.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]

	maxBase := MaxBaseNameLength - HashSuffixLength
	// Back off to a rune boundary.
	for maxBase > 0 && !isRuneStart(s[maxBase]) {
		maxBase--
	}
	truncated := strings.TrimRight(s[:maxBase], "_.-")
	return truncated + suffix
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
