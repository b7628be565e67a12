package appxml

import (
	"bytes"
	"strings"
)

// AppStrings holds a parsed translation table (default/app_strings.txt).
type AppStrings map[string]string

// ParseAppStrings reads key=value lines. Blank lines and lines starting with
// # are ignored; the first '=' separates key from value.
func ParseAppStrings(content []byte) AppStrings {
	out := make(AppStrings)
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = value
	}
	return out
}

// IsAppStringsKey reports whether key survives a write and ParseAppStrings
// round trip: non-empty, untrimmed, no '=' or line break, and not read back
// as a comment.
func IsAppStringsKey(key string) bool {
	return key != "" &&
		key == strings.TrimSpace(key) &&
		!strings.HasPrefix(key, "#") &&
		!strings.ContainsAny(key, "=\r\n")
}

// AppendAppStrings appends key=value lines to content, keeping the existing
// bytes intact.
func AppendAppStrings(content []byte, keys []string, values map[string]string) []byte {
	var buf bytes.Buffer
	buf.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(values[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
