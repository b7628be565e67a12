package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBaseName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple", input: "Household", expected: "Household"},
		{name: "spaces", input: "Household Survey", expected: "Household_Survey"},
		{name: "surrounding whitespace", input: "  Survey  ", expected: "Survey"},
		{name: "keeps dashes and dots", input: "survey-v1.2", expected: "survey-v1.2"},
		{name: "traversal", input: "../../etc/passwd", expected: "etc_passwd"},
		{name: "windows separators", input: `C:\apps\survey`, expected: "C_apps_survey"},
		{name: "collapses underscores", input: "a   b///c", expected: "a_b_c"},
		{name: "unicode letters", input: "Enquête Ménage", expected: "Enquête_Ménage"},
		{name: "empty", input: "", expected: DefaultBaseName},
		{name: "only symbols", input: "???", expected: DefaultBaseName},
		{name: "only dots", input: "...", expected: DefaultBaseName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseName(tt.input); got != tt.expected {
				t.Errorf("BaseName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBaseName_LengthLimit(t *testing.T) {
	long := strings.Repeat("survey", 40)
	got := BaseName(long)

	if len(got) > MaxBaseNameLength {
		t.Errorf("BaseName() length = %d, want <= %d", len(got), MaxBaseNameLength)
	}
	if !strings.HasPrefix(got, "survey") {
		t.Errorf("BaseName() = %q, want prefix preserved", got)
	}
}

func TestBaseName_LengthLimit_Uniqueness(t *testing.T) {
	a := BaseName(strings.Repeat("x", 150) + "a")
	b := BaseName(strings.Repeat("x", 150) + "b")

	if a == b {
		t.Errorf("truncated names should differ: %q", a)
	}
}

func TestBaseName_TruncatesOnRuneBoundary(t *testing.T) {
	got := BaseName(strings.Repeat("é", 80))

	if !utf8.ValidString(got) {
		t.Errorf("BaseName() produced invalid UTF-8: %q", got)
	}
	if len(got) > MaxBaseNameLength {
		t.Errorf("BaseName() length = %d, want <= %d", len(got), MaxBaseNameLength)
	}
}

func TestBaseName_ExactlyMaxLength(t *testing.T) {
	exact := strings.Repeat("a", MaxBaseNameLength)
	if got := BaseName(exact); got != exact {
		t.Errorf("BaseName() = %q, want unchanged", got)
	}
}
