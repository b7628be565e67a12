package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/kcowger/commcare-forge-sub001/internal/autofix"
	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
	"github.com/kcowger/commcare-forge-sub001/internal/toolchain"
)

// Errors shown per result; the JSON output always carries all of them.
const (
	displayErrorLimit = 20
	displayErrorWidth = 160
)

// styles renders for one writer. Colors are dropped when the writer is not a
// terminal.
type styles struct {
	label   lipgloss.Style
	value   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	section lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		label:   r.NewStyle().Foreground(lipgloss.Color("45")),
		value:   r.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		fail:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		section: r.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
	}
}

func (s styles) phase(p pipeline.Phase) lipgloss.Style {
	switch p {
	case pipeline.PhaseSuccess:
		return s.ok
	case pipeline.PhaseFailed:
		return s.fail
	case pipeline.PhaseFixing:
		return s.warn
	default:
		return s.label
	}
}

// progressPrinter writes one line per progress event.
type progressPrinter struct {
	w  io.Writer
	st styles
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, st: newStyles(w)}
}

// Sink returns the printer as a pipeline progress sink.
func (p *progressPrinter) Sink() pipeline.ProgressSink {
	return p.print
}

func (p *progressPrinter) print(ev pipeline.ProgressEvent) {
	counter := ""
	if ev.MaxAttempts > 1 {
		counter = p.st.dim.Render(fmt.Sprintf("[%d/%d] ", ev.Attempt, ev.MaxAttempts))
	}
	fmt.Fprintf(p.w, "%s%s %s\n", counter, p.st.phase(ev.Phase).Render(fmt.Sprintf("%-10s", ev.Phase)), ev.Message)
}

// renderResult prints a human-readable run result.
func renderResult(w io.Writer, res *pipeline.Result) {
	st := newStyles(w)

	mark := st.ok.Render("✓")
	if !res.Success {
		mark = st.fail.Render("✗")
	}
	fmt.Fprintf(w, "%s %s\n", mark, res.Message)

	field := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", st.label.Render(fmt.Sprintf("%-9s", name+":")), st.value.Render(value))
	}
	field("App", res.AppName)
	if res.Attempts > 1 {
		field("Attempts", fmt.Sprint(res.Attempts))
	}
	field("Package", res.Artifacts.ExportPath)
	field("JSON", res.Artifacts.JSONPath)
	field("Run", res.RunID)

	renderFixes(w, st, res.Fixes)

	if errs := res.DisplayErrors(displayErrorLimit, displayErrorWidth); len(errs) > 0 {
		fmt.Fprintln(w, st.section.Render("Errors"))
		for _, e := range errs {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func renderFixes(w io.Writer, st styles, fixes []autofix.Fix) {
	if len(fixes) == 0 {
		return
	}
	fmt.Fprintln(w, st.section.Render(fmt.Sprintf("Fixes (%d)", len(fixes))))
	for _, f := range fixes {
		fmt.Fprintf(w, "  - %s %s\n", st.dim.Render(f.Detector+":"), f.Description)
	}
}

func renderAvailability(w io.Writer, a toolchain.Availability) {
	st := newStyles(w)
	if a.Available {
		fmt.Fprintf(w, "%s external validation available\n", st.ok.Render("✓"))
		fmt.Fprintf(w, "  %s %s\n", st.label.Render("Java:    "), a.JavaPath)
		fmt.Fprintf(w, "  %s %s\n", st.label.Render("Jar:     "), a.JarPath)
		return
	}
	fmt.Fprintf(w, "%s external validation unavailable: %s\n", st.warn.Render("!"), a.Reason)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
