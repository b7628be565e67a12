// Package autofix repairs known structural defects in application packages.
//
// A Fixer runs an ordered list of detectors over a working copy of a FileSet.
// Each detector looks for one defect class, edits the copy in place and
// reports a Fix for every correction. Later detectors see earlier
// corrections. Detectors are idempotent, so a second pass over a fixed set
// reports nothing.
package autofix

import (
	"fmt"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// Fix records one applied correction.
type Fix struct {
	Detector    string   `json:"detector"`
	Description string   `json:"description"`
	Paths       []string `json:"paths"`
}

// Detector finds and corrects one class of defect.
type Detector interface {
	// Name identifies the detector in Fix records.
	Name() string

	// Apply edits files in place and returns the fixes it made. It must not
	// read or create entries outside files, and must not fail: content it
	// cannot interpret is left untouched.
	Apply(files ccz.FileSet) []Fix
}

// Result is the outcome of one Fixer pass.
type Result struct {
	// Files is a new FileSet; the input is never modified.
	Files ccz.FileSet
	Fixes []Fix
}

// Fixer applies detectors in order.
type Fixer struct {
	detectors []Detector
}

// New creates a Fixer. With no detectors, DefaultDetectors is used.
func New(detectors ...Detector) *Fixer {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Fixer{detectors: detectors}
}

// DefaultDetectors returns the standard detector sequence. Order matters:
// form namespaces are restored before entries are checked against them,
// entry removal precedes menu command cleanup, and locale strings are filled
// in last so they cover the final suite.
func DefaultDetectors() []Detector {
	return []Detector{
		formDataAttributes{},
		danglingFormResources{},
		danglingEntries{},
		danglingMenuCommands{},
		danglingBinds{},
		caseTypeCasing{},
		missingLocaleStrings{},
	}
}

// Detectors returns the names of the configured detectors in order.
func (f *Fixer) Detectors() []string {
	names := make([]string, len(f.detectors))
	for i, d := range f.detectors {
		names[i] = d.Name()
	}
	return names
}

// Apply runs every detector over a copy of files.
func (f *Fixer) Apply(files ccz.FileSet) Result {
	work := files.Clone()
	fixes := make([]Fix, 0)
	for _, d := range f.detectors {
		next, found, ok := runDetector(d, work)
		if !ok {
			continue
		}
		work = next
		fixes = append(fixes, found...)
	}
	return Result{Files: work, Fixes: fixes}
}

// runDetector applies d to a clone of files. A detector that panics reports
// ok=false and its partial edits are dropped with the clone.
func runDetector(d Detector, files ccz.FileSet) (out ccz.FileSet, fixes []Fix, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, fixes, ok = nil, nil, false
		}
	}()
	out = files.Clone()
	fixes = d.Apply(out)
	return out, fixes, true
}

func (f Fix) String() string {
	return fmt.Sprintf("%s: %s", f.Detector, f.Description)
}
