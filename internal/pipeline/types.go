package pipeline

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kcowger/commcare-forge-sub001/internal/autofix"
	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

// Phase is the coarse progress category shown to users.
type Phase string

const (
	PhaseGenerating Phase = "generating"
	PhaseValidating Phase = "validating"
	PhaseFixing     Phase = "fixing"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// State is a state of the pipeline state machine.
type State string

const (
	StateGenerating State = "generating"
	StateParsing    State = "parsing"
	StateFixing     State = "fixing"
	StateBuilding   State = "building"
	StateExporting  State = "exporting"
	StateDone       State = "done"
)

// validatingPrefix prefixes the state of each validator, as in
// "validating_external".
const validatingPrefix = "validating_"

// ValidatingState returns the state in which the named validator runs.
func ValidatingState(validator string) State {
	return State(validatingPrefix + validator)
}

// Phase maps a state to its progress phase. StateDone has no phase of its
// own; terminal events carry PhaseSuccess or PhaseFailed.
func (s State) Phase() Phase {
	switch {
	case s == StateGenerating:
		return PhaseGenerating
	case s == StateFixing, s == StateBuilding:
		return PhaseFixing
	default:
		return PhaseValidating
	}
}

// ProgressEvent reports a state transition.
type ProgressEvent struct {
	Phase       Phase  `json:"phase"`
	State       State  `json:"state"`
	Message     string `json:"message"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}

// Artifacts are the files a run produced.
type Artifacts struct {
	// PackagePath is the caller's archive when it was validated unchanged.
	// Rebuilt archives live in the run's work directory, which is removed
	// when the run ends, so it is empty for them; see ExportPath.
	PackagePath string `json:"package_path,omitempty"`
	ExportPath  string `json:"export_path,omitempty"`
	JSONPath    string `json:"json_path,omitempty"`
}

// AttemptRecord describes one attempt of a run.
type AttemptRecord struct {
	Attempt      int               `json:"attempt"`
	State        State             `json:"state"`
	Fixes        []autofix.Fix     `json:"fixes,omitempty"`
	Report       validation.Report `json:"report"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

// Result is the terminal value of a pipeline operation.
type Result struct {
	Success      bool          `json:"success"`
	Artifacts    Artifacts     `json:"artifacts"`
	Errors       []string      `json:"errors"`
	FixesApplied int           `json:"fixes_applied"`
	Fixes        []autofix.Fix `json:"fixes,omitempty"`
	Message      string        `json:"message"`
	AppName      string        `json:"app_name,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Attempts     int           `json:"attempts"`
	RunID        string        `json:"run_id"`

	// History holds one record per attempt, oldest first.
	History []AttemptRecord `json:"history,omitempty"`
}

// DisplayErrors returns at most limit errors, each cut to width runes with
// an ellipsis. A final line counts the omitted errors. Errors is untouched.
// Non-positive arguments disable the respective limit.
func (r *Result) DisplayErrors(limit, width int) []string {
	errs := r.Errors
	omitted := 0
	if limit > 0 && len(errs) > limit {
		omitted = len(errs) - limit
		errs = errs[:limit]
	}

	out := make([]string, 0, len(errs)+1)
	for _, e := range errs {
		out = append(out, truncate(e, width))
	}
	if omitted > 0 {
		out = append(out, "... and "+strconv.Itoa(omitted)+" more")
	}
	return out
}

func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:width])
	}
	return strings.TrimRight(string([]rune(s)[:width-3]), " ") + "..."
}
