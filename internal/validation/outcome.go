// Package validation defines validator outcomes and how outcomes from
// several validators combine into one verdict.
package validation

import (
	"context"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
)

// Status is the tag of an Outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Outcome is the result of one validator run. Only the field matching Status
// is meaningful: Details for success, Errors for failure, Reason for skipped.
type Outcome struct {
	Status  Status   `json:"status"`
	Details string   `json:"details,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Success builds a successful outcome.
func Success(details string) Outcome {
	return Outcome{Status: StatusSuccess, Details: details}
}

// Failure builds a failed outcome. A failure always carries at least one
// error message.
func Failure(errs ...string) Outcome {
	if len(errs) == 0 {
		errs = []string{"validation failed"}
	}
	return Outcome{Status: StatusFailure, Errors: append([]string(nil), errs...)}
}

// Skipped builds an outcome for a validator that could not run.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func (o Outcome) IsSuccess() bool { return o.Status == StatusSuccess }
func (o Outcome) IsFailure() bool { return o.Status == StatusFailure }
func (o Outcome) IsSkipped() bool { return o.Status == StatusSkipped }

// Input is what validators inspect. Toolchain validators read the archive at
// ArtifactPath; in-process validators read Files.
type Input struct {
	ArtifactPath string
	Files        ccz.FileSet
}

// Validator checks a package.
type Validator interface {
	// Name is a short stable identifier such as "external" or "rules".
	Name() string

	// CanSkip reports whether the validator may return a skipped outcome.
	// A skipped outcome from a validator that cannot skip counts as failure.
	CanSkip() bool

	// Validate never returns a Go error: problems running the validator are
	// reported as failure outcomes.
	Validate(ctx context.Context, in Input) Outcome
}

// Func adapts a function to the Validator interface.
type Func struct {
	ID        string
	Skippable bool
	Fn        func(ctx context.Context, in Input) Outcome
}

func (f Func) Name() string  { return f.ID }
func (f Func) CanSkip() bool { return f.Skippable }

func (f Func) Validate(ctx context.Context, in Input) Outcome {
	return f.Fn(ctx, in)
}
