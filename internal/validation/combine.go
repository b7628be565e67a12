package validation

import (
	"context"
	"fmt"
)

// Named pairs an outcome with the validator that produced it.
type Named struct {
	Validator string  `json:"validator"`
	CanSkip   bool    `json:"can_skip"`
	Outcome   Outcome `json:"outcome"`
}

// Report is the combined verdict of several validators.
type Report struct {
	Success bool `json:"success"`
	// Errors lists failure messages in validator order with exact duplicates
	// removed.
	Errors   []string `json:"errors"`
	Outcomes []Named  `json:"outcomes"`
}

// Skipped returns the names of validators that skipped.
func (r Report) Skipped() []string {
	var names []string
	for _, n := range r.Outcomes {
		if n.Outcome.IsSkipped() {
			names = append(names, n.Validator)
		}
	}
	return names
}

// Combine aggregates outcomes in the order given. A skippable validator that
// skipped does not affect the verdict; every other outcome must be a success.
// At least one validator must have judged the package.
func Combine(outcomes ...Named) Report {
	r := Report{Success: true, Errors: []string{}, Outcomes: outcomes}
	judged := 0
	seen := make(map[string]bool)
	add := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			r.Errors = append(r.Errors, msg)
		}
	}

	for _, n := range outcomes {
		switch n.Outcome.Status {
		case StatusSuccess:
			judged++
		case StatusSkipped:
			if n.CanSkip {
				continue
			}
			judged++
			r.Success = false
			add(fmt.Sprintf("%s validator did not run: %s", n.Validator, n.Outcome.Reason))
		default:
			judged++
			r.Success = false
			errs := n.Outcome.Errors
			if len(errs) == 0 {
				errs = []string{fmt.Sprintf("%s validation failed", n.Validator)}
			}
			for _, e := range errs {
				add(e)
			}
		}
	}
	if judged == 0 {
		r.Success = false
		add("no validator was able to check the package")
	}
	return r
}

// Run validates in with each validator in order and combines the outcomes.
func Run(ctx context.Context, in Input, validators ...Validator) Report {
	outcomes := make([]Named, 0, len(validators))
	for _, v := range validators {
		outcomes = append(outcomes, Evaluate(ctx, v, in))
	}
	return Combine(outcomes...)
}

// Evaluate runs a single validator.
func Evaluate(ctx context.Context, v Validator, in Input) Named {
	return Named{Validator: v.Name(), CanSkip: v.CanSkip(), Outcome: v.Validate(ctx, in)}
}
