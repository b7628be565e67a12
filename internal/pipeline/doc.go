// Package pipeline turns candidate application packages into exported,
// validated archives.
//
// A run moves through the states
//
//	generating → parsing → fixing → building → validating_<name>... → exporting → done
//
// where generating only occurs for generated packages and building is
// skipped for uploads that needed no fixes. Each transition emits one
// ProgressEvent before the state runs.
//
// Validators run in order and their outcomes combine through
// validation.Combine: a skippable validator that skipped leaves the verdict
// to the others. The artifact is exported whatever the verdict, so callers
// always get the best available package. Parse, build and export failures
// are fatal (see IsFatal) and end the run; the returned Result still
// describes what happened.
//
// Generate wraps the run in a bounded loop. Validation errors of one
// attempt, or the generator's own error, become the feedback of the next.
//
//	orch := pipeline.New(gen,
//	    []validation.Validator{toolchain.NewValidator(probe), hqrules.New()},
//	    export.New(cfg.Export.Dir, logger.Underlying()),
//	    pipeline.WithLogger(logger),
//	    pipeline.WithMaxAttempts(cfg.Pipeline.MaxAttempts))
//	res, err := orch.ValidateUpload(ctx, "household.ccz")
package pipeline
