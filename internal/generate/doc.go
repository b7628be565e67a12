// Package generate produces candidate application packages from a natural
// language description.
//
// The pipeline calls a Generator once per attempt. From the second attempt
// on, Request.Feedback carries the validation errors of the previous
// candidate so the model can correct them.
//
//	gen, err := generate.New(cfg.Generator, logger)
//	cand, err := gen.Generate(ctx, generate.Request{
//	    Prompt:      "household registration with follow-up visits",
//	    Attempt:     1,
//	    MaxAttempts: 3,
//	})
//
// The Anthropic generator asks the model for a JSON object mapping archive
// paths to file contents and rejects replies whose paths escape the
// package root.
package generate
