package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/autofix"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/generate"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
	"github.com/kcowger/commcare-forge-sub001/internal/logging"
	"github.com/kcowger/commcare-forge-sub001/internal/sanitize"
	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

// ErrNoGenerator is returned by Generate when the orchestrator has no
// generator.
var ErrNoGenerator = errors.New("no generator configured")

// GenerateRequest asks for a new package.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	// BaseName names the exported files. Defaults to the app name.
	BaseName string `json:"base_name,omitempty"`
}

// pass is the outcome of fixing, building and validating one file set.
type pass struct {
	files    ccz.FileSet
	fixes    []autofix.Fix
	artifact string
	report   validation.Report
}

// check fixes files, rebuilds them when needed and runs every validator.
// original is the archive the files came from, empty for generated sets.
// The archive is rebuilt only when a fix was applied or there is no
// original. A build failure is returned with the fixes already known.
func (o *Orchestrator) check(ctx context.Context, r *run, files ccz.FileSet, original, baseName string) (*pass, error) {
	o.transition(ctx, r, StateFixing, "Checking for known defects")
	fixed := o.fixer.Apply(files)
	for _, f := range fixed.Fixes {
		o.metrics.recordFix(ctx, f.Detector)
		o.logger.Debug(ctx, "fix applied", zap.String("detector", f.Detector), zap.Strings("paths", f.Paths))
	}

	p := &pass{files: fixed.Files, fixes: fixed.Fixes, artifact: original}
	if len(p.fixes) > 0 || original == "" {
		msg := "Building package"
		if len(p.fixes) > 0 {
			msg = fmt.Sprintf("Rebuilding package with %d fix(es)", len(p.fixes))
		}
		o.transition(ctx, r, StateBuilding, msg)
		path, err := ccz.Build(p.files, r.workDir, baseName)
		if err != nil {
			return p, err
		}
		p.artifact = path
	}

	in := validation.Input{ArtifactPath: p.artifact, Files: p.files}
	outcomes := make([]validation.Named, 0, len(o.validators))
	for _, v := range o.validators {
		o.transition(ctx, r, ValidatingState(v.Name()), fmt.Sprintf("Running %s validation", v.Name()))
		named := validation.Evaluate(ctx, v, in)
		o.logger.Debug(ctx, "validator finished",
			zap.String("validator", named.Validator),
			zap.String("status", string(named.Outcome.Status)),
			zap.Int("errors", len(named.Outcome.Errors)))
		outcomes = append(outcomes, named)
	}
	p.report = validation.Combine(outcomes...)
	return p, nil
}

// export writes the artifact and, when enabled or supplied, the JSON
// document. Writes are not interrupted by cancellation of ctx.
func (o *Orchestrator) export(ctx context.Context, r *run, artifact string, files ccz.FileSet, doc *hqjson.Document, baseName string) (Artifacts, error) {
	o.transition(ctx, r, StateExporting, "Exporting package")
	ctx = context.WithoutCancel(ctx)

	arts := Artifacts{PackagePath: artifact}
	path, err := o.exporter.ExportPackage(ctx, artifact, baseName)
	if err != nil {
		return arts, err
	}
	arts.ExportPath = path

	if doc == nil && o.exportJSON {
		doc = hqjson.FromFiles(files)
	}
	if doc != nil {
		jsonPath, err := o.exporter.ExportJSON(ctx, doc, baseName)
		if err != nil {
			return arts, err
		}
		arts.JSONPath = jsonPath
	}
	return arts, nil
}

// verdict describes a validation pass for humans.
func verdict(p *pass) string {
	var b strings.Builder
	if p.report.Success {
		b.WriteString("Package is valid")
	} else {
		fmt.Fprintf(&b, "Package failed validation with %d error(s)", len(p.report.Errors))
	}
	if n := len(p.fixes); n > 0 {
		fmt.Fprintf(&b, "; %d automatic fix(es) applied", n)
	}
	for _, n := range p.report.Outcomes {
		if n.CanSkip && n.Outcome.IsSkipped() {
			fmt.Fprintf(&b, "; %s validation skipped: %s", n.Validator, n.Outcome.Reason)
		}
	}
	return b.String()
}

// ValidateUpload runs an uploaded archive through the pipeline once. The
// returned error is non-nil only for fatal errors (see IsFatal); the Result
// is always populated.
func (o *Orchestrator) ValidateUpload(ctx context.Context, path string) (*Result, error) {
	r := o.newRun(ctx, opValidateUpload, 1)
	r.attempt = 1
	ctx = logging.WithAttempt(logging.WithRunID(ctx, r.id), r.attempt)
	ctx, span := o.tracer.Start(ctx, "pipeline.validate_upload", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("upload", filepath.Base(path)),
	))
	defer span.End()
	// The run completes even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	o.transition(ctx, r, StateParsing, "Reading "+filepath.Base(path))
	pkg, err := ccz.Parse(path)
	if err != nil {
		msgs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{Errors: msgs}, started)
		o.metrics.recordAttempt(ctx, r.operation, "error")
		return o.complete(ctx, r, span, &Result{
			Errors:  msgs,
			Message: "Could not read the package",
		}, err)
	}

	res := &Result{AppName: pkg.AppName, Summary: pkg.Summary}
	baseName := sanitize.BaseName(pkg.AppName)

	p, err := o.check(ctx, r, pkg.Files, path, baseName)
	res.Fixes = p.fixes
	if err != nil {
		msgs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{Fixes: p.fixes, Errors: msgs}, started)
		o.metrics.recordAttempt(ctx, r.operation, "error")
		res.Errors = msgs
		res.Message = "Could not rebuild the fixed package"
		return o.complete(ctx, r, span, res, err)
	}

	res.Success = p.report.Success
	res.Errors = p.report.Errors
	res.Message = verdict(p)
	r.record(AttemptRecord{
		Fixes:        p.fixes,
		Report:       p.report,
		ArtifactPath: p.artifact,
		Errors:       o.scrub(p.report.Errors...),
	}, started)
	o.metrics.recordAttempt(ctx, r.operation, attemptOutcome(p.report.Success))

	arts, err := o.export(ctx, r, p.artifact, p.files, nil, baseName)
	res.Artifacts = arts
	if err != nil {
		res.Errors = append(res.Errors, sentence(err.Error()))
		res.Message = "Export failed: " + res.Message
		return o.complete(ctx, r, span, res, err)
	}
	return o.complete(ctx, r, span, res, nil)
}

// candidate is the most recent generated package that was validated.
type candidate struct {
	pass     *pass
	pkg      *ccz.Package
	doc      *hqjson.Document
	baseName string
	// errs are the scrubbed validation errors of this candidate.
	errs []string
}

// Generate asks the generator for a package and validates it, retrying with
// the previous errors as feedback until a package passes or the attempts run
// out. Generator failures and unreadable candidates count as failed
// attempts. A build or export failure ends the run and is returned.
//
// The last validated candidate is exported even when it failed, and its
// validation errors lead Result.Errors. When no candidate was ever produced
// nothing is exported.
//
// Like the other operations, a run outlives the caller: cancelling ctx does
// not stop the remaining attempts. Each generator call is bounded by the
// generator's own timeout.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	r := o.newRun(ctx, opGenerate, o.maxAttempts)
	ctx = logging.WithRunID(ctx, r.id)
	ctx, span := o.tracer.Start(ctx, "pipeline.generate", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("max_attempts", r.maxAttempts),
	))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	if o.generator == nil {
		return o.complete(ctx, r, span, &Result{
			Errors:  []string{sentence(ErrNoGenerator.Error())},
			Message: "Generation is not configured",
		}, nil)
	}

	var (
		feedback []string
		last     *candidate
		success  bool
		fatal    error
	)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		r.attempt = attempt
		actx, aspan := o.tracer.Start(logging.WithAttempt(ctx, attempt), "pipeline.attempt",
			trace.WithAttributes(attribute.Int("attempt", attempt)))

		c, errs, err := o.generateAttempt(actx, r, req, feedback)
		switch {
		case err != nil:
			fatal = err
			aspan.RecordError(err)
			aspan.SetStatus(codes.Error, err.Error())
		case c == nil:
			aspan.SetStatus(codes.Error, "no candidate")
		case c.pass.report.Success:
			success = true
		default:
			aspan.SetStatus(codes.Error, "validation failed")
		}
		if c != nil {
			last = c
		}
		aspan.SetAttributes(
			attribute.Bool("success", success),
			attribute.String("state", string(r.state)),
			attribute.Int("errors", len(errs)),
		)
		aspan.End()

		feedback = errs
		if success || fatal != nil {
			break
		}
	}

	res := &Result{}
	if last != nil {
		res.AppName = last.pkg.AppName
		res.Summary = last.pkg.Summary
		res.Fixes = last.pass.fixes
		res.Artifacts.PackagePath = last.pass.artifact
	}

	if fatal != nil {
		res.Errors = append(feedback, sentence(fatal.Error()))
		res.Message = "Generation aborted: could not build the package"
		return o.complete(ctx, r, span, res, fatal)
	}

	res.Errors = feedback
	if last != nil && !success {
		// Later attempts may have failed without a candidate; the exported
		// package's own errors come first.
		res.Errors = append(append([]string(nil), last.errs...), feedback...)
	}
	if last == nil {
		res.Message = fmt.Sprintf("Generation failed: no package was produced after %d attempt(s)", len(r.history))
		return o.complete(ctx, r, span, res, nil)
	}

	res.Success = success
	if success {
		res.Message = fmt.Sprintf("Generated %q on attempt %d of %d; %s", last.pkg.AppName, r.attempt, r.maxAttempts, verdict(last.pass))
	} else {
		res.Message = fmt.Sprintf("Generation did not pass validation after %d attempt(s); exported the last candidate", len(r.history))
	}

	arts, err := o.export(ctx, r, last.pass.artifact, last.pass.files, last.doc, last.baseName)
	res.Artifacts = arts
	if err != nil {
		res.Errors = append(res.Errors, sentence(err.Error()))
		res.Message = "Export failed: " + res.Message
		return o.complete(ctx, r, span, res, err)
	}
	return o.complete(ctx, r, span, res, nil)
}

// generateAttempt runs one attempt. It returns the validated candidate (nil
// when none was produced), the errors to feed back, and a fatal error.
func (o *Orchestrator) generateAttempt(ctx context.Context, r *run, req GenerateRequest, feedback []string) (*candidate, []string, error) {
	started := time.Now()

	o.transition(ctx, r, StateGenerating, fmt.Sprintf("Generating package (attempt %d of %d)", r.attempt, r.maxAttempts))
	cand, err := o.generator.Generate(ctx, generate.Request{
		Prompt:      req.Prompt,
		Feedback:    feedback,
		Attempt:     r.attempt,
		MaxAttempts: r.maxAttempts,
	})
	if err == nil && (cand == nil || len(cand.Files) == 0) {
		err = fmt.Errorf("%w: no files", generate.ErrInvalidOutput)
	}
	if err != nil {
		errs := o.scrub("Generation failed: " + err.Error())
		o.logger.Warn(ctx, "generation attempt failed", zap.Error(err))
		r.record(AttemptRecord{Errors: errs}, started)
		o.metrics.recordAttempt(ctx, r.operation, "generation_error")
		return nil, errs, nil
	}

	// Parsing and everything after it runs to completion.
	work := context.WithoutCancel(ctx)

	o.transition(work, r, StateParsing, "Reading generated package")
	pkg, err := ccz.ParseFiles(cand.Files)
	if err != nil {
		errs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{Errors: errs}, started)
		o.metrics.recordAttempt(work, r.operation, "parse_error")
		return nil, errs, nil
	}

	name := req.BaseName
	if name == "" {
		name = cand.AppName
	}
	if name == "" {
		name = pkg.AppName
	}
	c := &candidate{pkg: pkg, doc: cand.Document, baseName: sanitize.BaseName(name)}

	p, err := o.check(work, r, pkg.Files, "", c.baseName)
	if err != nil {
		errs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{Fixes: p.fixes, Errors: errs}, started)
		o.metrics.recordAttempt(work, r.operation, "error")
		return nil, nil, err
	}
	c.pass = p

	errs := o.scrub(p.report.Errors...)
	c.errs = errs
	r.record(AttemptRecord{
		Fixes:        p.fixes,
		Report:       p.report,
		ArtifactPath: p.artifact,
		Errors:       errs,
	}, started)
	o.metrics.recordAttempt(work, r.operation, attemptOutcome(p.report.Success))
	o.logger.Info(work, "generation attempt validated",
		zap.Bool("success", p.report.Success),
		zap.Int("fixes_applied", len(p.fixes)),
		zap.Int("errors", len(errs)))
	return c, errs, nil
}

// Export copies an existing archive to the export directory under baseName,
// which defaults to the app name.
func (o *Orchestrator) Export(ctx context.Context, artifactPath, baseName string) (*Result, error) {
	r := o.newRun(ctx, opExport, 1)
	r.attempt = 1
	ctx = logging.WithAttempt(logging.WithRunID(ctx, r.id), r.attempt)
	ctx, span := o.tracer.Start(ctx, "pipeline.export", trace.WithAttributes(
		attribute.String("run.id", r.id),
	))
	defer span.End()
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	o.transition(ctx, r, StateParsing, "Reading "+filepath.Base(artifactPath))
	pkg, err := ccz.Parse(artifactPath)
	if err != nil {
		msgs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{Errors: msgs}, started)
		return o.complete(ctx, r, span, &Result{Errors: msgs, Message: "Could not read the package"}, err)
	}
	if baseName == "" {
		baseName = pkg.AppName
	}

	res := &Result{AppName: pkg.AppName, Summary: pkg.Summary}
	arts, err := o.export(ctx, r, artifactPath, pkg.Files, nil, sanitize.BaseName(baseName))
	res.Artifacts = arts
	if err != nil {
		msgs := o.scrub(sentence(err.Error()))
		r.record(AttemptRecord{ArtifactPath: artifactPath, Errors: msgs}, started)
		res.Errors = msgs
		res.Message = "Export failed"
		return o.complete(ctx, r, span, res, err)
	}

	r.record(AttemptRecord{ArtifactPath: artifactPath}, started)
	res.Success = true
	res.Message = "Exported " + arts.ExportPath
	return o.complete(ctx, r, span, res, nil)
}

func attemptOutcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
