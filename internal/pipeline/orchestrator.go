package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/autofix"
	"github.com/kcowger/commcare-forge-sub001/internal/generate"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
	"github.com/kcowger/commcare-forge-sub001/internal/logging"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

// DefaultMaxAttempts bounds generation attempts per run.
const DefaultMaxAttempts = 3

// Operation names used in metrics and logs.
const (
	opValidateUpload = "validate_upload"
	opGenerate       = "generate"
	opExport         = "export"
)

// Exporter writes final artifacts to a stable location.
type Exporter interface {
	ExportPackage(ctx context.Context, artifactPath, baseName string) (string, error)
	ExportJSON(ctx context.Context, doc *hqjson.Document, baseName string) (string, error)
}

// Orchestrator drives packages through parsing, fixing, building,
// validation and export. It is safe for concurrent use; every operation
// owns its run state.
type Orchestrator struct {
	generator  generate.Generator
	validators []validation.Validator
	exporter   Exporter
	fixer      *autofix.Fixer

	logger   *logging.Logger
	scrubber secrets.Scrubber
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  *metrics
	sink     ProgressSink

	maxAttempts int
	workDir     string
	exportJSON  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMeter sets the meter for pipeline metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithScrubber sets the scrubber applied to every surfaced error.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scrubber = s
		}
	}
}

// WithMaxAttempts bounds generation attempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithWorkDir sets the parent directory of per-run work directories.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.workDir = dir
		}
	}
}

// WithExportJSON enables the HQ JSON artifact for every export.
func WithExportJSON(enabled bool) Option {
	return func(o *Orchestrator) { o.exportJSON = enabled }
}

// WithFixer replaces the default auto-fixer.
func WithFixer(f *autofix.Fixer) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fixer = f
		}
	}
}

// WithProgress sets a sink receiving the events of every operation.
func WithProgress(sink ProgressSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// New returns an orchestrator. validators run in the given order; their
// errors are reported in that order. gen may be nil when Generate is not
// used.
func New(gen generate.Generator, validators []validation.Validator, exporter Exporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:   gen,
		validators:  validators,
		exporter:    exporter,
		fixer:       autofix.New(),
		logger:      logging.Nop(),
		tracer:      otel.Tracer(instrumentationName),
		maxAttempts: DefaultMaxAttempts,
		workDir:     filepath.Join(os.TempDir(), "commcare-forge"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.scrubber == nil {
		o.scrubber = defaultScrubber()
	}

	m, err := newMetrics(o.meter)
	if err != nil {
		o.logger.Warn(context.Background(), "pipeline metrics disabled", zap.Error(err))
	}
	o.metrics = m
	return o
}

// defaultScrubber redacts with the built-in rules only.
func defaultScrubber() secrets.Scrubber {
	cfg := secrets.DefaultConfig()
	cfg.Gitleaks = false
	s, err := secrets.New(cfg)
	if err != nil {
		return &secrets.NoopScrubber{}
	}
	return s
}

// MaxAttempts returns the generation attempt bound.
func (o *Orchestrator) MaxAttempts() int { return o.maxAttempts }

// run is the state owned by one operation.
type run struct {
	id          string
	operation   string
	maxAttempts int
	attempt     int
	state       State
	workDir     string
	started     time.Time
	history     []AttemptRecord
	sinks       []ProgressSink
}

func (o *Orchestrator) newRun(ctx context.Context, operation string, maxAttempts int) *run {
	id := uuid.NewString()
	r := &run{
		id:          id,
		operation:   operation,
		maxAttempts: maxAttempts,
		workDir:     filepath.Join(o.workDir, id),
		started:     time.Now(),
	}
	if o.sink != nil {
		r.sinks = append(r.sinks, o.sink)
	}
	if s := sinkFromContext(ctx); s != nil {
		r.sinks = append(r.sinks, s)
	}
	return r
}

// record appends an attempt record stamped with the current state.
func (r *run) record(rec AttemptRecord, started time.Time) {
	rec.Attempt = r.attempt
	if rec.State == "" {
		rec.State = r.state
	}
	rec.Duration = time.Since(started)
	r.history = append(r.history, rec)
}

// transition enters state and emits its event.
func (o *Orchestrator) transition(ctx context.Context, r *run, state State, msg string) {
	r.state = state
	o.logger.Debug(ctx, "pipeline state", zap.String("state", string(state)), zap.String("operation", r.operation))
	o.emit(ctx, r, ProgressEvent{
		Phase:       state.Phase(),
		State:       state,
		Message:     msg,
		Attempt:     r.attempt,
		MaxAttempts: r.maxAttempts,
	})
}

func (o *Orchestrator) emit(ctx context.Context, r *run, ev ProgressEvent) {
	for _, sink := range r.sinks {
		if err := deliver(sink, ev); err != nil {
			o.logger.Warn(ctx, "progress sink failed", zap.Error(err))
		}
	}
}

// releaseWorkDir removes the run's scratch directory. Paths into it are
// cleared from res; the exported copy is the durable one.
func (o *Orchestrator) releaseWorkDir(ctx context.Context, r *run, res *Result) {
	if inDir(res.Artifacts.PackagePath, r.workDir) {
		res.Artifacts.PackagePath = ""
	}
	for i := range res.History {
		if inDir(res.History[i].ArtifactPath, r.workDir) {
			res.History[i].ArtifactPath = ""
		}
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		o.logger.Warn(ctx, "failed to remove work directory", zap.String("dir", r.workDir), zap.Error(err))
	}
}

func inDir(path, dir string) bool {
	return path != "" && strings.HasPrefix(path, dir+string(filepath.Separator))
}

// complete finalizes res, emits the terminal event and records the run.
func (o *Orchestrator) complete(ctx context.Context, r *run, span trace.Span, res *Result, err error) (*Result, error) {
	res.RunID = r.id
	res.Attempts = len(r.history)
	res.History = append([]AttemptRecord(nil), r.history...)
	res.Errors = dedupe(o.scrubber.ScrubAll(res.Errors))
	res.Message = o.scrubber.Scrub(res.Message).Scrubbed
	res.Success = res.Success && err == nil
	res.FixesApplied = len(res.Fixes)
	o.releaseWorkDir(ctx, r, res)

	phase := PhaseFailed
	if res.Success {
		phase = PhaseSuccess
	}
	r.state = StateDone
	o.emit(ctx, r, ProgressEvent{
		Phase:       phase,
		State:       StateDone,
		Message:     res.Message,
		Attempt:     r.attempt,
		MaxAttempts: r.maxAttempts,
	})

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !res.Success:
		outcome = "failure"
	}
	o.metrics.recordRun(ctx, r.operation, outcome, time.Since(r.started))

	span.SetAttributes(
		attribute.Bool("success", res.Success),
		attribute.Int("attempts", res.Attempts),
		attribute.Int("fixes_applied", res.FixesApplied),
		attribute.Int("errors", len(res.Errors)),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !res.Success:
		span.SetStatus(codes.Error, "validation failed")
	default:
		span.SetStatus(codes.Ok, "")
	}

	fields := []zap.Field{
		zap.String("operation", r.operation),
		zap.Bool("success", res.Success),
		zap.Int("attempts", res.Attempts),
		zap.Int("fixes_applied", res.FixesApplied),
		zap.Int("errors", len(res.Errors)),
		zap.String("export_path", res.Artifacts.ExportPath),
		zap.Duration("duration", time.Since(r.started)),
	}
	if err != nil {
		o.logger.Error(ctx, "pipeline run aborted", append(fields, zap.Error(err))...)
	} else {
		o.logger.Info(ctx, "pipeline run finished", fields...)
	}
	return res, err
}

// scrub redacts messages before they are stored in a record or fed back to
// the generator.
func (o *Orchestrator) scrub(msgs ...string) []string {
	return o.scrubber.ScrubAll(msgs)
}

// dedupe drops exact duplicates, keeping the first occurrence. It never
// returns nil.
func dedupe(msgs []string) []string {
	out := make([]string, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
