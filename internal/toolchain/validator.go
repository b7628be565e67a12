package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

const (
	// DefaultTimeout bounds one commcare-cli run.
	DefaultTimeout = 30 * time.Second

	// DefaultWaitDelay bounds how long output pipes are drained after the
	// process is killed.
	DefaultWaitDelay = 2 * time.Second

	stderrTailLines = 5
	stderrTailBytes = 500
)

// Validator validates archives with commcare-cli.jar.
type Validator struct {
	capability Capability
	timeout    time.Duration
	waitDelay  time.Duration
	logger     *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout sets the per-run timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithWaitDelay sets how long to wait for output after a kill.
func WithWaitDelay(d time.Duration) Option {
	return func(v *Validator) {
		v.waitDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator returns a toolchain validator backed by capability.
func NewValidator(capability Capability, opts ...Option) *Validator {
	v := &Validator{
		capability: capability,
		timeout:    DefaultTimeout,
		waitDelay:  DefaultWaitDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (*Validator) Name() string  { return "external" }
func (*Validator) CanSkip() bool { return true }

// Timeout returns the per-run timeout.
func (v *Validator) Timeout() time.Duration { return v.timeout }

// Validate runs `java -jar <jar> validate <archive>` on in.ArtifactPath.
func (v *Validator) Validate(ctx context.Context, in validation.Input) validation.Outcome {
	avail := v.capability.Check(ctx)
	if !avail.Available {
		InvocationsTotal.WithLabelValues("skipped").Inc()
		v.logger.Debug("toolchain unavailable, skipping", zap.String("reason", avail.Reason))
		return validation.Skipped(avail.Reason)
	}
	if in.ArtifactPath == "" {
		InvocationsTotal.WithLabelValues("failure").Inc()
		return validation.Failure("toolchain failure: no archive to validate")
	}

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, avail.JavaPath, "-jar", avail.JarPath, "validate", in.ArtifactPath)
	cmd.WaitDelay = v.waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	InvocationDuration.Observe(elapsed.Seconds())

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		InvocationsTotal.WithLabelValues("timeout").Inc()
		v.logger.Warn("commcare-cli timed out",
			zap.String("artifact", filepath.Base(in.ArtifactPath)),
			zap.Duration("timeout", v.timeout))
		return validation.Failure(fmt.Sprintf("validator timed out after %s", v.timeout))
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			if inv, ok := v.capability.(Invalidator); ok {
				inv.Invalidate()
			}
		}
		InvocationsTotal.WithLabelValues("failure").Inc()
		v.logger.Warn("commcare-cli failed to start", zap.Error(err))
		return validation.Failure(fmt.Sprintf("toolchain failure: %v", err))
	}

	errs := ParseOutput(stdout.String())
	v.logger.Debug("commcare-cli finished",
		zap.String("artifact", filepath.Base(in.ArtifactPath)),
		zap.Duration("elapsed", elapsed),
		zap.Int("errors", len(errs)))

	if exitErr != nil && len(errs) == 0 {
		msg := fmt.Sprintf("commcare-cli exited with status %d", exitErr.ExitCode())
		if tail := tail(stderr.String()); tail != "" {
			msg += ": " + tail
		}
		errs = []string{msg}
	}
	if len(errs) > 0 {
		InvocationsTotal.WithLabelValues("failure").Inc()
		return validation.Failure(errs...)
	}
	InvocationsTotal.WithLabelValues("success").Inc()
	return validation.Success(fmt.Sprintf("commcare-cli validated %s", filepath.Base(in.ArtifactPath)))
}

// ParseOutput extracts error lines from commcare-cli output: lines starting
// with ERROR, Error or FATAL, and lines mentioning an Exception, a failed
// validation or a Problem.
func ParseOutput(out string) []string {
	var errs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isErrorLine(line) {
			errs = append(errs, line)
		}
	}
	return errs
}

func isErrorLine(line string) bool {
	for _, prefix := range []string{"ERROR", "Error", "FATAL"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	for _, marker := range []string{"Exception", "Validation failed", "Problem"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// tail returns the last few non-empty lines of s joined by "; ".
func tail(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	out := strings.Join(lines, "; ")
	if len(out) > stderrTailBytes {
		out = "..." + out[len(out)-stderrTailBytes:]
	}
	return out
}
