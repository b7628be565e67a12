package generate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/config"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
)

var (
	// ErrDisabled is returned by the generator of the "none" provider.
	ErrDisabled = errors.New("generation is disabled (generator.provider is none)")

	// ErrInvalidOutput indicates the model reply could not be turned into a
	// package file set.
	ErrInvalidOutput = errors.New("generator returned an invalid package")
)

// Request is one generation attempt.
type Request struct {
	// Prompt describes the application to build.
	Prompt string

	// Feedback holds the errors of the previous attempt. Empty on the first
	// attempt.
	Feedback []string

	Attempt     int
	MaxAttempts int
}

// Candidate is a generated package.
type Candidate struct {
	Files   ccz.FileSet
	AppName string

	// Document is an HQ JSON document supplied alongside the files, if any.
	Document *hqjson.Document
}

// Generator produces candidate packages. Implementations must honor ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Candidate, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (*Candidate, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Candidate, error) {
	return f(ctx, req)
}

// disabled always fails with ErrDisabled.
type disabled struct{}

func (disabled) Generate(context.Context, Request) (*Candidate, error) {
	return nil, ErrDisabled
}

// New returns the generator configured by cfg.
func New(cfg config.GeneratorConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		a, err := NewAnthropic(cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.ProviderNone, "":
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown generator provider: %q", cfg.Provider)
	}
}
