package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/autofix"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/config"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
	forgehttp "github.com/kcowger/commcare-forge-sub001/internal/http"
	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
	"github.com/kcowger/commcare-forge-sub001/internal/toolchain"
)

// Exit statuses of the pipeline commands.
const (
	exitInvalid = 1 // the run completed but the package is not valid
	exitAborted = 2 // the run aborted on a fatal error
)

// maxPromptBytes bounds prompts read from files or stdin.
const maxPromptBytes = 64 << 10

type operation func(ctx context.Context, a *app) (*pipeline.Result, error)

// runOperation builds the app, runs op and prints its result. Progress goes
// to stderr unless JSON output is requested.
func runOperation(cmd *cobra.Command, opts *rootOptions, needsGenerator bool, op operation) error {
	ctx := cmd.Context()

	var sink pipeline.ProgressSink
	if !opts.jsonOutput {
		sink = newProgressPrinter(cmd.ErrOrStderr()).Sink()
	}

	a, err := newApp(ctx, opts, sink)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if needsGenerator {
		if err := a.requireGenerator(); err != nil {
			return err
		}
	}

	res, runErr := op(ctx, a)
	if res != nil {
		if opts.jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			renderResult(cmd.OutOrStdout(), res)
		}
	}

	switch {
	case runErr != nil:
		a.logger.Debug(ctx, "operation aborted", zap.String("error", runErr.Error()))
		return &exitError{code: exitAborted}
	case res != nil && !res.Success:
		return &exitError{code: exitInvalid}
	}
	return nil
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.ccz>",
		Short: "Repair, validate and export an existing package",
		Long: `Repair, validate and export an existing .ccz package.

Known structural defects are fixed automatically, the package is checked
by commcare-cli.jar (when available) and the built-in rules, and the best
available archive is written to the export directory.

Exit status is 0 when the package is valid, 1 when validation failed and 2
when the package could not be processed at all.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts, false, func(ctx context.Context, a *app) (*pipeline.Result, error) {
				return a.orch.ValidateUpload(ctx, args[0])
			})
		},
	}
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		promptFile string
		baseName   string
	)
	cmd := &cobra.Command{
		Use:   "generate [description]",
		Short: "Generate a package from a description",
		Long: `Generate a package from a plain-language description.

The description comes from the arguments, from --prompt-file, or from
stdin when --prompt-file is "-". Each generated candidate is repaired and
validated; validation errors are fed back into the next attempt, up to
pipeline.max_attempts.

Examples:
  forge generate "register households and record monthly visits"
  forge generate --prompt-file app.txt --name household_visits`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args, promptFile)
			if err != nil {
				return err
			}
			return runOperation(cmd, opts, true, func(ctx context.Context, a *app) (*pipeline.Result, error) {
				return a.orch.Generate(ctx, pipeline.GenerateRequest{Prompt: prompt, BaseName: baseName})
			})
		},
	}
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", `read the description from a file ("-" for stdin)`)
	cmd.Flags().StringVar(&baseName, "name", "", "base name of the exported files (default: app name)")
	return cmd
}

// readPrompt returns the description given on the command line or in a file.
func readPrompt(stdin io.Reader, args []string, file string) (string, error) {
	if file != "" && len(args) > 0 {
		return "", errors.New("give the description either as arguments or with --prompt-file, not both")
	}

	var prompt string
	switch {
	case file == "-":
		data, err := io.ReadAll(io.LimitReader(stdin, maxPromptBytes+1))
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		if len(data) > maxPromptBytes {
			return "", fmt.Errorf("description exceeds %d bytes", maxPromptBytes)
		}
		prompt = string(data)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", file, err)
		}
		if len(data) > maxPromptBytes {
			return "", fmt.Errorf("description exceeds %d bytes", maxPromptBytes)
		}
		prompt = string(data)
	default:
		prompt = strings.Join(args, " ")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("no description given")
	}
	return prompt, nil
}

func newFixCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fix <file.ccz>",
		Short: "Apply automatic fixes without validating",
		Long: `Run the automatic fixer over a package and list what it changed.

With --output the fixed package is written to that path. Without it the
command only reports.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := ccz.Parse(args[0])
			if err != nil {
				return err
			}
			res := autofix.New().Apply(pkg.Files)

			written := ""
			if output != "" {
				dir := filepath.Dir(output)
				base := strings.TrimSuffix(filepath.Base(output), ccz.Extension)
				if written, err = ccz.Build(res.Files, dir, base); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, fixReport{Fixes: nonNil(res.Fixes), Output: written})
			}
			st := newStyles(out)
			if len(res.Fixes) == 0 {
				fmt.Fprintf(out, "%s no fixes needed\n", st.ok.Render("✓"))
			} else {
				renderFixes(out, st, res.Fixes)
			}
			if written != "" {
				fmt.Fprintf(out, "  %s %s\n", st.label.Render("Written: "), written)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the fixed package to this .ccz path")
	return cmd
}

type fixReport struct {
	Fixes  []autofix.Fix `json:"fixes"`
	Output string        `json:"output,omitempty"`
}

func nonNil(fixes []autofix.Fix) []autofix.Fix {
	if fixes == nil {
		return []autofix.Fix{}
	}
	return fixes
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file.ccz>",
		Short: "Describe the modules and forms of a package",
		Long: `Print a markdown outline of a package's modules and forms.

With --json the application definition is printed in HQ JSON form instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := ccz.Parse(args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), hqjson.FromFiles(pkg.Files))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s", pkg.AppName, pkg.Summary)
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var baseName string
	cmd := &cobra.Command{
		Use:   "export <file.ccz>",
		Short: "Copy a package to the export directory",
		Long: `Copy a package to the export directory as <name>.ccz, replacing any
earlier export of the same name. The package is read first, so only
readable archives are exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts, false, func(ctx context.Context, a *app) (*pipeline.Result, error) {
				return a.orch.Export(ctx, args[0], baseName)
			})
		},
	}
	cmd.Flags().StringVar(&baseName, "name", "", "base name of the exported file (default: app name)")
	return cmd
}

func newToolchainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toolchain",
		Short: "Report whether external validation can run",
		Long: `Check for a Java runtime and a readable commcare-cli.jar.

Exit status is 1 when the toolchain is unavailable; validation still runs
in that case but skips the external check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := applyFlags(cfg, opts); err != nil {
				return err
			}

			avail := toolchain.NewLocalProbe(cfg.Toolchain.JavaPath, cfg.Toolchain.JarPath).Check(cmd.Context())
			if opts.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), avail); err != nil {
					return err
				}
			} else {
				renderAvailability(cmd.OutOrStdout(), avail)
			}
			if !avail.Available {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until interrupted.

Endpoints:
  GET  /health             liveness
  GET  /metrics            Prometheus metrics
  GET  /api/v1/toolchain   external validator availability
  POST /api/v1/validate    multipart "file": repair, validate, export
  POST /api/v1/generate    {"prompt": "...", "base_name": "..."}
  POST /api/v1/export      multipart "file" and optional "base_name"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if cmd.Flags().Changed("host") {
				a.cfg.HTTP.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.HTTP.Port = port
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen address (default from http.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from http.port)")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func serve(ctx context.Context, a *app) error {
	server, err := forgehttp.NewServer(a.orch, a.probe, a.scrubber, a.logger.Underlying().Named("http"),
		&forgehttp.Config{
			Host:           a.cfg.HTTP.Host,
			Port:           a.cfg.HTTP.Port,
			MaxUploadBytes: a.cfg.HTTP.MaxUploadBytes,
		},
		forgehttp.WithMeter(a.telemetry.Meter(instrumentationName)),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	if err := a.requireGenerator(); err != nil {
		a.logger.Warn(ctx, "generate endpoint will fail", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	a.logger.Info(ctx, "http server stopped", zap.Duration("shutdown_timeout", time.Duration(a.cfg.HTTP.ShutdownTimeout)))
	return nil
}
