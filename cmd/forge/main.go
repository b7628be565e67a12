// Forge generates, validates, repairs and exports CommCare application
// packages (.ccz).
//
// Usage:
//
//	# Validate an archive, applying automatic fixes
//	forge validate household.ccz
//
//	# Generate a new application
//	ANTHROPIC_API_KEY=... forge generate "register households and track visits"
//
//	# Serve the HTTP API
//	forge serve --port 8765
//
// Configuration is read from ~/.config/commcare-forge/config.yaml and FORGE_*
// environment variables. See internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// exitError carries a process exit status without an error message. Commands
// return it when the run completed but its verdict was negative.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// Runs finish after the first interrupt; restoring the default handler
	// lets a second one end the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	logLevel   string
	exportDir  string
	jarPath    string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "forge",
		Short: "Generate, validate and export CommCare application packages",
		Long: `forge turns application descriptions and uploaded .ccz archives into
validated, exportable CommCare packages.

Every package goes through automatic repair, the external commcare-cli.jar
validator (skipped when Java or the jar is missing) and the built-in rule
checks before it is written to the export directory.`,
		Version:       fmt.Sprintf("%s (%s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/commcare-forge/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.exportDir, "export-dir", "", "directory for exported packages")
	flags.StringVar(&opts.jarPath, "jar", "", "path to commcare-cli.jar")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newValidateCmd(opts),
		newGenerateCmd(opts),
		newFixCmd(opts),
		newSummaryCmd(opts),
		newExportCmd(opts),
		newToolchainCmd(opts),
		newServeCmd(opts),
	)
	return root
}
