package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcowger/commcare-forge-sub001/internal/ccz"
	"github.com/kcowger/commcare-forge-sub001/internal/ccz/ccztest"
	"github.com/kcowger/commcare-forge-sub001/internal/hqjson"
	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
)

const regForm = "modules-0/forms-0.xml"

// testEnv isolates configuration: a fresh home without a config file, and
// export and work directories under a temp root.
type testEnv struct {
	exportDir string
	dir       string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		exportDir: filepath.Join(root, "exports"),
		dir:       filepath.Join(root, "in"),
	}
	require.NoError(t, os.MkdirAll(env.dir, 0o755))

	t.Setenv("HOME", filepath.Join(root, "home"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("FORGE_EXPORT_DIR", env.exportDir)
	t.Setenv("FORGE_PIPELINE_WORK_DIR", filepath.Join(root, "work"))
	t.Setenv("FORGE_TOOLCHAIN_JAR_PATH", "")
	t.Setenv("FORGE_TOOLCHAIN_WATCH", "false")
	t.Setenv("FORGE_SECRETS_GITLEAKS", "false")
	t.Setenv("FORGE_LOGGING_LEVEL", "error")
	return env
}

func (e *testEnv) archive(t *testing.T, fs ccz.FileSet) string {
	t.Helper()
	return ccztest.WriteArchive(t, fs, e.dir, "upload")
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stripANSI(stdout.String()), stripANSI(stderr.String()), err
}

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI drops terminal styling, which depends on how the renderer
// classifies the output writer.
func stripANSI(s string) string { return ansiSeq.ReplaceAllString(s, "") }

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, code, ee.code)
}

func TestValidateCmd_RepairsAndExports(t *testing.T) {
	env := setupEnv(t)
	path := env.archive(t, ccztest.WithDanglingFormResource())

	stdout, stderr, err := execute(t, "", "validate", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Package is valid; 1 automatic fix(es) applied")
	assert.Contains(t, stdout, "external validation skipped: commcare-cli.jar is not configured")
	assert.Contains(t, stdout, "suite-dangling-form-resource:")
	assert.Contains(t, stdout, "Household Survey")
	assert.FileExists(t, filepath.Join(env.exportDir, "Household_Survey.ccz"))

	assert.Contains(t, stderr, "fixing")
	assert.Contains(t, stderr, "success")
}

func TestValidateCmd_InvalidPackageExitsOne(t *testing.T) {
	env := setupEnv(t)
	fs := ccztest.Replace(t, ccztest.Files(), regForm, "<owner_id/>", "")

	stdout, _, err := execute(t, "", "validate", env.archive(t, fs))
	requireExitCode(t, err, exitInvalid)

	assert.Contains(t, stdout, "✗ Package failed validation with 1 error(s)")
	assert.Contains(t, stdout, "case create block is missing owner_id")
	assert.FileExists(t, filepath.Join(env.exportDir, "Household_Survey.ccz"), "failed packages are exported too")
}

func TestValidateCmd_NotAnArchiveExitsTwo(t *testing.T) {
	env := setupEnv(t)
	path := filepath.Join(env.dir, "notes.ccz")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o600))

	stdout, _, err := execute(t, "", "validate", path)
	requireExitCode(t, err, exitAborted)

	assert.Contains(t, stdout, "Failed to parse")
	assert.NoDirExists(t, env.exportDir)
}

func TestValidateCmd_JSON(t *testing.T) {
	env := setupEnv(t)

	stdout, stderr, err := execute(t, "", "--json", "validate", env.archive(t, ccztest.Files()))
	require.NoError(t, err)
	assert.Empty(t, stderr, "no progress output in JSON mode")

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "Household Survey", res.AppName)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.RunID)
}

func TestValidateCmd_RequiresOneArgument(t *testing.T) {
	setupEnv(t)
	_, _, err := execute(t, "", "validate")
	assert.Error(t, err)
}

func TestGenerateCmd_WithoutAPIKey(t *testing.T) {
	setupEnv(t)

	_, _, err := execute(t, "", "generate", "household", "visits")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator unavailable")
}

func TestGenerateCmd_DisabledProvider(t *testing.T) {
	env := setupEnv(t)
	t.Setenv("FORGE_GENERATOR_PROVIDER", "none")
	t.Setenv("FORGE_PIPELINE_MAX_ATTEMPTS", "2")

	stdout, _, err := execute(t, "", "generate", "household visits")
	requireExitCode(t, err, exitInvalid)

	assert.Contains(t, stdout, "Attempts:")
	assert.Contains(t, stdout, "generation is disabled")
	assert.NoDirExists(t, env.exportDir)
}

func TestGenerateCmd_NoDescription(t *testing.T) {
	setupEnv(t)
	_, _, err := execute(t, "", "generate")
	assert.EqualError(t, err, "no description given")
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt(nil, []string{"track", " visits "}, "")
	require.NoError(t, err)
	assert.Equal(t, "track  visits", got)

	got, err = readPrompt(strings.NewReader("  from stdin\n"), nil, "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	file := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(file, []byte("from a file"), 0o600))
	got, err = readPrompt(nil, nil, file)
	require.NoError(t, err)
	assert.Equal(t, "from a file", got)

	_, err = readPrompt(nil, []string{"x"}, file)
	assert.ErrorContains(t, err, "not both")

	_, err = readPrompt(strings.NewReader(strings.Repeat("x", maxPromptBytes+1)), nil, "-")
	assert.ErrorContains(t, err, "exceeds")

	_, err = readPrompt(nil, nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "failed to read file")
}

func TestFixCmd(t *testing.T) {
	env := setupEnv(t)
	path := env.archive(t, ccztest.WithDanglingFormResource())
	out := filepath.Join(env.dir, "fixed.ccz")

	stdout, _, err := execute(t, "", "fix", path, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Fixes (1)")
	assert.Contains(t, stdout, out)

	fixed, err := ccz.Parse(out)
	require.NoError(t, err)
	assert.NotContains(t, string(fixed.Files[ccz.SuitePath]), "forms-2.xml")

	stdout, _, err = execute(t, "", "fix", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "no fixes needed")
}

func TestFixCmd_JSON(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := execute(t, "", "--json", "fix", env.archive(t, ccztest.Files()))
	require.NoError(t, err)

	var report fixReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Empty(t, report.Fixes)
	assert.Empty(t, report.Output)
	assert.Contains(t, stdout, `"fixes": []`)
}

func TestSummaryCmd(t *testing.T) {
	env := setupEnv(t)
	path := env.archive(t, ccztest.Files())

	stdout, _, err := execute(t, "", "summary", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "# Household Survey\n"), stdout)
	assert.Contains(t, stdout, "### Module 1: Households")

	stdout, _, err = execute(t, "", "--json", "summary", path)
	require.NoError(t, err)
	var doc hqjson.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "Household Survey", doc.Name)
}

func TestExportCmd(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := execute(t, "", "export", env.archive(t, ccztest.Files()), "--name", "clinic intake")
	require.NoError(t, err)

	dest := filepath.Join(env.exportDir, "clinic_intake.ccz")
	assert.FileExists(t, dest)
	assert.Contains(t, stdout, "Exported "+dest)
}

func TestToolchainCmd_Unavailable(t *testing.T) {
	setupEnv(t)

	stdout, _, err := execute(t, "", "toolchain")
	requireExitCode(t, err, 1)
	assert.Contains(t, stdout, "external validation unavailable: commcare-cli.jar is not configured")
}

func TestLogLevelFlag(t *testing.T) {
	env := setupEnv(t)

	_, _, err := execute(t, "", "--log-level", "loud", "validate", env.archive(t, ccztest.Files()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging configuration")
}

func TestExportDirFlag(t *testing.T) {
	env := setupEnv(t)
	dir := filepath.Join(env.dir, "elsewhere")

	_, _, err := execute(t, "", "--export-dir", dir, "export", env.archive(t, ccztest.Files()))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "Household_Survey.ccz"))
	assert.NoDirExists(t, env.exportDir)
}
