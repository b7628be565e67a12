// Package toolchain runs the CommCare command line validator
// (commcare-cli.jar) against built application archives.
//
// The toolchain needs a Java runtime and the jar on the local machine. Its
// availability is probed through a Capability; a missing toolchain makes the
// validator skip rather than fail, leaving the verdict to the in-process rule
// checks.
//
// Usage:
//
//	probe := toolchain.NewCachedProbe(toolchain.NewLocalProbe("", jarPath))
//	v := toolchain.NewValidator(probe, toolchain.WithTimeout(30*time.Second))
//	outcome := v.Validate(ctx, validation.Input{ArtifactPath: path})
package toolchain
