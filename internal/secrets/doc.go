// Package secrets redacts credentials from text before it leaves the process.
//
// Validator output, generator errors and model responses can echo API keys or
// connection strings back at the user. Every error message surfaced in a
// pipeline result passes through a Scrubber, which combines a small set of
// regular expression rules with the Gitleaks default rule set.
package secrets
