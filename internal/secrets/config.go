package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces detected secrets.
const DefaultRedaction = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	// Enabled controls whether scrubbing is active (default: true)
	Enabled bool `koanf:"enabled"`

	// Gitleaks adds the Gitleaks default rule set to Rules (default: true)
	Gitleaks bool `koanf:"gitleaks"`

	// Rules defines the regular expression rules
	Rules []Rule `koanf:"rules"`

	// RedactionString is the replacement for detected secrets
	RedactionString string `koanf:"redaction_string"`

	// AllowList contains patterns whose matches are never redacted
	AllowList []string `koanf:"allow_list"`

	// AllowlistFile is a TOML file with additional allow patterns
	AllowlistFile string `koanf:"allowlist_file"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a secret detection rule.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
	Severity    string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns a configuration with the default rules and the
// Gitleaks pass enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Gitleaks:        true,
		RedactionString: DefaultRedaction,
		Rules:           DefaultRules(),
		AllowList:       []string{},
	}
}

// Validate compiles the configuration and merges the allowlist file into
// AllowList.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RedactionString == "" {
		c.RedactionString = DefaultRedaction
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidRegex, rule.ID, err)
		}
		compiled := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, compiled)
	}

	allow := append([]string(nil), c.AllowList...)
	if c.AllowlistFile != "" {
		file, err := LoadAllowlist(c.AllowlistFile)
		if err != nil {
			return err
		}
		allow = append(allow, file.Regexes...)
	}
	c.compiledAllowList = make([]*regexp.Regexp, 0, len(allow))
	for i, pattern := range allow {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: allow_list %d: %v", ErrInvalidRegex, i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}
	return nil
}

// allowPatterns returns the source of every compiled allow pattern.
func (c *Config) allowPatterns() []string {
	out := make([]string, len(c.compiledAllowList))
	for i, re := range c.compiledAllowList {
		out[i] = re.String()
	}
	return out
}
