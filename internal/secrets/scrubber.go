package secrets

import (
	"fmt"
	"sort"
	"strings"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	// Scrub redacts secrets from the content.
	Scrub(content string) *Result

	// ScrubAll returns a redacted copy of each message.
	ScrubAll(messages []string) []string

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

type scrubber struct {
	config   *Config
	gitleaks *gitleaksDetector
}

type redaction struct {
	start, end int
	ruleID     string
	source     string
}

// New creates a Scrubber. If cfg is nil, DefaultConfig() is used.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &scrubber{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		g, err := newGitleaksDetector(cfg.allowPatterns())
		if err != nil {
			return nil, fmt.Errorf("initializing gitleaks detector: %w", err)
		}
		s.gitleaks = g
	}
	return s, nil
}

// MustNew creates a Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content, ByRule: make(map[string]int)}
	if !s.config.Enabled || content == "" {
		return result
	}

	var found []redaction
	for _, rule := range s.config.compiledRules {
		if !hasKeyword(rule, content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			found = append(found, redaction{start: m[0], end: m[1], ruleID: rule.ID, source: SourceRule})
		}
	}
	if s.gitleaks != nil {
		found = append(found, s.gitleaks.find(content)...)
	}

	var kept []redaction
	for _, r := range found {
		if s.isAllowed(content[r.start:r.end]) {
			continue
		}
		kept = append(kept, r)
		result.Findings = append(result.Findings, Finding{
			RuleID:     r.ruleID,
			Source:     r.source,
			StartIndex: r.start,
			EndIndex:   r.end,
			Line:       strings.Count(content[:r.start], "\n") + 1,
		})
		result.ByRule[r.ruleID]++
	}
	if len(kept) == 0 {
		return result
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	var b strings.Builder
	last := 0
	for _, r := range mergeRedactions(kept) {
		b.WriteString(content[last:r.start])
		b.WriteString(s.config.RedactionString)
		last = r.end
	}
	b.WriteString(content[last:])
	result.Scrubbed = b.String()
	return result
}

func (s *scrubber) ScrubAll(messages []string) []string {
	if messages == nil {
		return nil
	}
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = s.Scrub(m).Scrubbed
	}
	return out
}

func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func hasKeyword(rule *compiledRule, content string) bool {
	if len(rule.keywords) == 0 {
		return true
	}
	for _, kw := range rule.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeRedactions merges overlapping or adjacent redactions sorted by start.
func mergeRedactions(redactions []redaction) []redaction {
	merged := []redaction{redactions[0]}
	for _, curr := range redactions[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
			continue
		}
		merged = append(merged, curr)
	}
	return merged
}

// NoopScrubber returns content unchanged.
type NoopScrubber struct{}

func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Scrubbed: content, ByRule: map[string]int{}}
}

func (NoopScrubber) ScrubAll(messages []string) []string {
	return append([]string(nil), messages...)
}

func (NoopScrubber) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = NoopScrubber{}
)
