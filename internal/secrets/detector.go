package secrets

import (
	"regexp"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// gitleaksDetector wraps a Gitleaks detector built from its default config.
type gitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

func newGitleaksDetector(allow []string) (*gitleaksDetector, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	if len(allow) > 0 {
		applyAllowlist(&detector.Config, allow)
	}
	return &gitleaksDetector{detector: detector}, nil
}

// find returns the byte spans of every secret Gitleaks reports in content.
func (g *gitleaksDetector) find(content string) []redaction {
	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	var out []redaction
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		// Findings carry line-relative columns; locate the secret itself.
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, redaction{start: start, end: start + len(f.Secret), ruleID: f.RuleID, source: SourceGitleaks})
			off = start + len(f.Secret)
		}
	}
	return out
}

// applyAllowlist merges allow patterns into the Gitleaks config. Patterns are
// compiled by Config.Validate before they get here.
func applyAllowlist(cfg *gitleaksConfig.Config, patterns []string) {
	al := &gitleaksConfig.Allowlist{
		Description: "commcare-forge allowlist",
	}
	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, al)
}
