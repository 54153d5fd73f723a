package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// minSecretLen skips matches too short to replace safely by value.
const minSecretLen = 6

// Report summarizes the redactions applied to one document. It never holds
// secret values.
type Report struct {
	TotalSecrets int            `json:"total_secrets"`
	RuleCounts   map[string]int `json:"rule_counts"`
	Duration     time.Duration  `json:"duration"`
}

// HasRedactions returns true if any secrets were redacted.
func (r Report) HasRedactions() bool {
	return r.TotalSecrets > 0
}

// Redactor replaces detected secrets with markers.
type Redactor struct {
	allowlist *Allowlist
}

// NewRedactor validates allowlist and returns a Redactor. A nil allowlist
// uses the Gitleaks defaults only.
func NewRedactor(allowlist *Allowlist) (*Redactor, error) {
	if allowlist == nil {
		allowlist = &Allowlist{}
	}
	if err := allowlist.validate(); err != nil {
		return nil, err
	}
	return &Redactor{allowlist: allowlist}, nil
}

// NewRedactorFromFile loads the allowlist at path (empty or missing means
// none) and returns a Redactor.
func NewRedactorFromFile(path string) (*Redactor, error) {
	al, err := LoadAllowlists(path)
	if err != nil {
		return nil, err
	}
	return NewRedactor(al)
}

// RedactPages redacts every page of one document with a single detector.
// The returned slice is parallel to pages.
func (r *Redactor) RedactPages(pages []string) ([]string, Report, error) {
	start := time.Now()
	report := Report{RuleCounts: make(map[string]int)}

	detector, err := r.newDetector()
	if err != nil {
		return nil, report, err
	}

	out := make([]string, len(pages))
	for i, page := range pages {
		out[i] = redactWith(detector, page, &report)
	}
	report.Duration = time.Since(start)
	return out, report, nil
}

// Redact redacts a single text.
func (r *Redactor) Redact(text string) (string, Report, error) {
	out, report, err := r.RedactPages([]string{text})
	if err != nil {
		return "", report, err
	}
	return out[0], report, nil
}

func (r *Redactor) newDetector() (*detect.Detector, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating secret detector: %w", err)
	}
	applyAllowlist(&detector.Config, r.allowlist)
	return detector, nil
}

// redactWith replaces each distinct secret value, longest first so that a
// secret containing another is replaced whole.
func redactWith(detector *detect.Detector, text string, report *Report) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	type hit struct{ value, rule string }
	seen := make(map[string]bool)
	var hits []hit
	for _, f := range detector.DetectString(text) {
		value := f.Secret
		if value == "" {
			value = f.Match
		}
		if len(value) < minSecretLen || seen[value] {
			continue
		}
		seen[value] = true
		hits = append(hits, hit{value: value, rule: f.RuleID})
	}
	sort.Slice(hits, func(i, j int) bool { return len(hits[i].value) > len(hits[j].value) })

	for _, h := range hits {
		n := strings.Count(text, h.value)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, h.value, marker(h.rule, h.value))
		report.TotalSecrets += n
		report.RuleCounts[h.rule] += n
	}
	return text
}

// marker builds [REDACTED:rule-id:preview] with a four-byte preview.
func marker(ruleID, secret string) string {
	preview := secret
	if len(preview) > 4 {
		preview = preview[:4]
	}
	return fmt.Sprintf("[REDACTED:%s:%s]", ruleID, preview)
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
// Patterns are validated before reaching here.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	if len(allowlist.Regexes) == 0 && len(allowlist.StopWords) == 0 {
		return
	}
	global := &gitleaksConfig.Allowlist{
		Description: "insightflow ingest allowlist",
		StopWords:   append([]string(nil), allowlist.StopWords...),
	}
	for _, pattern := range allowlist.Regexes {
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
}
