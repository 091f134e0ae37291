package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced by a marker.
	Scrub(content string) *Result

	// IsEnabled reports whether scrubbing does anything.
	IsEnabled() bool
}

// Result describes one scrub. It never carries secret values.
type Result struct {
	Scrubbed      string         `json:"-"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
	Duration      time.Duration  `json:"duration"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the matched rule IDs in sorted order.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Finding is a detected secret, identified by rule and line only.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
}

// Marker returns the replacement text for a secret matched by ruleID.
func Marker(ruleID string) string {
	return fmt.Sprintf("[REDACTED:%s]", ruleID)
}

// redaction is a byte range of content to replace.
type redaction struct {
	start, end int
	ruleID     string
}

// Redactor is a Scrubber backed by the gitleaks default rule set.
type Redactor struct {
	// detect.Detector accumulates findings internally; one scan at a time.
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a Scrubber from configuration. A disabled configuration
// returns a NoopScrubber.
func New(cfg config.RedactionConfig, logger *zap.Logger) (Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return NoopScrubber{}, nil
	}

	allowlist, err := LoadAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	r, err := NewRedactor(allowlist)
	if err != nil {
		return nil, err
	}
	logger.Info("secret redaction enabled",
		zap.String("allowlist", cfg.Allowlist),
		zap.Int("allow_regexes", len(allowlist.Regexes)),
	)
	return r, nil
}

// NewRedactor builds a Redactor. allowlist may be nil.
func NewRedactor(allowlist *Allowlist) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}
	if !allowlist.Empty() {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Redactor{detector: detector}, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{
		Description: "docrag allowlist",
		StopWords:   allowlist.StopWords,
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: '%s': %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// IsEnabled returns true.
func (r *Redactor) IsEnabled() bool {
	return true
}

// Scrub implements Scrubber.
func (r *Redactor) Scrub(content string) *Result {
	start := time.Now()
	result := &Result{Scrubbed: content, ByRule: make(map[string]int)}
	if strings.TrimSpace(content) == "" {
		result.Duration = time.Since(start)
		return result
	}

	r.mu.Lock()
	found := r.detector.DetectString(content)
	r.mu.Unlock()

	var spans []redaction
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
		})
		result.ByRule[f.RuleID]++
		spans = append(spans, locate(content, f.Secret, f.RuleID)...)
	}
	result.TotalFindings = len(result.Findings)
	result.Scrubbed = applyRedactions(content, spans)
	result.Duration = time.Since(start)
	return result
}

// locate returns every occurrence of secret in content.
func locate(content, secret, ruleID string) []redaction {
	var out []redaction
	for offset := 0; offset < len(content); {
		i := strings.Index(content[offset:], secret)
		if i < 0 {
			break
		}
		s := offset + i
		out = append(out, redaction{start: s, end: s + len(secret), ruleID: ruleID})
		offset = s + len(secret)
	}
	return out
}

// applyRedactions replaces the merged spans with markers, back to front.
func applyRedactions(content string, spans []redaction) string {
	if len(spans) == 0 {
		return content
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := mergeRedactions(spans)

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, r := range merged {
		b.WriteString(content[prev:r.start])
		b.WriteString(Marker(r.ruleID))
		prev = r.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// mergeRedactions merges overlapping spans of a start-sorted slice. The
// merged span keeps the rule of its first member.
func mergeRedactions(spans []redaction) []redaction {
	merged := []redaction{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start < last.end {
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

// Scrub returns content unchanged.
func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Scrubbed: content, ByRule: map[string]int{}}
}

// IsEnabled returns false.
func (NoopScrubber) IsEnabled() bool {
	return false
}

var (
	_ Scrubber = (*Redactor)(nil)
	_ Scrubber = NoopScrubber{}
)
