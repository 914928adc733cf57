// File path: internal/discovery/validator.go
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/common/telemetry"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/search"
)

// ConfidenceExplicitYes is the only confidence level that accepts. Every
// other classifier outcome, including transport failure, rejects: a missing
// datasheet is recoverable, a wrong one in a submission package is not.
const ConfidenceExplicitYes = "explicit_yes"

// Verdict is the validator's decision for one candidate.
type Verdict struct {
	Accept     bool
	Confidence string
	Reason     string
}

// Validator classifies a search candidate as a specific component datasheet
// or something else. A cheap heuristic filters obvious catalogs before the
// billed external classification call.
type Validator struct {
	provider llm.Provider
	cfg      ValidatorConfig
}

// NewValidator constructs a validator around the classification provider.
func NewValidator(provider llm.Provider, cfg ValidatorConfig) *Validator {
	return &Validator{provider: provider, cfg: cfg}
}

// Validate runs the two-stage check for a candidate against its component.
func (v *Validator) Validate(ctx context.Context, candidate search.Candidate, component bom.Component) Verdict {
	if verdict := v.prefilter(candidate); !verdict.Accept {
		telemetry.RecordValidation(false)
		return verdict
	}
	verdict := v.classify(ctx, candidate, component)
	telemetry.RecordValidation(verdict.Accept)
	return verdict
}

// prefilter rejects candidates that signal a catalog, a marketplace, or a
// document far larger than a datasheet. Passing the prefilter is not an
// accept; it only clears the candidate for classification.
func (v *Validator) prefilter(candidate search.Candidate) Verdict {
	parsed, err := url.Parse(candidate.URL)
	if err != nil || parsed.Host == "" {
		return Verdict{Reason: "unparseable url"}
	}
	host := strings.ToLower(parsed.Host)
	for _, domain := range excludedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return Verdict{Reason: fmt.Sprintf("excluded domain %s", domain)}
		}
	}
	haystack := strings.ToLower(parsed.Path + " " + candidate.Title)
	for _, signal := range catalogSignals {
		if strings.Contains(haystack, signal) {
			return Verdict{Reason: fmt.Sprintf("catalog signal %q", signal)}
		}
	}
	if v.cfg.MaxPages > 0 && candidate.EstimatedPages > v.cfg.MaxPages {
		return Verdict{Reason: fmt.Sprintf("reported %d pages exceeds datasheet limit %d", candidate.EstimatedPages, v.cfg.MaxPages)}
	}
	if v.cfg.MaxSizeBytes > 0 && candidate.SizeBytes > v.cfg.MaxSizeBytes {
		return Verdict{Reason: fmt.Sprintf("reported %d bytes exceeds datasheet limit %d", candidate.SizeBytes, v.cfg.MaxSizeBytes)}
	}
	return Verdict{Accept: true, Reason: "prefilter passed"}
}

// classify asks the external classifier for an unambiguous yes/no. Any
// answer other than a leading YES rejects.
func (v *Validator) classify(ctx context.Context, candidate search.Candidate, component bom.Component) Verdict {
	logger := common.Logger()
	if v.provider == nil {
		return Verdict{Reason: "no classification provider"}
	}
	if v.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.ClassifyTimeout)
		defer cancel()
	}
	messages := []llm.Message{
		{Role: "system", Content: "You verify manufacturer documentation for permit submissions. Answer with exactly YES or NO."},
		{Role: "user", Content: classifyPrompt(candidate, component)},
	}
	answer, err := v.provider.Chat(ctx, messages)
	if err != nil {
		logger.Warn("discovery: classification call failed", "url", candidate.URL, "error", err)
		return Verdict{Reason: fmt.Sprintf("classification failed: %v", err)}
	}
	normalized := strings.ToUpper(strings.TrimSpace(answer))
	if normalized == "YES" || strings.HasPrefix(normalized, "YES.") || strings.HasPrefix(normalized, "YES,") {
		return Verdict{Accept: true, Confidence: ConfidenceExplicitYes, Reason: "classifier affirmed"}
	}
	return Verdict{Reason: fmt.Sprintf("classifier answered %q", strings.TrimSpace(answer))}
}

func classifyPrompt(candidate search.Candidate, component bom.Component) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Is the document at %s a specific component datasheet (not a catalog, brochure, or product listing) for %s?", candidate.URL, component.Label())
	if title := strings.TrimSpace(candidate.Title); title != "" {
		fmt.Fprintf(&b, " The search result title is %q.", title)
	}
	b.WriteString(" Answer YES or NO.")
	return b.String()
}
