package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SanitizationResult is the outcome of running Sanitize over one piece of
// content.
type SanitizationResult struct {
	Original        string
	Sanitized       string
	Findings        []Finding
	AllowlistedHits int
}

// WasModified reports whether sanitization changed the content.
func (r SanitizationResult) WasModified() bool {
	return len(r.Findings) > 0
}

// Allowlist checks whether a matched secret is allowlisted, by sha256 of
// the matched text.
type Allowlist interface {
	IsAllowed(matched string) bool
}

// AuditSink records security-relevant events. Implementations must never
// block sanitization on failure.
type AuditSink interface {
	RecordSecretDetected(f Finding, filePath string, placeholder string)
	RecordAllowlistCheck(f Finding, filePath string)
}

// Sanitizer detects and redacts secrets in content, consulting an
// allowlist and recording audit events. Sanitize never panics and never
// blocks the caller's write path — detector or audit failures are
// swallowed, not surfaced as errors, matching the "never raises" contract.
type Sanitizer struct {
	allowlist Allowlist
	audit     AuditSink
}

// NewSanitizer builds a Sanitizer. A nil allowlist treats every finding as
// non-allowlisted; a nil audit sink discards events.
func NewSanitizer(allowlist Allowlist, audit AuditSink) *Sanitizer {
	return &Sanitizer{allowlist: allowlist, audit: audit}
}

// span is one finding located within content, byte-offset inclusive/exclusive.
type span struct {
	start, end int
	finding    Finding
	allowed    bool
}

// Sanitize detects secrets in content and replaces non-allowlisted findings
// with "[REDACTED:<type>]" placeholders. filePath is optional context
// recorded on audit events.
func (s *Sanitizer) Sanitize(content string, filePath string) SanitizationResult {
	findings := DetectAll(content)
	if len(findings) == 0 {
		return SanitizationResult{Original: content, Sanitized: content}
	}

	spans := make([]span, 0, len(findings))

	for _, f := range findings {
		idx := strings.Index(content, f.Matched)
		if idx < 0 {
			continue
		}

		allowed := s.isAllowed(f.Matched)
		spans = append(spans, span{start: idx, end: idx + len(f.Matched), finding: f, allowed: allowed})
	}

	// DetectAll returns findings in detector-priority order (pattern
	// matchers, then keyword/entropy matchers); a byte range a lower-priority
	// detector also flagged — the AWS key body is itself a high-entropy
	// base64 run, for instance — keeps only the first (highest-priority) hit.
	spans = dedupeOverlappingSpans(spans)

	dedupedFindings := make([]Finding, len(spans))
	for i, sp := range spans {
		dedupedFindings[i] = sp.finding
	}

	// Replace back-to-front so earlier byte offsets stay valid.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start > spans[j].start })

	sanitized := content
	allowlistedHits := 0

	for _, sp := range spans {
		if sp.allowed {
			allowlistedHits++
			s.recordAllowlistCheck(sp.finding, filePath)

			continue
		}

		if sp.start < 0 || sp.end < sp.start || sp.end > len(sanitized) {
			continue
		}

		placeholder := fmt.Sprintf("[REDACTED:%s]", sp.finding.Type)
		sanitized = sanitized[:sp.start] + placeholder + sanitized[sp.end:]
		s.recordSecretDetected(sp.finding, filePath, placeholder)
	}

	return SanitizationResult{
		Original:        content,
		Sanitized:       sanitized,
		Findings:        dedupedFindings,
		AllowlistedHits: allowlistedHits,
	}
}

// dedupeOverlappingSpans keeps, for every group of byte-overlapping spans,
// only the one that appears earliest in spans — i.e. the highest-priority
// detector's finding, per DetectAll's append order.
func dedupeOverlappingSpans(spans []span) []span {
	kept := make([]span, 0, len(spans))

outer:
	for _, sp := range spans {
		for _, k := range kept {
			if sp.start < k.end && k.start < sp.end {
				continue outer
			}
		}

		kept = append(kept, sp)
	}

	return kept
}

func (s *Sanitizer) isAllowed(matched string) bool {
	if s.allowlist == nil {
		return false
	}

	return s.allowlist.IsAllowed(matched)
}

func (s *Sanitizer) recordSecretDetected(f Finding, filePath, placeholder string) {
	if s.audit == nil {
		return
	}

	s.audit.RecordSecretDetected(f, filePath, placeholder)
}

func (s *Sanitizer) recordAllowlistCheck(f Finding, filePath string) {
	if s.audit == nil {
		return
	}

	s.audit.RecordAllowlistCheck(f, filePath)
}

// HashMatched returns the sha256 hex digest of matched secret text, the key
// form stored in allowlist.json. Plain secrets are never persisted.
func HashMatched(matched string) string {
	sum := sha256.Sum256([]byte(matched))
	return hex.EncodeToString(sum[:])
}
