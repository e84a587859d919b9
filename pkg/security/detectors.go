package security

import (
	"math"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SecretType identifies the kind of secret a detector found.
type SecretType string

const (
	SecretAWSKey            SecretType = "aws_key"
	SecretGitHubToken       SecretType = "github_token"
	SecretJWT               SecretType = "jwt"
	SecretAPIKey            SecretType = "api_key"
	SecretPrivateKey        SecretType = "private_key"
	SecretConnectionString  SecretType = "connection_string"
	SecretHighEntropy       SecretType = "high_entropy"
)

// Confidence is fixed per detector family: pattern matchers are high
// confidence, entropy and keyword-adjacent matchers are medium.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

const (
	base64EntropyThreshold = 3.5
	hexEntropyThreshold    = 2.5
	entropyMinLength       = 20
)

// Finding is one detected secret occurrence within a piece of content.
type Finding struct {
	Type         SecretType
	Matched      string
	LineNumber   int
	Confidence   Confidence
	EntropyScore *float64
}

var (
	awsKeyPattern = regexp.MustCompile(`\b(?:AKIA|ABIA|ACCA|ASIA|AIDA|AROA|AIPA|ANPA|ANVA|AGPA)[0-9A-Z]{16}\b`)

	githubTokenPattern = regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr)_[0-9A-Za-z]{36,}\b|\bgithub_pat_[0-9A-Za-z_]{22,}\b`)

	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]{5,}\b`)

	pemBlockPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)

	connectionStringPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^:\s]+:[^@\s]+@[^\s]+`)

	// keywordAdjacent matches `identifier = "value"` / `identifier: "value"`
	// style assignments where identifier suggests a secret.
	keywordAdjacentPattern = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|password|passwd|token|access[_-]?key)\b\s*[:=]\s*["']([^"'\s]{8,})["']`)

	base64Candidate = regexp.MustCompile(`\b[A-Za-z0-9+/]{20,}={0,2}\b`)
	hexCandidate     = regexp.MustCompile(`\b[0-9a-fA-F]{20,}\b`)
)

// DetectAll runs every detector against content and returns all findings,
// ordered by line number then detector priority (pattern matchers before
// entropy/keyword matchers on the same line).
func DetectAll(content string) []Finding {
	var findings []Finding

	findings = append(findings, detectRegex(content, awsKeyPattern, SecretAWSKey, ConfidenceHigh)...)
	findings = append(findings, detectRegex(content, githubTokenPattern, SecretGitHubToken, ConfidenceHigh)...)
	findings = append(findings, detectJWT(content)...)
	findings = append(findings, detectRegex(content, pemBlockPattern, SecretPrivateKey, ConfidenceHigh)...)
	findings = append(findings, detectRegex(content, connectionStringPattern, SecretConnectionString, ConfidenceHigh)...)
	findings = append(findings, detectKeywordAdjacent(content)...)
	findings = append(findings, detectHighEntropy(content)...)

	return findings
}

func detectRegex(content string, pattern *regexp.Regexp, secretType SecretType, confidence Confidence) []Finding {
	var findings []Finding

	for _, loc := range pattern.FindAllStringIndex(content, -1) {
		findings = append(findings, Finding{
			Type:       secretType,
			Matched:    content[loc[0]:loc[1]],
			LineNumber: lineNumberAt(content, loc[0]),
			Confidence: confidence,
		})
	}

	return findings
}

// detectJWT additionally requires the three segments parse as a
// structurally valid JWT (header+claims decode as JSON) to cut down on
// false positives from arbitrary dot-separated base64url text.
func detectJWT(content string) []Finding {
	var findings []Finding

	for _, loc := range jwtPattern.FindAllStringIndex(content, -1) {
		candidate := content[loc[0]:loc[1]]

		parser := jwt.NewParser()
		_, _, err := parser.ParseUnverified(candidate, jwt.MapClaims{})
		if err != nil {
			continue
		}

		findings = append(findings, Finding{
			Type:       SecretJWT,
			Matched:    candidate,
			LineNumber: lineNumberAt(content, loc[0]),
			Confidence: ConfidenceHigh,
		})
	}

	return findings
}

func detectKeywordAdjacent(content string) []Finding {
	var findings []Finding

	for _, match := range keywordAdjacentPattern.FindAllStringSubmatchIndex(content, -1) {
		fullStart, fullEnd := match[0], match[1]
		valueStart, valueEnd := match[4], match[5]

		findings = append(findings, Finding{
			Type:       SecretAPIKey,
			Matched:    content[valueStart:valueEnd],
			LineNumber: lineNumberAt(content, fullStart),
			Confidence: ConfidenceMedium,
		})

		_ = fullEnd
	}

	return findings
}

func detectHighEntropy(content string) []Finding {
	var findings []Finding

	seen := make(map[string]bool)

	for _, loc := range base64Candidate.FindAllStringIndex(content, -1) {
		candidate := content[loc[0]:loc[1]]
		if len(candidate) < entropyMinLength || seen[candidate] {
			continue
		}

		score := shannonEntropy(candidate)
		if score >= base64EntropyThreshold {
			seen[candidate] = true
			scoreCopy := score
			findings = append(findings, Finding{
				Type:         SecretHighEntropy,
				Matched:      candidate,
				LineNumber:   lineNumberAt(content, loc[0]),
				Confidence:   ConfidenceMedium,
				EntropyScore: &scoreCopy,
			})
		}
	}

	for _, loc := range hexCandidate.FindAllStringIndex(content, -1) {
		candidate := content[loc[0]:loc[1]]
		if len(candidate) < entropyMinLength || seen[candidate] {
			continue
		}

		score := shannonEntropy(candidate)
		if score >= hexEntropyThreshold {
			seen[candidate] = true
			scoreCopy := score
			findings = append(findings, Finding{
				Type:         SecretHighEntropy,
				Matched:      candidate,
				LineNumber:   lineNumberAt(content, loc[0]),
				Confidence:   ConfidenceMedium,
				EntropyScore: &scoreCopy,
			})
		}
	}

	return findings
}

// shannonEntropy computes the Shannon entropy, in bits per character, of s.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	length := float64(len(s))

	var entropy float64
	for _, count := range counts {
		if count == 0 {
			continue
		}

		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

func lineNumberAt(content string, byteOffset int) int {
	return 1 + strings.Count(content[:byteOffset], "\n")
}
