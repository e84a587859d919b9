package security_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

func TestExcluder_MatchesEnvFile(t *testing.T) {
	t.Parallel()

	excluder := security.NewExcluder()

	excluded, pattern := excluder.CheckExcluded("/repo/.env", stubResolver{})
	assert.True(t, excluded)
	assert.Equal(t, ".env", pattern)
}

func TestExcluder_MatchesDirectoryComponent(t *testing.T) {
	t.Parallel()

	excluder := security.NewExcluder()

	excluded, pattern := excluder.CheckExcluded("/repo/node_modules/lib/index.js", stubResolver{})
	assert.True(t, excluded)
	assert.Equal(t, "node_modules/", pattern)
}

func TestExcluder_SymlinkResolutionFailure_ExcludedConservatively(t *testing.T) {
	t.Parallel()

	excluder := security.NewExcluder()

	excluded, _ := excluder.CheckExcluded("/repo/broken-link", failingResolver{})
	assert.True(t, excluded)
}

func TestExcluder_OrdinaryFile_NotExcluded(t *testing.T) {
	t.Parallel()

	excluder := security.NewExcluder()

	excluded, _ := excluder.CheckExcluded("/repo/main.go", stubResolver{})
	assert.False(t, excluded)
}

func TestDetectAll_AWSKey(t *testing.T) {
	t.Parallel()

	findings := security.DetectAll("aws_key = AKIAABCDEFGHIJ12345K")
	require.NotEmpty(t, findings)
	assert.Equal(t, security.SecretAWSKey, findings[0].Type)
	assert.Equal(t, security.ConfidenceHigh, findings[0].Confidence)
}

func TestDetectAll_GitHubToken(t *testing.T) {
	t.Parallel()

	findings := security.DetectAll("token = ghp_" + repeat("a", 40))

	found := false
	for _, f := range findings {
		if f.Type == security.SecretGitHubToken {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectAll_HighEntropyBase64(t *testing.T) {
	t.Parallel()

	findings := security.DetectAll("payload = " + "qT9x!Kp2ZvL8mN4wR7bY1cF6sA3dE0gH")

	found := false
	for _, f := range findings {
		if f.Type == security.SecretHighEntropy {
			found = true
			require.NotNil(t, f.EntropyScore)
		}
	}
	assert.True(t, found)
}

func TestDetectAll_NoFalsePositiveOnPlainText(t *testing.T) {
	t.Parallel()

	findings := security.DetectAll("func main() {\n\tfmt.Println(\"hello world\")\n}\n")
	assert.Empty(t, findings)
}

func TestSanitize_RedactsNonAllowlistedFinding(t *testing.T) {
	t.Parallel()

	sanitizer := security.NewSanitizer(nil, nil)
	result := sanitizer.Sanitize("key: AKIAABCDEFGHIJ12345K", "config.go")

	assert.True(t, result.WasModified())
	assert.Contains(t, result.Sanitized, "[REDACTED:aws_key]")
	assert.NotContains(t, result.Sanitized, "AKIAABCDEFGHIJ12345K")
	require.Len(t, result.Findings, 1)
	assert.Equal(t, security.SecretAWSKey, result.Findings[0].Type)
}

func TestSanitize_AllowlistedFindingNotRedacted(t *testing.T) {
	t.Parallel()

	allowlist := stubAllowlist{allowed: true}
	sanitizer := security.NewSanitizer(allowlist, nil)
	result := sanitizer.Sanitize("key: AKIAABCDEFGHIJ12345K", "config.go")

	assert.Contains(t, result.Sanitized, "AKIAABCDEFGHIJ12345K")
	assert.Equal(t, 1, result.AllowlistedHits)
}

func TestSanitize_CleanContentUnchanged(t *testing.T) {
	t.Parallel()

	sanitizer := security.NewSanitizer(nil, nil)
	result := sanitizer.Sanitize("nothing secret here", "")

	assert.False(t, result.WasModified())
	assert.Equal(t, "nothing secret here", result.Sanitized)
}

func TestFileAllowlist_AddRequiresJustification(t *testing.T) {
	t.Parallel()

	al, err := security.LoadAllowlist(t.TempDir(), true)
	require.NoError(t, err)

	err = al.Add("some-secret", "", "tester")
	assert.ErrorIs(t, err, security.ErrJustificationRequired)
}

func TestFileAllowlist_AddThenIsAllowed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	al, err := security.LoadAllowlist(dir, true)
	require.NoError(t, err)

	require.NoError(t, al.Add("some-secret", "known test fixture", "tester"))
	assert.True(t, al.IsAllowed("some-secret"))

	reloaded, err := security.LoadAllowlist(dir, true)
	require.NoError(t, err)
	assert.True(t, reloaded.IsAllowed("some-secret"))
}

func TestFileAllowlist_Disabled_NeverAllows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	al, err := security.LoadAllowlist(dir, false)
	require.NoError(t, err)

	require.NoError(t, al.Add("some-secret", "justification", "tester"))
	assert.False(t, al.IsAllowed("some-secret"))
}

func TestFileAuditLog_AppendsJSONL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	auditLog := security.NewFileAuditLog(path, 10, 5)
	auditLog.RecordSecretDetected(security.Finding{Type: security.SecretAWSKey, Confidence: security.ConfidenceHigh}, "f.go", "[REDACTED:aws_key]")
	require.NoError(t, auditLog.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "secret_detected")
	assert.Contains(t, string(data), "aws_key")
}

type stubResolver struct{}

func (stubResolver) Resolve(path string) (string, error) { return path, nil }

type failingResolver struct{}

func (failingResolver) Resolve(string) (string, error) {
	return "", os.ErrNotExist
}

type stubAllowlist struct{ allowed bool }

func (s stubAllowlist) IsAllowed(string) bool { return s.allowed }

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}

	return string(out)
}
